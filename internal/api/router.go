package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/snakesgame/internal/api/handler"
	"github.com/mcoot/snakesgame/internal/api/middleware"
	"github.com/mcoot/snakesgame/internal/api/response"
	commonmw "github.com/mcoot/snakesgame/internal/middleware"
	"github.com/mcoot/snakesgame/internal/services/admin"
	"github.com/mcoot/snakesgame/internal/services/auth"
	"github.com/mcoot/snakesgame/internal/services/game"
	"github.com/mcoot/snakesgame/internal/transport/poll"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	GameController *game.Controller
	AdminService   *admin.Service
	AuthService    *auth.Service
	WebSocket      http.Handler
	Poll           *poll.Handler
	AllowedOrigins []string
	StorageType    string
	HealthCheck    func(ctx context.Context) error
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	gameHandler := handler.NewGameHandler(cfg.GameController)
	adminHandler := handler.NewAdminHandler(cfg.AdminService)

	// Create middleware
	loggingMiddleware := commonmw.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)
	adminMiddleware := middleware.AdminAuth(cfg.AuthService, cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Game routes
	api.HandleFunc("/games", gameHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/games/{code}", gameHandler.Get).Methods(http.MethodGet)

	// Polling fallback for clients without WebSocket support
	if cfg.Poll != nil {
		api.HandleFunc("/poll/connect", cfg.Poll.Connect).Methods(http.MethodPost)
		api.HandleFunc("/poll/messages", cfg.Poll.Messages).Methods(http.MethodGet)
		api.HandleFunc("/poll/send", cfg.Poll.Send).Methods(http.MethodPost)
		api.HandleFunc("/poll/disconnect", cfg.Poll.Disconnect).Methods(http.MethodPost)
	}

	// Admin routes (HTTP Basic auth)
	adminRoutes := api.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(adminMiddleware)
	adminRoutes.HandleFunc("/games", adminHandler.ListGames).Methods(http.MethodGet)
	adminRoutes.HandleFunc("/games/{code}", adminHandler.GetGame).Methods(http.MethodGet)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg.StorageType, cfg.HealthCheck)).Methods(http.MethodGet)

	// WebSocket channel
	if cfg.WebSocket != nil {
		r.Handle("/ws", loggingMiddleware(cfg.WebSocket)).Methods(http.MethodGet)
	}

	// CORS wraps the router so preflight requests reach it before route matching
	return commonmw.CORS(cfg.AllowedOrigins)(r)
}

func healthHandler(storageType string, check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				response.JSON(w, http.StatusServiceUnavailable, response.HealthResponse{Status: "unavailable", Storage: storageType})
				return
			}
		}
		response.JSON(w, http.StatusOK, response.HealthResponse{Status: "ok", Storage: storageType})
	}
}
