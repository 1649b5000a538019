package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/snakesgame/internal/api/response"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/admin"
)

// AdminHandler serves the read-only operator endpoints
type AdminHandler struct {
	admin *admin.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admin *admin.Service) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ListGames handles GET /api/v1/admin/games
func (h *AdminHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.admin.ListGames(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.AdminGamesResponse{Games: games})
}

// GetGame handles GET /api/v1/admin/games/{code}
func (h *AdminHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	code := model.GameCode(mux.Vars(r)["code"])

	detail, err := h.admin.GameDetail(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, detail)
}
