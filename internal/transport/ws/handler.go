package ws

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/mcoot/snakesgame/internal/dependencies/random"
	"github.com/mcoot/snakesgame/internal/model"
)

// Dispatcher reacts to channel lifecycle events and inbound messages
type Dispatcher interface {
	MessageHandler
	HandleOpen(ctx context.Context, id model.ChannelID) error
	HandleClose(ctx context.Context, id model.ChannelID) error
}

// Handler upgrades HTTP requests to game channels
type Handler struct {
	hub        *Hub
	dispatcher Dispatcher
	random     random.Random
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewHandler creates a Handler. An empty origin list, or one containing "*",
// accepts any origin.
func NewHandler(hub *Hub, dispatcher Dispatcher, random random.Random, allowedOrigins []string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		random:     random,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger.With(slog.String("component", "ws")),
	}
}

// ServeHTTP runs one channel for the lifetime of the connection
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.Debug("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	client := NewClient(model.ChannelID(h.random.NewID()), conn, h.logger)

	h.hub.Register(client)
	if err := h.dispatcher.HandleOpen(ctx, client.id); err != nil {
		h.logger.Error("ws open failed",
			slog.String("channel_id", string(client.id)),
			slog.String("error", err.Error()))
		h.hub.Unregister(client)
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump(ctx, h.dispatcher)

	h.hub.Unregister(client)
	if err := h.dispatcher.HandleClose(ctx, client.id); err != nil {
		h.logger.Error("ws close failed",
			slog.String("channel_id", string(client.id)),
			slog.String("error", err.Error()))
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients such as the CLI send no Origin
		return origin == "" || slices.Contains(allowed, origin)
	}
}
