// Package ws serves game channels over WebSocket.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
)

// ErrSlowConsumer is returned when a client's send buffer is full. The
// client is disconnected and its close is handled like any other.
var ErrSlowConsumer = errors.New("websocket client send buffer full")

// Hub tracks the WebSocket clients connected to this process
type Hub struct {
	clients map[model.ChannelID]*Client
	mu      sync.RWMutex
	logger  *slog.Logger
}

var _ broadcast.Pusher = (*Hub)(nil)

// NewHub creates an empty Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[model.ChannelID]*Client),
		logger:  logger.With(slog.String("component", "ws")),
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws client registered",
		slog.String("channel_id", string(client.id)),
		slog.Int("total_clients", clientCount))
}

// Unregister removes a client and closes its send queue. Safe to repeat.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.id]; !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	close(client.send)
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws client unregistered",
		slog.String("channel_id", string(client.id)),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", clientCount))
}

// Push queues a payload for one channel. Unknown channels are reported as
// broadcast.ErrGone.
func (h *Hub) Push(ctx context.Context, id model.ChannelID, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[id]
	if !ok {
		return broadcast.ErrGone
	}

	select {
	case client.send <- payload:
		return nil
	default:
		h.logger.Warn("ws client buffer full, disconnecting",
			slog.String("channel_id", string(id)))
		// The read loop sees the closed socket and runs the normal close path
		_ = client.conn.Close()
		return ErrSlowConsumer
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clientCount := len(h.clients)
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.logger.Info("ws hub stopped", slog.Int("disconnected_clients", clientCount))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
