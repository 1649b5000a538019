package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/snakesgame/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Send pings at this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Largest inbound message accepted
	maxMessageSize = 8 * 1024

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// MessageHandler receives each inbound payload for a channel
type MessageHandler interface {
	HandleMessage(ctx context.Context, id model.ChannelID, payload []byte) error
}

// Client is one connected WebSocket peer
type Client struct {
	id          model.ChannelID
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
	logger      *slog.Logger
}

// NewClient wraps an upgraded connection
func NewClient(id model.ChannelID, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
		logger:      logger.With(slog.String("channel_id", string(id))),
	}
}

// ID returns the channel id assigned to the client
func (c *Client) ID() model.ChannelID {
	return c.id
}

// readPump feeds inbound messages to handler until the peer goes away
func (c *Client) readPump(ctx context.Context, handler MessageHandler) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws read failed", slog.String("error", err.Error()))
			}
			return
		}

		if err := handler.HandleMessage(ctx, c.id, payload); err != nil {
			c.logger.Warn("ws reply failed", slog.String("error", err.Error()))
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
