package poll

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mcoot/snakesgame/internal/api/apierr"
	"github.com/mcoot/snakesgame/internal/api/response"
	"github.com/mcoot/snakesgame/internal/dependencies/random"
	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/connection"
	"github.com/mcoot/snakesgame/internal/services/game"
)

const (
	// ConnectionHeader carries the polling channel id
	ConnectionHeader = "X-Connection-Id"

	// DefaultTTL is how long a polling channel survives without a request
	DefaultTTL = 5 * time.Minute

	// ChannelPrefix marks polling channel ids
	ChannelPrefix = "poll_"

	maxBodySize = 8 * 1024
)

// Dispatcher handles inbound messages and channel closes
type Dispatcher interface {
	HandleMessage(ctx context.Context, id model.ChannelID, payload []byte) error
	HandleClose(ctx context.Context, id model.ChannelID) error
}

// ConnectResponse is returned by Connect
type ConnectResponse struct {
	ConnectionID model.ChannelID `json:"connectionId"`
}

// MessagesResponse carries server messages in delivery order
type MessagesResponse struct {
	Messages []json.RawMessage `json:"messages"`
}

// Handler serves the polling endpoints
type Handler struct {
	mailbox    *Mailbox
	registry   *connection.Registry
	games      *game.Controller
	dispatcher Dispatcher
	random     random.Random
	ttl        time.Duration
	logger     *slog.Logger

	// Serializes requests per channel so a poll cannot overwrite a link
	// written by a concurrent send
	locks sync.Map // model.ChannelID -> *sync.Mutex
}

// NewHandler creates a Handler. A non-positive ttl uses DefaultTTL.
func NewHandler(
	mailbox *Mailbox,
	registry *connection.Registry,
	games *game.Controller,
	dispatcher Dispatcher,
	random random.Random,
	ttl time.Duration,
	logger *slog.Logger,
) *Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Handler{
		mailbox:    mailbox,
		registry:   registry,
		games:      games,
		dispatcher: dispatcher,
		random:     random,
		ttl:        ttl,
		logger:     logger.With(slog.String("component", "poll")),
	}
}

// Connect handles POST /api/v1/poll/connect
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if pruned := h.mailbox.Prune(h.ttl); pruned > 0 {
		h.logger.Debug("pruned idle poll queues", slog.Int("count", pruned))
	}

	id := model.ChannelID(ChannelPrefix + h.random.NewID())
	if _, err := h.registry.OpenWithTTL(r.Context(), id, h.ttl); err != nil {
		apierr.WriteError(w, err)
		return
	}
	h.mailbox.Open(id)

	response.JSON(w, http.StatusOK, ConnectResponse{ConnectionID: id})
}

// Messages handles GET /api/v1/poll/messages. A linked channel receives a
// gameState snapshot ahead of anything queued since its last poll.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	unlock := h.lock(r)
	defer unlock()

	conn, ok := h.touch(w, r)
	if !ok {
		return
	}

	var messages []json.RawMessage
	if conn.IsLinked() {
		snapshot, err := h.snapshot(r.Context(), conn.GameCode)
		switch {
		case errors.Is(err, model.ErrGameNotFound):
			// Game reaped; report only what was queued
		case err != nil:
			apierr.WriteError(w, err)
			return
		default:
			messages = append(messages, snapshot)
		}
	}

	messages = append(messages, h.drain(conn.ChannelID)...)
	response.JSON(w, http.StatusOK, MessagesResponse{Messages: nonNil(messages)})
}

// Send handles POST /api/v1/poll/send. The body is one client message; the
// response carries everything queued for the channel, including the reply.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	unlock := h.lock(r)
	defer unlock()

	conn, ok := h.touch(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Could not read request body"))
		return
	}

	if err := h.dispatcher.HandleMessage(r.Context(), conn.ChannelID, payload); err != nil {
		apierr.WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, MessagesResponse{Messages: nonNil(h.drain(conn.ChannelID))})
}

// Disconnect handles POST /api/v1/poll/disconnect
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := model.ChannelID(r.Header.Get(ConnectionHeader))
	if id == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Missing "+ConnectionHeader+" header"))
		return
	}

	if err := h.dispatcher.HandleClose(r.Context(), id); err != nil {
		apierr.WriteError(w, err)
		return
	}
	h.mailbox.Remove(id)
	h.locks.Delete(id)

	response.NoContent(w)
}

func (h *Handler) lock(r *http.Request) func() {
	id := model.ChannelID(r.Header.Get(ConnectionHeader))
	mu, _ := h.locks.LoadOrStore(id, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// touch resolves the request's channel and refreshes its expiry
func (h *Handler) touch(w http.ResponseWriter, r *http.Request) (*model.Connection, bool) {
	id := model.ChannelID(r.Header.Get(ConnectionHeader))
	if id == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("Missing "+ConnectionHeader+" header"))
		return nil, false
	}

	conn, err := h.registry.Touch(r.Context(), id, h.ttl)
	if err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			h.mailbox.Remove(id)
			h.locks.Delete(id)
		}
		apierr.WriteError(w, err)
		return nil, false
	}

	if h.mailbox.Ensure(id) {
		h.logger.Debug("recreated poll queue", slog.String("channel_id", string(id)))
	}
	return conn, true
}

func (h *Handler) snapshot(ctx context.Context, code model.GameCode) (json.RawMessage, error) {
	snapshot, err := h.games.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	return message.Encode(message.GameState{Game: snapshot.Game, Players: snapshot.Players})
}

func (h *Handler) drain(id model.ChannelID) []json.RawMessage {
	payloads, _ := h.mailbox.Drain(id)
	messages := make([]json.RawMessage, len(payloads))
	for i, p := range payloads {
		messages[i] = p
	}
	return messages
}

func nonNil(messages []json.RawMessage) []json.RawMessage {
	if messages == nil {
		return []json.RawMessage{}
	}
	return messages
}
