package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcoot/snakesgame/internal/dependencies/clock"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
)

// DefaultTTL bounds how long an abandoned channel's record survives
const DefaultTTL = 24 * time.Hour

// Registry maps transport channels to the players they serve
type Registry struct {
	storage storage.Storage
	clock   clock.Clock
	ttl     time.Duration
	node    model.NodeID
	logger  *slog.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithNode stamps every channel opened or touched through the registry with
// the node holding its transport
func WithNode(node model.NodeID) Option {
	return func(r *Registry) {
		r.node = node
	}
}

// NewRegistry creates a Registry whose records expire ttl after they are written
func NewRegistry(storage storage.Storage, clock clock.Clock, ttl time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		storage: storage,
		clock:   clock,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "connection")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Node returns the node this registry stamps on channels
func (r *Registry) Node() model.NodeID {
	return r.node
}

// Linkage is what a closed channel was attached to
type Linkage struct {
	GameCode   model.GameCode
	PlayerID   model.PlayerID
	PlayerName string
	// Superseded is set when the player had already moved to another channel
	Superseded bool
}

// IsLinked returns true if the channel had joined a game
func (l Linkage) IsLinked() bool {
	return l.PlayerID != ""
}

// Open records a new channel using the registry's default TTL
func (r *Registry) Open(ctx context.Context, id model.ChannelID) (*model.Connection, error) {
	return r.OpenWithTTL(ctx, id, r.ttl)
}

// OpenWithTTL records a new channel that expires after ttl unless touched
func (r *Registry) OpenWithTTL(ctx context.Context, id model.ChannelID, ttl time.Duration) (*model.Connection, error) {
	now := r.clock.Now()
	conn := &model.Connection{
		ChannelID:   id,
		NodeID:      r.node,
		ConnectedAt: now,
		ExpiresAt:   now.Add(ttl),
		TTL:         ttl,
	}
	if err := r.storage.PutConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("open channel %s: %w", id, err)
	}
	r.logger.Debug("channel opened", slog.String("channel_id", string(id)))
	return conn, nil
}

// Get returns a live connection. Expired records are removed and reported as not found.
func (r *Registry) Get(ctx context.Context, id model.ChannelID) (*model.Connection, error) {
	conn, err := r.storage.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.IsExpired(r.clock.Now()) {
		if err := r.storage.DeleteConnection(ctx, id); err != nil {
			return nil, err
		}
		return nil, model.ErrConnectionNotFound
	}
	return conn, nil
}

// Touch pushes a channel's expiry ttl into the future. The touching node
// takes over the channel, since it now holds the client's transport.
func (r *Registry) Touch(ctx context.Context, id model.ChannelID, ttl time.Duration) (*model.Connection, error) {
	conn, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.node != "" {
		conn.NodeID = r.node
	}
	conn.ExpiresAt = r.clock.Now().Add(ttl)
	conn.TTL = ttl
	if err := r.storage.PutConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("touch channel %s: %w", id, err)
	}
	return conn, nil
}

// Link attaches a channel to a player and marks the player connected.
// Linking the same channel to the same player again is harmless. A channel
// already linked to someone else first disconnects that player, who is
// returned so the caller can announce the departure.
func (r *Registry) Link(ctx context.Context, id model.ChannelID, code model.GameCode, playerID model.PlayerID) (Linkage, error) {
	conn, err := r.Get(ctx, id)
	if err != nil {
		return Linkage{}, err
	}

	if err := r.storage.UpdatePlayerConnection(ctx, code, playerID, id, true); err != nil {
		return Linkage{}, fmt.Errorf("link channel %s: %w", id, err)
	}

	if conn.GameCode == code && conn.PlayerID == playerID {
		return Linkage{}, nil
	}

	var displaced Linkage
	if conn.IsLinked() {
		displaced, err = r.disconnectPlayer(ctx, conn)
		if err != nil {
			return Linkage{}, err
		}
		r.logger.Info("channel relinked",
			slog.String("channel_id", string(id)),
			slog.String("previous_game_code", string(displaced.GameCode)),
			slog.String("previous_player_id", string(displaced.PlayerID)),
		)
	}

	conn.GameCode = code
	conn.PlayerID = playerID
	if err := r.storage.PutConnection(ctx, conn); err != nil {
		return Linkage{}, fmt.Errorf("link channel %s: %w", id, err)
	}

	r.logger.Info("channel linked",
		slog.String("channel_id", string(id)),
		slog.String("game_code", string(code)),
		slog.String("player_id", string(playerID)),
	)
	return displaced, nil
}

// Close forgets a channel. A linked player is marked disconnected but kept so
// they can come back. Closing an unknown channel returns an empty Linkage.
func (r *Registry) Close(ctx context.Context, id model.ChannelID) (Linkage, error) {
	conn, err := r.storage.GetConnection(ctx, id)
	if errors.Is(err, model.ErrConnectionNotFound) {
		return Linkage{}, nil
	}
	if err != nil {
		return Linkage{}, err
	}

	var link Linkage
	if conn.IsLinked() {
		link, err = r.disconnectPlayer(ctx, conn)
		if err != nil {
			return Linkage{}, err
		}
	}

	if err := r.storage.DeleteConnection(ctx, id); err != nil {
		return Linkage{}, fmt.Errorf("close channel %s: %w", id, err)
	}

	r.logger.Debug("channel closed",
		slog.String("channel_id", string(id)),
		slog.String("player_id", string(link.PlayerID)),
	)
	return link, nil
}

func (r *Registry) disconnectPlayer(ctx context.Context, conn *model.Connection) (Linkage, error) {
	link := Linkage{GameCode: conn.GameCode, PlayerID: conn.PlayerID}

	player, err := r.storage.GetPlayer(ctx, conn.GameCode, conn.PlayerID)
	if errors.Is(err, model.ErrPlayerNotFound) {
		// The game has been reaped; nothing left to mark
		return link, nil
	}
	if err != nil {
		return Linkage{}, err
	}
	link.PlayerName = player.Name

	if player.ChannelID != "" && player.ChannelID != conn.ChannelID {
		link.Superseded = true
		return link, nil
	}

	if err := r.storage.UpdatePlayerConnection(ctx, conn.GameCode, conn.PlayerID, "", false); err != nil {
		return Linkage{}, fmt.Errorf("disconnect player %s: %w", conn.PlayerID, err)
	}
	return link, nil
}
