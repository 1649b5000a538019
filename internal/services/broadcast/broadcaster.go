// Package broadcast delivers server messages to open channels.
//
// Each node pushes to the channels it holds. A channel missing locally is
// forwarded to the node that holds it through a Relay, and pruned from the
// store only when its holder is this node or no longer listening.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
)

// ErrGone is returned by a Pusher when the channel no longer exists
var ErrGone = errors.New("channel is gone")

// Pusher delivers one encoded payload to one channel
type Pusher interface {
	Push(ctx context.Context, id model.ChannelID, payload []byte) error
}

// PusherFunc adapts a function to the Pusher interface
type PusherFunc func(ctx context.Context, id model.ChannelID, payload []byte) error

// Push calls f
func (f PusherFunc) Push(ctx context.Context, id model.ChannelID, payload []byte) error {
	return f(ctx, id, payload)
}

// Fallback tries each pusher in turn, moving on only when one reports ErrGone
func Fallback(pushers ...Pusher) Pusher {
	return PusherFunc(func(ctx context.Context, id model.ChannelID, payload []byte) error {
		for _, p := range pushers {
			err := p.Push(ctx, id, payload)
			if errors.Is(err, ErrGone) {
				continue
			}
			return err
		}
		return ErrGone
	})
}

// Relay forwards payloads to channels held by other nodes. Forward returns
// ErrGone when no process is listening for node.
type Relay interface {
	Forward(ctx context.Context, node model.NodeID, id model.ChannelID, payload []byte) error
}

// Option configures a Broadcaster
type Option func(*Broadcaster)

// WithNode sets the node whose channels the local pusher serves
func WithNode(node model.NodeID) Option {
	return func(b *Broadcaster) {
		b.node = node
	}
}

// WithRelay forwards pushes for channels held by other nodes
func WithRelay(relay Relay) Option {
	return func(b *Broadcaster) {
		b.relay = relay
	}
}

// Result partitions a batch delivery
type Result struct {
	Delivered []model.ChannelID
	Failed    []model.ChannelID
}

// Broadcaster fans messages out to channels
type Broadcaster struct {
	storage storage.Storage
	pusher  Pusher
	node    model.NodeID
	relay   Relay
	logger  *slog.Logger
}

// New creates a Broadcaster
func New(storage storage.Storage, pusher Pusher, logger *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		storage: storage,
		pusher:  pusher,
		logger:  logger.With(slog.String("component", "broadcast")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SendTo delivers msg to one channel. It returns false without an error when
// the channel is gone, after deleting its connection record. Any other
// transport error is returned.
func (b *Broadcaster) SendTo(ctx context.Context, id model.ChannelID, msg message.ServerMessage) (bool, error) {
	payload, err := message.Encode(msg)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return b.push(ctx, id, payload)
}

func (b *Broadcaster) push(ctx context.Context, id model.ChannelID, payload []byte) (bool, error) {
	err := b.pusher.Push(ctx, id, payload)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrGone) {
		return false, fmt.Errorf("push to %s: %w", id, err)
	}

	conn, err := b.storage.GetConnection(ctx, id)
	if errors.Is(err, model.ErrConnectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up channel %s: %w", id, err)
	}
	if conn.HeldBy(b.node) {
		return false, b.prune(ctx, id)
	}
	return b.forward(ctx, conn, payload)
}

// forward hands a payload to the node holding the channel
func (b *Broadcaster) forward(ctx context.Context, conn *model.Connection, payload []byte) (bool, error) {
	if b.relay == nil {
		b.logger.Warn("channel held by another node and no relay configured",
			slog.String("channel_id", string(conn.ChannelID)),
			slog.String("node_id", string(conn.NodeID)),
		)
		return false, nil
	}

	err := b.relay.Forward(ctx, conn.NodeID, conn.ChannelID, payload)
	if errors.Is(err, ErrGone) {
		// Nobody listens for that node any more, so its channels are dead
		return false, b.prune(ctx, conn.ChannelID)
	}
	if err != nil {
		return false, fmt.Errorf("relay to %s via %s: %w", conn.ChannelID, conn.NodeID, err)
	}
	return true, nil
}

// DeliverRelayed pushes a payload another node forwarded here. A channel this
// node no longer holds is pruned only if the store still names this node.
func (b *Broadcaster) DeliverRelayed(ctx context.Context, id model.ChannelID, payload []byte) error {
	err := b.pusher.Push(ctx, id, payload)
	if !errors.Is(err, ErrGone) {
		return err
	}

	conn, err := b.storage.GetConnection(ctx, id)
	if errors.Is(err, model.ErrConnectionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up channel %s: %w", id, err)
	}
	if !conn.HeldBy(b.node) {
		b.logger.Debug("dropping relayed message for channel that moved",
			slog.String("channel_id", string(id)),
			slog.String("node_id", string(conn.NodeID)),
		)
		return nil
	}
	return b.prune(ctx, id)
}

func (b *Broadcaster) prune(ctx context.Context, id model.ChannelID) error {
	b.logger.Info("pruning gone channel", slog.String("channel_id", string(id)))
	if err := b.storage.DeleteConnection(ctx, id); err != nil {
		return fmt.Errorf("prune channel %s: %w", id, err)
	}
	return nil
}

// BroadcastToGame delivers msg to every channel linked to the game except
// exclude. Partial delivery is logged, never returned as an error; only a
// failure to look up the game's channels is.
func (b *Broadcaster) BroadcastToGame(ctx context.Context, code model.GameCode, msg message.ServerMessage, exclude model.ChannelID) (Result, error) {
	conns, err := b.storage.GetConnectionsForGame(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("list channels for %s: %w", code, err)
	}

	ids := make([]model.ChannelID, 0, len(conns))
	for _, conn := range conns {
		if conn.ChannelID != exclude {
			ids = append(ids, conn.ChannelID)
		}
	}

	result := b.BroadcastToMany(ctx, ids, msg)
	if len(result.Failed) > 0 {
		b.logger.Warn("partial broadcast",
			slog.String("game_code", string(code)),
			slog.String("type", string(msg.Type())),
			slog.Int("delivered", len(result.Delivered)),
			slog.Int("failed", len(result.Failed)),
		)
	}
	return result, nil
}

// BroadcastToMany delivers msg to each channel concurrently.
// Gone channels are pruned and, like channels that errored, reported as failed.
func (b *Broadcaster) BroadcastToMany(ctx context.Context, ids []model.ChannelID, msg message.ServerMessage) Result {
	var result Result
	if len(ids) == 0 {
		return result
	}

	payload, err := message.Encode(msg)
	if err != nil {
		b.logger.Error("failed to encode broadcast",
			slog.String("type", string(msg.Type())),
			slog.String("error", err.Error()),
		)
		result.Failed = append(result.Failed, ids...)
		return result
	}

	delivered := make([]bool, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id model.ChannelID) {
			defer wg.Done()
			ok, err := b.push(ctx, id, payload)
			if err != nil {
				b.logger.Error("broadcast delivery failed",
					slog.String("channel_id", string(id)),
					slog.String("error", err.Error()),
				)
			}
			delivered[i] = ok
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		if delivered[i] {
			result.Delivered = append(result.Delivered, id)
		} else {
			result.Failed = append(result.Failed, id)
		}
	}
	return result
}
