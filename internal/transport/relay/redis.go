package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
)

const channelPrefix = "snakes:relay:"

func nodeChannel(node model.NodeID) string {
	return channelPrefix + string(node)
}

// envelope is one forwarded push on the wire
type envelope struct {
	ChannelID model.ChannelID `json:"channelId"`
	Payload   json.RawMessage `json:"payload"`
}

// Redis is a Bus over Redis Pub/Sub with one subscription channel per node
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Bus = (*Redis)(nil)

// NewRedis creates a Bus publishing through client
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger.With(slog.String("component", "relay")),
	}
}

// Forward publishes a payload for node. A node with no subscriber is
// reported as broadcast.ErrGone.
func (r *Redis) Forward(ctx context.Context, node model.NodeID, id model.ChannelID, payload []byte) error {
	data, err := json.Marshal(envelope{ChannelID: id, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}

	receivers, err := r.client.Publish(ctx, nodeChannel(node), data).Result()
	if err != nil {
		return err
	}
	if receivers == 0 {
		return broadcast.ErrGone
	}
	return nil
}

// Listen subscribes to node's channel. It returns once the subscription is
// confirmed; deliveries then run on a background goroutine.
func (r *Redis) Listen(ctx context.Context, node model.NodeID, deliver Deliver) (io.Closer, error) {
	pubsub := r.client.Subscribe(ctx, nodeChannel(node))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", nodeChannel(node), err)
	}

	logger := r.logger.With(slog.String("node_id", string(node)))
	go func() {
		for msg := range pubsub.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn("discarding malformed relay message", slog.String("error", err.Error()))
				continue
			}
			if err := deliver(context.Background(), env.ChannelID, env.Payload); err != nil {
				logger.Error("relayed delivery failed",
					slog.String("channel_id", string(env.ChannelID)),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	logger.Info("relay listening")
	return pubsub, nil
}
