// Package relay carries pushes between server nodes sharing one store, so a
// node can reach channels whose transport another node holds.
package relay

import (
	"context"
	"io"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
)

// Deliver pushes a relayed payload to a channel held by the listening node
type Deliver func(ctx context.Context, id model.ChannelID, payload []byte) error

// Bus forwards payloads to nodes and delivers those addressed to a listener
type Bus interface {
	broadcast.Relay

	// Listen delivers every payload forwarded to node until the returned
	// closer is closed
	Listen(ctx context.Context, node model.NodeID, deliver Deliver) (io.Closer, error)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
