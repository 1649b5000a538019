package relay

import (
	"context"
	"io"
	"sync"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
)

// Memory is an in-process Bus for nodes running in the same process
type Memory struct {
	mu        sync.RWMutex
	listeners map[model.NodeID]*listener
}

type listener struct {
	deliver Deliver
}

var _ Bus = (*Memory)(nil)

// NewMemory creates an empty in-process Bus
func NewMemory() *Memory {
	return &Memory{listeners: make(map[model.NodeID]*listener)}
}

// Forward delivers synchronously to node's listener
func (m *Memory) Forward(ctx context.Context, node model.NodeID, id model.ChannelID, payload []byte) error {
	m.mu.RLock()
	l, ok := m.listeners[node]
	m.mu.RUnlock()
	if !ok {
		return broadcast.ErrGone
	}
	return l.deliver(ctx, id, payload)
}

// Listen registers deliver for node, replacing any earlier listener
func (m *Memory) Listen(ctx context.Context, node model.NodeID, deliver Deliver) (io.Closer, error) {
	l := &listener{deliver: deliver}

	m.mu.Lock()
	m.listeners[node] = l
	m.mu.Unlock()

	return closerFunc(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.listeners[node] == l {
			delete(m.listeners, node)
		}
		return nil
	}), nil
}
