// Package poll serves game channels to clients that cannot hold a WebSocket
// open. Pushes are queued per channel and drained by the client.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/snakesgame/internal/dependencies/clock"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
)

// MaxQueued bounds each channel's queue; the oldest payload is dropped first
const MaxQueued = 256

type queue struct {
	payloads [][]byte
	lastSeen time.Time
}

// Mailbox holds queued payloads for polling channels
type Mailbox struct {
	mu     sync.Mutex
	queues map[model.ChannelID]*queue
	clock  clock.Clock
	logger *slog.Logger
}

var _ broadcast.Pusher = (*Mailbox)(nil)

// NewMailbox creates an empty Mailbox
func NewMailbox(clock clock.Clock, logger *slog.Logger) *Mailbox {
	return &Mailbox{
		queues: make(map[model.ChannelID]*queue),
		clock:  clock,
		logger: logger.With(slog.String("component", "poll")),
	}
}

// Open creates an empty queue for a channel
func (m *Mailbox) Open(id model.ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[id] = &queue{lastSeen: m.clock.Now()}
}

// Ensure opens a queue for a channel that has none, such as one that
// outlived a restart of this process. It reports whether a queue was created.
func (m *Mailbox) Ensure(id model.ChannelID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[id]; ok {
		return false
	}
	m.queues[id] = &queue{lastSeen: m.clock.Now()}
	return true
}

// Remove discards a channel's queue
func (m *Mailbox) Remove(id model.ChannelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, id)
}

// Push queues a payload. Channels without a queue are reported as
// broadcast.ErrGone.
func (m *Mailbox) Push(ctx context.Context, id model.ChannelID, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[id]
	if !ok {
		return broadcast.ErrGone
	}
	if len(q.payloads) >= MaxQueued {
		q.payloads = q.payloads[1:]
		m.logger.Warn("poll queue full, dropped oldest message",
			slog.String("channel_id", string(id)))
	}
	q.payloads = append(q.payloads, payload)
	return nil
}

// Drain returns and clears a channel's queued payloads
func (m *Mailbox) Drain(id model.ChannelID) ([][]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[id]
	if !ok {
		return nil, false
	}
	payloads := q.payloads
	q.payloads = nil
	q.lastSeen = m.clock.Now()
	return payloads, true
}

// Prune drops queues not drained within idle, returning how many were removed
func (m *Mailbox) Prune(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-idle)
	removed := 0
	for id, q := range m.queues {
		if q.lastSeen.Before(cutoff) {
			delete(m.queues, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of open queues
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}
