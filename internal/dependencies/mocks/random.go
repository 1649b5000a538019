package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/snakesgame/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// It is safe for concurrent use so race tests can share one instance.
type MockRandom struct {
	mu sync.Mutex

	// IntnResults is a queue of results to return from Intn
	IntnResults []int
	intnIndex   int
	// IntnDefault is returned once the Intn queue is exhausted
	IntnDefault int

	// StringResults is a queue of results to return from String
	StringResults []string
	stringIndex   int

	idCounter int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or IntnDefault if none remain
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intnIndex >= len(r.IntnResults) {
		return r.IntnDefault
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// String returns the next queued result, or empty string if none remaining
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex >= len(r.StringResults) {
		return ""
	}
	result := r.StringResults[r.stringIndex]
	r.stringIndex++
	return result
}

// NewID returns sequential ids: id-1, id-2, ...
func (r *MockRandom) NewID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idCounter++
	return fmt.Sprintf("id-%d", r.idCounter)
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = append(r.IntnResults, values...)
}

// QueueRolls queues die faces (1-6) for board.RollDie
func (r *MockRandom) QueueRolls(faces ...int) {
	for _, face := range faces {
		r.QueueIntn(face - 1)
	}
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StringResults = append(r.StringResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = nil
	r.intnIndex = 0
	r.StringResults = nil
	r.stringIndex = 0
	r.idCounter = 0
}
