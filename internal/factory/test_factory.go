package factory

import (
	"fmt"
	"time"

	"github.com/mcoot/snakesgame/internal/dependencies/mocks"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage/memory"
	"github.com/mcoot/snakesgame/internal/testutil"
	"github.com/mcoot/snakesgame/internal/transport/relay"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(Config{})
}

// NewTestAppWithConfig is NewTestApp with explicit configuration
func NewTestAppWithConfig(cfg Config) *TestApp {
	return newTestApp(memory.New(), mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)), mocks.NewMockRandom(), cfg)
}

// NewTestCluster creates n nodes sharing one store, clock, random source
// and in-process relay, as separate server processes would share Redis
func NewTestCluster(n int, cfg Config) []*TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	if cfg.Relay == nil {
		cfg.Relay = relay.NewMemory()
	}

	nodes := make([]*TestApp, n)
	for i := range nodes {
		nodeCfg := cfg
		nodeCfg.NodeID = model.NodeID(fmt.Sprintf("node-%d", i+1))
		nodes[i] = newTestApp(store, mockClock, mockRandom, nodeCfg)
	}
	return nodes
}

func newTestApp(store *memory.Storage, mockClock *mocks.MockClock, mockRandom *mocks.MockRandom, cfg Config) *TestApp {
	logger := cfg.Logger
	if logger == nil {
		logger = testutil.NopLogger()
	}

	app := newWithDependencies(store, mockClock, mockRandom, cfg, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}
}
