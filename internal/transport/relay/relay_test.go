package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
	"github.com/mcoot/snakesgame/internal/testutil"
)

// sink records relayed deliveries
type sink struct {
	mu        sync.Mutex
	delivered map[model.ChannelID][]string
}

func newSink() *sink {
	return &sink{delivered: make(map[model.ChannelID][]string)}
}

func (s *sink) deliver(ctx context.Context, id model.ChannelID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered[id] = append(s.delivered[id], string(payload))
	return nil
}

func (s *sink) get(id model.ChannelID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered[id]...)
}

type MemorySuite struct {
	suite.Suite
	bus *Memory
	ctx context.Context
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) SetupTest() {
	s.bus = NewMemory()
	s.ctx = context.Background()
}

func (s *MemorySuite) TestForwardWithoutListenerIsGone() {
	err := s.bus.Forward(s.ctx, "node-a", "chan-1", []byte(`{}`))
	s.ErrorIs(err, broadcast.ErrGone)
}

func (s *MemorySuite) TestForwardReachesListener() {
	a, b := newSink(), newSink()
	closeA, err := s.bus.Listen(s.ctx, "node-a", a.deliver)
	s.Require().NoError(err)
	_, err = s.bus.Listen(s.ctx, "node-b", b.deliver)
	s.Require().NoError(err)

	s.Require().NoError(s.bus.Forward(s.ctx, "node-a", "chan-1", []byte(`{"type":"pong"}`)))
	s.Equal([]string{`{"type":"pong"}`}, a.get("chan-1"))
	s.Empty(b.get("chan-1"))

	s.Require().NoError(closeA.Close())
	s.ErrorIs(s.bus.Forward(s.ctx, "node-a", "chan-1", []byte(`{}`)), broadcast.ErrGone)
}

func (s *MemorySuite) TestClosingReplacedListenerKeepsNewOne() {
	first, second := newSink(), newSink()
	closeFirst, err := s.bus.Listen(s.ctx, "node-a", first.deliver)
	s.Require().NoError(err)
	_, err = s.bus.Listen(s.ctx, "node-a", second.deliver)
	s.Require().NoError(err)

	s.Require().NoError(closeFirst.Close())
	s.Require().NoError(s.bus.Forward(s.ctx, "node-a", "chan-1", []byte(`{}`)))
	s.Empty(first.get("chan-1"))
	s.Len(second.get("chan-1"), 1)
}

type RedisSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	client *redis.Client
	bus    *Redis
	ctx    context.Context
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.bus = NewRedis(s.client, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *RedisSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RedisSuite) TestForwardWithoutSubscriberIsGone() {
	err := s.bus.Forward(s.ctx, "node-a", "chan-1", []byte(`{}`))
	s.ErrorIs(err, broadcast.ErrGone)
}

func (s *RedisSuite) TestForwardReachesSubscriber() {
	a := newSink()
	sub, err := s.bus.Listen(s.ctx, "node-a", a.deliver)
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().NoError(s.bus.Forward(s.ctx, "node-a", "poll_1", []byte(`{"type":"pong"}`)))

	s.Eventually(func() bool {
		return len(a.get("poll_1")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.JSONEq(`{"type":"pong"}`, a.get("poll_1")[0])
}

func (s *RedisSuite) TestClosedSubscriptionIsGone() {
	sub, err := s.bus.Listen(s.ctx, "node-a", newSink().deliver)
	s.Require().NoError(err)
	s.Require().NoError(sub.Close())

	s.Eventually(func() bool {
		return s.bus.Forward(s.ctx, "node-a", "chan-1", []byte(`{}`)) == broadcast.ErrGone
	}, 2*time.Second, 10*time.Millisecond)
}
