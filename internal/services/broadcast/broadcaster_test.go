package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage/memory"
	"github.com/mcoot/snakesgame/internal/testutil"
)

// recordingPusher records deliveries and fails channels on demand
type recordingPusher struct {
	mu        sync.Mutex
	delivered map[model.ChannelID][][]byte
	failures  map[model.ChannelID]error
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{
		delivered: make(map[model.ChannelID][][]byte),
		failures:  make(map[model.ChannelID]error),
	}
}

func (p *recordingPusher) Push(ctx context.Context, id model.ChannelID, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failures[id]; ok {
		return err
	}
	p.delivered[id] = append(p.delivered[id], payload)
	return nil
}

func (p *recordingPusher) count(id model.ChannelID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delivered[id])
}

// recordingRelay records forwarded payloads per node
type recordingRelay struct {
	mu        sync.Mutex
	forwarded map[model.NodeID][]model.ChannelID
	silent    map[model.NodeID]bool
}

func newRecordingRelay() *recordingRelay {
	return &recordingRelay{
		forwarded: make(map[model.NodeID][]model.ChannelID),
		silent:    make(map[model.NodeID]bool),
	}
}

func (r *recordingRelay) Forward(ctx context.Context, node model.NodeID, id model.ChannelID, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.silent[node] {
		return ErrGone
	}
	r.forwarded[node] = append(r.forwarded[node], id)
	return nil
}

type BroadcasterSuite struct {
	suite.Suite
	storage     *memory.Storage
	pusher      *recordingPusher
	broadcaster *Broadcaster
	ctx         context.Context
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

func (s *BroadcasterSuite) SetupTest() {
	s.storage = memory.New()
	s.pusher = newRecordingPusher()
	s.broadcaster = New(s.storage, s.pusher, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *BroadcasterSuite) link(id model.ChannelID, code model.GameCode) {
	now := time.Now().UTC()
	s.Require().NoError(s.storage.PutConnection(s.ctx, &model.Connection{
		ChannelID:   id,
		GameCode:    code,
		PlayerID:    model.PlayerID("player-" + string(id)),
		ConnectedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	}))
}

// SendTo tests

func (s *BroadcasterSuite) TestSendToDelivers() {
	ok, err := s.broadcaster.SendTo(s.ctx, "chan-1", message.Pong{})
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(1, s.pusher.count("chan-1"))
	s.JSONEq(`{"type":"pong"}`, string(s.pusher.delivered["chan-1"][0]))
}

func (s *BroadcasterSuite) TestSendToGoneChannelPrunesIt() {
	s.link("chan-1", "ABCDEF")
	s.pusher.failures["chan-1"] = ErrGone

	ok, err := s.broadcaster.SendTo(s.ctx, "chan-1", message.Pong{})
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.storage.GetConnection(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *BroadcasterSuite) TestSendToPropagatesOtherFailures() {
	s.link("chan-1", "ABCDEF")
	outage := errors.New("endpoint unreachable")
	s.pusher.failures["chan-1"] = outage

	ok, err := s.broadcaster.SendTo(s.ctx, "chan-1", message.Pong{})
	s.ErrorIs(err, outage)
	s.False(ok)

	_, err = s.storage.GetConnection(s.ctx, "chan-1")
	s.NoError(err)
}

// BroadcastToGame tests

func (s *BroadcasterSuite) TestBroadcastToGameSurvivesGoneChannel() {
	s.link("chan-a", "ABCDEF")
	s.link("chan-b", "ABCDEF")
	s.link("chan-c", "ABCDEF")
	s.pusher.failures["chan-b"] = ErrGone

	result, err := s.broadcaster.BroadcastToGame(s.ctx, "ABCDEF", message.PlayerLeft{PlayerID: "p1", PlayerName: "Ann"}, "")
	s.Require().NoError(err)

	s.ElementsMatch([]model.ChannelID{"chan-a", "chan-c"}, result.Delivered)
	s.Equal([]model.ChannelID{"chan-b"}, result.Failed)
	s.Equal(1, s.pusher.count("chan-a"))
	s.Equal(1, s.pusher.count("chan-c"))

	_, err = s.storage.GetConnection(s.ctx, "chan-b")
	s.ErrorIs(err, model.ErrConnectionNotFound)
	conns, err := s.storage.GetConnectionsForGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Len(conns, 2)
}

func (s *BroadcasterSuite) TestBroadcastToGameHonorsExclude() {
	s.link("chan-a", "ABCDEF")
	s.link("chan-b", "ABCDEF")
	s.link("chan-other", "GHJKLM")

	result, err := s.broadcaster.BroadcastToGame(s.ctx, "ABCDEF", message.Pong{}, "chan-a")
	s.Require().NoError(err)

	s.Equal([]model.ChannelID{"chan-b"}, result.Delivered)
	s.Equal(0, s.pusher.count("chan-a"))
	s.Equal(0, s.pusher.count("chan-other"))
}

func (s *BroadcasterSuite) TestBroadcastToGameWithNoChannels() {
	result, err := s.broadcaster.BroadcastToGame(s.ctx, "ABCDEF", message.Pong{}, "")
	s.Require().NoError(err)
	s.Empty(result.Delivered)
	s.Empty(result.Failed)
}

// BroadcastToMany tests

func (s *BroadcasterSuite) TestBroadcastToManyPartitionsOutcomes() {
	s.link("chan-gone", "ABCDEF")
	s.pusher.failures["chan-gone"] = ErrGone
	s.pusher.failures["chan-broken"] = errors.New("timeout")

	result := s.broadcaster.BroadcastToMany(s.ctx,
		[]model.ChannelID{"chan-ok", "chan-gone", "chan-broken", "chan-ok-2"}, message.Pong{})

	s.Equal([]model.ChannelID{"chan-ok", "chan-ok-2"}, result.Delivered)
	s.Equal([]model.ChannelID{"chan-gone", "chan-broken"}, result.Failed)
}

// Node tests

func (s *BroadcasterSuite) hold(id model.ChannelID, node model.NodeID) {
	s.link(id, "ABCDEF")
	conn, err := s.storage.GetConnection(s.ctx, id)
	s.Require().NoError(err)
	conn.NodeID = node
	s.Require().NoError(s.storage.PutConnection(s.ctx, conn))
}

func (s *BroadcasterSuite) TestChannelHeldElsewhereIsNotPrunedWithoutRelay() {
	b := New(s.storage, s.pusher, testutil.NopLogger(), WithNode("node-a"))
	s.hold("chan-1", "node-b")
	s.pusher.failures["chan-1"] = ErrGone

	ok, err := b.SendTo(s.ctx, "chan-1", message.Pong{})
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.storage.GetConnection(s.ctx, "chan-1")
	s.NoError(err)
}

func (s *BroadcasterSuite) TestChannelHeldElsewhereIsRelayed() {
	relay := newRecordingRelay()
	b := New(s.storage, s.pusher, testutil.NopLogger(), WithNode("node-a"), WithRelay(relay))
	s.hold("chan-local", "node-a")
	s.hold("chan-remote", "node-b")
	s.pusher.failures["chan-remote"] = ErrGone

	result, err := b.BroadcastToGame(s.ctx, "ABCDEF", message.Pong{}, "")
	s.Require().NoError(err)

	s.ElementsMatch([]model.ChannelID{"chan-local", "chan-remote"}, result.Delivered)
	s.Equal([]model.ChannelID{"chan-remote"}, relay.forwarded["node-b"])
	s.Empty(relay.forwarded["node-a"])

	_, err = s.storage.GetConnection(s.ctx, "chan-remote")
	s.NoError(err)
}

func (s *BroadcasterSuite) TestOwnGoneChannelIsPrunedNotRelayed() {
	relay := newRecordingRelay()
	b := New(s.storage, s.pusher, testutil.NopLogger(), WithNode("node-a"), WithRelay(relay))
	s.hold("chan-1", "node-a")
	s.pusher.failures["chan-1"] = ErrGone

	ok, err := b.SendTo(s.ctx, "chan-1", message.Pong{})
	s.Require().NoError(err)
	s.False(ok)
	s.Empty(relay.forwarded)

	_, err = s.storage.GetConnection(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *BroadcasterSuite) TestChannelOfSilentNodeIsPruned() {
	relay := newRecordingRelay()
	relay.silent["node-dead"] = true
	b := New(s.storage, s.pusher, testutil.NopLogger(), WithNode("node-a"), WithRelay(relay))
	s.hold("chan-1", "node-dead")
	s.pusher.failures["chan-1"] = ErrGone

	ok, err := b.SendTo(s.ctx, "chan-1", message.Pong{})
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.storage.GetConnection(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *BroadcasterSuite) TestDeliverRelayed() {
	b := New(s.storage, s.pusher, testutil.NopLogger(), WithNode("node-b"))
	s.hold("chan-here", "node-b")
	s.hold("chan-gone", "node-b")
	s.hold("chan-moved", "node-c")
	s.pusher.failures["chan-gone"] = ErrGone
	s.pusher.failures["chan-moved"] = ErrGone

	s.Require().NoError(b.DeliverRelayed(s.ctx, "chan-here", []byte(`{"type":"pong"}`)))
	s.Equal(1, s.pusher.count("chan-here"))

	s.Require().NoError(b.DeliverRelayed(s.ctx, "chan-gone", []byte(`{"type":"pong"}`)))
	_, err := s.storage.GetConnection(s.ctx, "chan-gone")
	s.ErrorIs(err, model.ErrConnectionNotFound)

	s.Require().NoError(b.DeliverRelayed(s.ctx, "chan-moved", []byte(`{"type":"pong"}`)))
	_, err = s.storage.GetConnection(s.ctx, "chan-moved")
	s.NoError(err)
}

// Fallback tests

func (s *BroadcasterSuite) TestFallbackTriesNextPusherWhenGone() {
	first := newRecordingPusher()
	first.failures["chan-1"] = ErrGone
	second := newRecordingPusher()

	err := Fallback(first, second).Push(s.ctx, "chan-1", []byte("{}"))
	s.Require().NoError(err)
	s.Equal(1, second.count("chan-1"))

	second.failures["chan-1"] = ErrGone
	err = Fallback(first, second).Push(s.ctx, "chan-1", []byte("{}"))
	s.ErrorIs(err, ErrGone)
}
