package connection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/snakesgame/internal/dependencies/mocks"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
	"github.com/mcoot/snakesgame/internal/storage/memory"
	"github.com/mcoot/snakesgame/internal/testutil"
)

type RegistrySuite struct {
	suite.Suite
	storage  *memory.Storage
	clock    *mocks.MockClock
	registry *Registry
	ctx      context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = NewRegistry(s.storage, s.clock, DefaultTTL, testutil.NopLogger())
	s.ctx = context.Background()

	s.Require().NoError(s.storage.PutPlayer(s.ctx, &model.Player{
		ID:       "p1",
		GameCode: "ABCDEF",
		Name:     "Ann",
		Position: 7,
	}, storage.IfAbsent()))
}

func (s *RegistrySuite) link(id model.ChannelID, code model.GameCode, playerID model.PlayerID) {
	displaced, err := s.registry.Link(s.ctx, id, code, playerID)
	s.Require().NoError(err)
	s.False(displaced.IsLinked())
}

// Open tests

func (s *RegistrySuite) TestOpenSetsExpiry() {
	conn, err := s.registry.Open(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(s.clock.Now().Add(24*time.Hour), conn.ExpiresAt)
	s.False(conn.IsLinked())

	stored, err := s.storage.GetConnection(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(conn.ExpiresAt, stored.ExpiresAt)
}

func (s *RegistrySuite) TestGetTreatsExpiredAsGone() {
	_, err := s.registry.OpenWithTTL(s.ctx, "chan-1", 5*time.Minute)
	s.Require().NoError(err)

	s.clock.Advance(5 * time.Minute)

	_, err = s.registry.Get(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)

	_, err = s.storage.GetConnection(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *RegistrySuite) TestTouchExtendsExpiry() {
	_, err := s.registry.OpenWithTTL(s.ctx, "chan-1", 5*time.Minute)
	s.Require().NoError(err)

	s.clock.Advance(4 * time.Minute)
	_, err = s.registry.Touch(s.ctx, "chan-1", 5*time.Minute)
	s.Require().NoError(err)

	s.clock.Advance(4 * time.Minute)
	_, err = s.registry.Get(s.ctx, "chan-1")
	s.NoError(err)
}

// Link tests

func (s *RegistrySuite) TestLinkMarksPlayerConnected() {
	_, err := s.registry.Open(s.ctx, "chan-1")
	s.Require().NoError(err)

	s.link("chan-1", "ABCDEF", "p1")

	conn, err := s.registry.Get(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(model.GameCode("ABCDEF"), conn.GameCode)
	s.Equal(model.PlayerID("p1"), conn.PlayerID)

	player, err := s.storage.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.True(player.IsConnected)
	s.Equal(model.ChannelID("chan-1"), player.ChannelID)
	s.Equal(7, player.Position)
}

func (s *RegistrySuite) TestLinkIsIdempotent() {
	_, err := s.registry.Open(s.ctx, "chan-1")
	s.Require().NoError(err)

	s.link("chan-1", "ABCDEF", "p1")
	s.link("chan-1", "ABCDEF", "p1")

	conns, err := s.storage.GetConnectionsForGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Len(conns, 1)
}

func (s *RegistrySuite) TestLinkUnknownChannelOrPlayer() {
	_, err := s.registry.Link(s.ctx, "missing", "ABCDEF", "p1")
	s.ErrorIs(err, model.ErrConnectionNotFound)

	_, err = s.registry.Open(s.ctx, "chan-1")
	s.Require().NoError(err)
	_, err = s.registry.Link(s.ctx, "chan-1", "ABCDEF", "ghost")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *RegistrySuite) TestRelinkDisconnectsPreviousPlayer() {
	s.Require().NoError(s.storage.PutPlayer(s.ctx, &model.Player{
		ID:       "p2",
		GameCode: "GHJKLM",
		Name:     "Ben",
	}, storage.IfAbsent()))

	_, err := s.registry.Open(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.link("chan-1", "ABCDEF", "p1")

	displaced, err := s.registry.Link(s.ctx, "chan-1", "GHJKLM", "p2")
	s.Require().NoError(err)
	s.Equal(Linkage{GameCode: "ABCDEF", PlayerID: "p1", PlayerName: "Ann"}, displaced)

	first, err := s.storage.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.False(first.IsConnected)
	s.Empty(first.ChannelID)

	old, err := s.storage.GetConnectionsForGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Empty(old)

	// Closing the channel now only touches the current player
	link, err := s.registry.Close(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p2"), link.PlayerID)

	first, err = s.storage.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.False(first.IsConnected)
	second, err := s.storage.GetPlayer(s.ctx, "GHJKLM", "p2")
	s.Require().NoError(err)
	s.False(second.IsConnected)
}

func (s *RegistrySuite) TestRelinkKeepsPreviousPlayersNewerChannel() {
	for _, id := range []model.ChannelID{"chan-1", "chan-2"} {
		_, err := s.registry.Open(s.ctx, id)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.storage.PutPlayer(s.ctx, &model.Player{
		ID:       "p2",
		GameCode: "ABCDEF",
		Name:     "Ben",
	}, storage.IfAbsent()))

	s.link("chan-1", "ABCDEF", "p1")
	s.link("chan-2", "ABCDEF", "p1")

	displaced, err := s.registry.Link(s.ctx, "chan-1", "ABCDEF", "p2")
	s.Require().NoError(err)
	s.True(displaced.Superseded)

	first, err := s.storage.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.True(first.IsConnected)
	s.Equal(model.ChannelID("chan-2"), first.ChannelID)
}

// Node tests

func (s *RegistrySuite) TestOpenAndTouchStampNode() {
	nodeA := NewRegistry(s.storage, s.clock, DefaultTTL, testutil.NopLogger(), WithNode("node-a"))
	nodeB := NewRegistry(s.storage, s.clock, DefaultTTL, testutil.NopLogger(), WithNode("node-b"))

	conn, err := nodeA.OpenWithTTL(s.ctx, "poll_1", 5*time.Minute)
	s.Require().NoError(err)
	s.Equal(model.NodeID("node-a"), conn.NodeID)
	s.Equal(5*time.Minute, conn.TTL)

	s.clock.Advance(time.Minute)
	conn, err = nodeB.Touch(s.ctx, "poll_1", 5*time.Minute)
	s.Require().NoError(err)
	s.Equal(model.NodeID("node-b"), conn.NodeID)
	s.Equal(s.clock.Now().Add(5*time.Minute), conn.ExpiresAt)

	stored, err := s.storage.GetConnection(s.ctx, "poll_1")
	s.Require().NoError(err)
	s.Equal(model.NodeID("node-b"), stored.NodeID)
}

// Close tests

func (s *RegistrySuite) TestCloseDisconnectsLinkedPlayer() {
	_, err := s.registry.Open(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.link("chan-1", "ABCDEF", "p1")

	link, err := s.registry.Close(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(Linkage{GameCode: "ABCDEF", PlayerID: "p1", PlayerName: "Ann"}, link)

	player, err := s.storage.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.False(player.IsConnected)
	s.Empty(player.ChannelID)
	s.Equal(7, player.Position)

	_, err = s.registry.Get(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *RegistrySuite) TestCloseUnknownChannelIsNoOp() {
	link, err := s.registry.Close(s.ctx, "never-opened")
	s.Require().NoError(err)
	s.False(link.IsLinked())
}

func (s *RegistrySuite) TestCloseUnlinkedChannel() {
	_, err := s.registry.Open(s.ctx, "chan-1")
	s.Require().NoError(err)

	link, err := s.registry.Close(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.False(link.IsLinked())

	_, err = s.storage.GetConnection(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)
}

func (s *RegistrySuite) TestCloseStaleChannelKeepsNewerLink() {
	for _, id := range []model.ChannelID{"chan-old", "chan-new"} {
		_, err := s.registry.Open(s.ctx, id)
		s.Require().NoError(err)
		s.link(id, "ABCDEF", "p1")
	}

	link, err := s.registry.Close(s.ctx, "chan-old")
	s.Require().NoError(err)
	s.True(link.Superseded)

	player, err := s.storage.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.True(player.IsConnected)
	s.Equal(model.ChannelID("chan-new"), player.ChannelID)
}
