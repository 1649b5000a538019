// Package storagetest holds the behavioral suite every storage backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
)

// Suite exercises a storage.Storage implementation.
// Backends run it with suite.Run(t, &storagetest.Suite{NewStorage: ...}).
type Suite struct {
	suite.Suite

	// NewStorage returns an empty store. Cleanup is registered on t.
	NewStorage func(t *testing.T) storage.Storage

	store storage.Storage
	ctx   context.Context
	now   time.Time
}

func (s *Suite) SetupTest() {
	s.store = s.NewStorage(s.T())
	s.ctx = context.Background()
	s.now = time.Now().UTC()
}

func (s *Suite) game(code model.GameCode, createdAt time.Time) *model.Game {
	return &model.Game{
		Code:      code,
		Status:    model.GameStatusWaiting,
		CreatorID: "creator",
		Board: model.BoardConfig{
			Size: 20,
			SnakesAndLadders: []model.SnakeOrLadder{
				{Start: 3, End: 11, Kind: model.EffectLadder},
				{Start: 17, End: 4, Kind: model.EffectSnake},
			},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func (s *Suite) player(code model.GameCode, id model.PlayerID, name string) *model.Player {
	return &model.Player{
		ID:       id,
		GameCode: code,
		Name:     name,
		Color:    "#D92626",
		JoinedAt: s.now,
	}
}

// Game tests

func (s *Suite) TestGetGameNotFound() {
	_, err := s.store.GetGame(s.ctx, "NOPE42")
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestPutAndGetGame() {
	game := s.game("ABCDEF", s.now)
	s.Require().NoError(s.store.PutGame(s.ctx, game, storage.IfAbsent()))

	got, err := s.store.GetGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Equal(game.Code, got.Code)
	s.Equal(model.GameStatusWaiting, got.Status)
	s.Equal(game.Board, got.Board)
	s.Empty(got.WinnerID)
	s.True(game.CreatedAt.Equal(got.CreatedAt))
}

func (s *Suite) TestPutGameIfAbsentRejectsExistingCode() {
	s.Require().NoError(s.store.PutGame(s.ctx, s.game("ABCDEF", s.now), storage.IfAbsent()))

	err := s.store.PutGame(s.ctx, s.game("ABCDEF", s.now), storage.IfAbsent())
	s.ErrorIs(err, storage.ErrConditionFailed)

	replacement := s.game("ABCDEF", s.now)
	replacement.CreatorID = "someone-else"
	s.Require().NoError(s.store.PutGame(s.ctx, replacement, storage.Always()))

	got, err := s.store.GetGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("someone-else"), got.CreatorID)
}

func (s *Suite) TestUpdateGameStatusIsGuarded() {
	s.Require().NoError(s.store.PutGame(s.ctx, s.game("ABCDEF", s.now), storage.IfAbsent()))
	later := s.now.Add(time.Minute)

	err := s.store.UpdateGameStatus(s.ctx, "ABCDEF", model.GameStatusWaiting, model.GameStatusPlaying, "", later)
	s.Require().NoError(err)

	err = s.store.UpdateGameStatus(s.ctx, "ABCDEF", model.GameStatusWaiting, model.GameStatusPlaying, "", later)
	s.ErrorIs(err, storage.ErrConditionFailed)

	err = s.store.UpdateGameStatus(s.ctx, "ABCDEF", model.GameStatusPlaying, model.GameStatusFinished, "winner", later)
	s.Require().NoError(err)

	got, err := s.store.GetGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Equal(model.GameStatusFinished, got.Status)
	s.Equal(model.PlayerID("winner"), got.WinnerID)
	s.True(later.Equal(got.UpdatedAt))
}

func (s *Suite) TestUpdateGameStatusNotFound() {
	err := s.store.UpdateGameStatus(s.ctx, "NOPE42", model.GameStatusWaiting, model.GameStatusPlaying, "", s.now)
	s.ErrorIs(err, model.ErrGameNotFound)
}

func (s *Suite) TestGetAllGamesNewestFirst() {
	s.Require().NoError(s.store.PutGame(s.ctx, s.game("OLDEST", s.now), storage.IfAbsent()))
	s.Require().NoError(s.store.PutGame(s.ctx, s.game("NEWEST", s.now.Add(2*time.Minute)), storage.IfAbsent()))
	s.Require().NoError(s.store.PutGame(s.ctx, s.game("MIDDLE", s.now.Add(time.Minute)), storage.IfAbsent()))

	games, err := s.store.GetAllGames(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(games, 3)
	s.Equal(model.GameCode("NEWEST"), games[0].Code)
	s.Equal(model.GameCode("MIDDLE"), games[1].Code)
	s.Equal(model.GameCode("OLDEST"), games[2].Code)
}

// Player tests

func (s *Suite) TestGetPlayerNotFound() {
	_, err := s.store.GetPlayer(s.ctx, "ABCDEF", "missing")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestPlayerIsScopedToGame() {
	s.Require().NoError(s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p1", "Ann"), storage.IfAbsent()))

	_, err := s.store.GetPlayer(s.ctx, "GHJKLM", "p1")
	s.ErrorIs(err, model.ErrPlayerNotFound)

	got, err := s.store.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.Equal("Ann", got.Name)
}

func (s *Suite) TestGetPlayersInJoinOrder() {
	for i, name := range []string{"Zed", "Amy", "Kim"} {
		p := s.player("ABCDEF", model.PlayerID(fmt.Sprintf("p%d", i)), name)
		s.Require().NoError(s.store.PutPlayer(s.ctx, p, storage.IfPlayerCount(i)))
	}

	players, err := s.store.GetPlayers(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(players, 3)
	s.Equal("Zed", players[0].Name)
	s.Equal("Amy", players[1].Name)
	s.Equal("Kim", players[2].Name)

	empty, err := s.store.GetPlayers(s.ctx, "GHJKLM")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *Suite) TestPutPlayerIfAbsentRejectsDuplicateID() {
	s.Require().NoError(s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p1", "Ann"), storage.IfAbsent()))

	err := s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p1", "Ben"), storage.IfAbsent())
	s.ErrorIs(err, storage.ErrConditionFailed)

	got, err := s.store.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.Equal("Ann", got.Name)
}

func (s *Suite) TestPutPlayerChecksPlayerCount() {
	s.Require().NoError(s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p1", "Ann"), storage.IfPlayerCount(0)))

	err := s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p2", "Ben"), storage.IfPlayerCount(0))
	s.ErrorIs(err, storage.ErrConditionFailed)

	s.Require().NoError(s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p2", "Ben"), storage.IfPlayerCount(1)))

	players, err := s.store.GetPlayers(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Len(players, 2)
}

func (s *Suite) TestUpdatePlayerPositionIsGuarded() {
	s.Require().NoError(s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p1", "Ann"), storage.IfAbsent()))

	s.Require().NoError(s.store.UpdatePlayerPosition(s.ctx, "ABCDEF", "p1", 0, 5))

	err := s.store.UpdatePlayerPosition(s.ctx, "ABCDEF", "p1", 0, 9)
	s.ErrorIs(err, storage.ErrConditionFailed)

	got, err := s.store.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.Equal(5, got.Position)
}

func (s *Suite) TestUpdatePlayerPositionNotFound() {
	err := s.store.UpdatePlayerPosition(s.ctx, "ABCDEF", "missing", 0, 3)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestUpdatePlayerConnectionKeepsPosition() {
	s.Require().NoError(s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p1", "Ann"), storage.IfAbsent()))
	s.Require().NoError(s.store.UpdatePlayerPosition(s.ctx, "ABCDEF", "p1", 0, 7))

	s.Require().NoError(s.store.UpdatePlayerConnection(s.ctx, "ABCDEF", "p1", "chan-1", true))

	got, err := s.store.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.True(got.IsConnected)
	s.Equal(model.ChannelID("chan-1"), got.ChannelID)
	s.Equal(7, got.Position)

	s.Require().NoError(s.store.UpdatePlayerConnection(s.ctx, "ABCDEF", "p1", "", false))

	got, err = s.store.GetPlayer(s.ctx, "ABCDEF", "p1")
	s.Require().NoError(err)
	s.False(got.IsConnected)
	s.Empty(got.ChannelID)
}

func (s *Suite) TestUpdatePlayerConnectionNotFound() {
	err := s.store.UpdatePlayerConnection(s.ctx, "ABCDEF", "missing", "chan-1", true)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestConcurrentJoinsClaimOneSeat() {
	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := s.player("ABCDEF", model.PlayerID(fmt.Sprintf("p%d", i)), fmt.Sprintf("racer-%d", i))
			errs[i] = s.store.PutPlayer(s.ctx, p, storage.IfPlayerCount(0))
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.ErrorIs(err, storage.ErrConditionFailed)
	}
	s.Equal(1, successes)

	players, err := s.store.GetPlayers(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Len(players, 1)
}

func (s *Suite) TestConcurrentPositionUpdatesApplyOnce() {
	s.Require().NoError(s.store.PutPlayer(s.ctx, s.player("ABCDEF", "p1", "Ann"), storage.IfAbsent()))

	const racers = 6
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.store.UpdatePlayerPosition(s.ctx, "ABCDEF", "p1", 0, i+1)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.ErrorIs(err, storage.ErrConditionFailed)
	}
	s.Equal(1, successes)
}

// Move tests

func (s *Suite) TestMovesKeepAppendOrder() {
	first := &model.Move{
		ID: "m1", GameCode: "ABCDEF", PlayerID: "p1", PlayerName: "Ann", PlayerColor: "#D92626",
		DiceRoll: 3, PreviousPosition: 0, NewPosition: 11,
		Effect:    &model.MoveEffect{Kind: model.EffectLadder, From: 3, To: 11},
		Timestamp: s.now,
	}
	second := &model.Move{
		ID: "m2", GameCode: "ABCDEF", PlayerID: "p2", PlayerName: "Ben", PlayerColor: "#3E70EA",
		DiceRoll: 2, PreviousPosition: 0, NewPosition: 2,
		Timestamp: s.now.Add(time.Second),
	}
	s.Require().NoError(s.store.AppendMove(s.ctx, first))
	s.Require().NoError(s.store.AppendMove(s.ctx, second))

	moves, err := s.store.GetMoves(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(moves, 2)
	s.Equal(model.MoveID("m1"), moves[0].ID)
	s.Require().NotNil(moves[0].Effect)
	s.Equal(*first.Effect, *moves[0].Effect)
	s.Equal(model.MoveID("m2"), moves[1].ID)
	s.Nil(moves[1].Effect)

	none, err := s.store.GetMoves(s.ctx, "GHJKLM")
	s.Require().NoError(err)
	s.Empty(none)
}

// Connection tests

func (s *Suite) connection(id model.ChannelID) *model.Connection {
	return &model.Connection{
		ChannelID:   id,
		ConnectedAt: s.now,
		ExpiresAt:   s.now.Add(time.Hour),
	}
}

func (s *Suite) TestConnectionLifecycle() {
	s.Require().NoError(s.store.PutConnection(s.ctx, s.connection("chan-1")))

	got, err := s.store.GetConnection(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.False(got.IsLinked())

	got.GameCode = "ABCDEF"
	got.PlayerID = "p1"
	s.Require().NoError(s.store.PutConnection(s.ctx, got))

	conns, err := s.store.GetConnectionsForGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(conns, 1)
	s.Equal(model.PlayerID("p1"), conns[0].PlayerID)

	s.Require().NoError(s.store.DeleteConnection(s.ctx, "chan-1"))
	s.Require().NoError(s.store.DeleteConnection(s.ctx, "chan-1"))

	_, err = s.store.GetConnection(s.ctx, "chan-1")
	s.ErrorIs(err, model.ErrConnectionNotFound)

	conns, err = s.store.GetConnectionsForGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Empty(conns)
}

func (s *Suite) TestConnectionKeepsNodeAndTTL() {
	conn := s.connection("chan-1")
	conn.NodeID = "node-a"
	conn.TTL = 5 * time.Minute
	s.Require().NoError(s.store.PutConnection(s.ctx, conn))

	got, err := s.store.GetConnection(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(model.NodeID("node-a"), got.NodeID)
	s.Equal(5*time.Minute, got.TTL)

	got.NodeID = "node-b"
	s.Require().NoError(s.store.PutConnection(s.ctx, got))
	got, err = s.store.GetConnection(s.ctx, "chan-1")
	s.Require().NoError(err)
	s.Equal(model.NodeID("node-b"), got.NodeID)
}

func (s *Suite) TestConnectionsForGameOnlyListsLinkedChannels() {
	for _, id := range []model.ChannelID{"chan-a", "chan-b", "chan-c"} {
		s.Require().NoError(s.store.PutConnection(s.ctx, s.connection(id)))
	}
	for _, id := range []model.ChannelID{"chan-a", "chan-c"} {
		conn := s.connection(id)
		conn.GameCode = "ABCDEF"
		conn.PlayerID = model.PlayerID("player-" + string(id))
		s.Require().NoError(s.store.PutConnection(s.ctx, conn))
	}

	conns, err := s.store.GetConnectionsForGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Require().Len(conns, 2)
	s.Equal(model.ChannelID("chan-a"), conns[0].ChannelID)
	s.Equal(model.ChannelID("chan-c"), conns[1].ChannelID)
}

func (s *Suite) TestRelinkMovesConnectionBetweenGames() {
	conn := s.connection("chan-1")
	conn.GameCode = "ABCDEF"
	conn.PlayerID = "p1"
	s.Require().NoError(s.store.PutConnection(s.ctx, conn))

	conn.GameCode = "GHJKLM"
	conn.PlayerID = "p9"
	s.Require().NoError(s.store.PutConnection(s.ctx, conn))

	old, err := s.store.GetConnectionsForGame(s.ctx, "ABCDEF")
	s.Require().NoError(err)
	s.Empty(old)

	current, err := s.store.GetConnectionsForGame(s.ctx, "GHJKLM")
	s.Require().NoError(err)
	s.Len(current, 1)
}

// TestReapExpired only applies to backends without native expiry
func (s *Suite) TestReapExpired() {
	reaper, ok := s.store.(storage.Reaper)
	if !ok {
		s.T().Skip("backend expires connections natively")
	}

	fresh := s.connection("fresh")
	stale := s.connection("stale")
	stale.ExpiresAt = s.now.Add(-time.Minute)
	s.Require().NoError(s.store.PutConnection(s.ctx, fresh))
	s.Require().NoError(s.store.PutConnection(s.ctx, stale))

	reaped, err := reaper.ReapExpired(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, reaped)

	_, err = s.store.GetConnection(s.ctx, "stale")
	s.ErrorIs(err, model.ErrConnectionNotFound)
	_, err = s.store.GetConnection(s.ctx, "fresh")
	s.NoError(err)
}
