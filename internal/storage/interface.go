package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mcoot/snakesgame/internal/model"
)

// ErrConditionFailed is returned when a conditional write loses to a
// concurrent writer. It is distinct from the not-found sentinels in model
// and from infrastructure errors.
var ErrConditionFailed = errors.New("storage: condition failed")

// WriteCondition guards a create-style write.
// The zero value is an unconditional write.
type WriteCondition struct {
	// IfAbsent requires that no item with the same key exists yet
	IfAbsent bool

	// CheckPlayerCount requires that the game currently holds exactly
	// PlayerCount players. Only meaningful for PutPlayer.
	CheckPlayerCount bool
	PlayerCount      int
}

// Always is the unconditional write
func Always() WriteCondition {
	return WriteCondition{}
}

// IfAbsent only writes when the key is unused
func IfAbsent() WriteCondition {
	return WriteCondition{IfAbsent: true}
}

// IfPlayerCount only writes a new player when the game holds exactly n players
func IfPlayerCount(n int) WriteCondition {
	return WriteCondition{IfAbsent: true, CheckPlayerCount: true, PlayerCount: n}
}

// Storage defines the interface for session persistence.
//
// Every write that can race is a conditional write keyed on the value the
// caller last observed. Callers never hold locks across calls.
type Storage interface {
	// Game operations
	GetGame(ctx context.Context, code model.GameCode) (*model.Game, error)
	PutGame(ctx context.Context, game *model.Game, cond WriteCondition) error
	// UpdateGameStatus moves a game from one status to another, failing with
	// ErrConditionFailed if the stored status is no longer from.
	UpdateGameStatus(ctx context.Context, code model.GameCode, from, to model.GameStatus, winnerID model.PlayerID, at time.Time) error
	// GetAllGames returns every game, newest first
	GetAllGames(ctx context.Context) ([]*model.Game, error)

	// Player operations
	GetPlayer(ctx context.Context, code model.GameCode, id model.PlayerID) (*model.Player, error)
	// GetPlayers returns the players of a game in join order
	GetPlayers(ctx context.Context, code model.GameCode) ([]*model.Player, error)
	PutPlayer(ctx context.Context, player *model.Player, cond WriteCondition) error
	// UpdatePlayerPosition fails with ErrConditionFailed if the stored position is no longer from
	UpdatePlayerPosition(ctx context.Context, code model.GameCode, id model.PlayerID, from, to int) error
	UpdatePlayerConnection(ctx context.Context, code model.GameCode, id model.PlayerID, channel model.ChannelID, connected bool) error

	// Move operations
	AppendMove(ctx context.Context, move *model.Move) error
	// GetMoves returns the moves of a game in append order
	GetMoves(ctx context.Context, code model.GameCode) ([]*model.Move, error)

	// Connection operations
	GetConnection(ctx context.Context, id model.ChannelID) (*model.Connection, error)
	PutConnection(ctx context.Context, conn *model.Connection) error
	// DeleteConnection is idempotent
	DeleteConnection(ctx context.Context, id model.ChannelID) error
	GetConnectionsForGame(ctx context.Context, code model.GameCode) ([]*model.Connection, error)
}

// Reaper is implemented by backends that cannot expire connections natively
type Reaper interface {
	// ReapExpired deletes every connection whose expiry is at or before now,
	// returning how many were removed
	ReapExpired(ctx context.Context, now time.Time) (int, error)
}
