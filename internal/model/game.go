package model

import "time"

// GameCode is the short human-shareable identifier for a game
type GameCode string

// GameStatus represents the lifecycle phase of a game
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"  // Accepting joins, not yet started
	GameStatusPlaying  GameStatus = "playing"  // Dice may be rolled
	GameStatusFinished GameStatus = "finished" // Terminal, WinnerID is set
)

// Game is the authoritative record of a single session
type Game struct {
	Code      GameCode    `json:"code"`
	Status    GameStatus  `json:"status"`
	CreatorID PlayerID    `json:"creatorId"`
	Board     BoardConfig `json:"board"`
	WinnerID  PlayerID    `json:"winnerId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// IsFinished returns true once a winner has been recorded
func (g *Game) IsFinished() bool {
	return g.Status == GameStatusFinished
}

// GameSummary is the admin listing view of a game
type GameSummary struct {
	Code           GameCode   `json:"code"`
	Status         GameStatus `json:"status"`
	PlayerCount    int        `json:"playerCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	LeaderName     string     `json:"leaderName,omitempty"`
	LeaderPosition int        `json:"leaderPosition"`
}
