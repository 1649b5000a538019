package model

import "time"

// MoveID identifies a single entry in a game's move log
type MoveID string

// Move is a write-once record of one dice roll
type Move struct {
	ID               MoveID      `json:"id"`
	GameCode         GameCode    `json:"gameCode"`
	PlayerID         PlayerID    `json:"playerId"`
	PlayerName       string      `json:"playerName"`
	PlayerColor      string      `json:"playerColor"`
	DiceRoll         int         `json:"diceRoll"`
	PreviousPosition int         `json:"previousPosition"`
	NewPosition      int         `json:"newPosition"`
	Effect           *MoveEffect `json:"effect,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
}
