package game

import (
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/board"
)

const (
	// CodeLength is the length of generated game codes
	CodeLength = 6
	// CodeAlphabet is the characters used in game codes (avoid confusing chars)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Config holds the values a Controller is built with
type Config struct {
	// Board is used when a game is created without its own board
	Board model.BoardConfig

	// Palette assigns player colors in seat order; its length is the seat limit
	Palette []string

	// Bounds on optimistic retries
	MaxJoinAttempts int
	MaxRollAttempts int
	MaxCodeAttempts int
}

// DefaultConfig returns the classic board with the full palette
func DefaultConfig() Config {
	return Config{
		Board:           board.DefaultConfig(),
		Palette:         model.DefaultPalette(),
		MaxJoinAttempts: 10,
		MaxRollAttempts: 5,
		MaxCodeAttempts: 10,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Board.Size == 0 {
		c.Board = defaults.Board
	}
	if len(c.Palette) == 0 {
		c.Palette = defaults.Palette
	}
	if c.MaxJoinAttempts <= 0 {
		c.MaxJoinAttempts = defaults.MaxJoinAttempts
	}
	if c.MaxRollAttempts <= 0 {
		c.MaxRollAttempts = defaults.MaxRollAttempts
	}
	if c.MaxCodeAttempts <= 0 {
		c.MaxCodeAttempts = defaults.MaxCodeAttempts
	}
	return c
}
