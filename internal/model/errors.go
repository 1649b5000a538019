package model

import "errors"

// Common errors used across the application
var (
	// Game errors
	ErrGameNotFound       = errors.New("game not found")
	ErrGameFull           = errors.New("game is full")
	ErrGameAlreadyStarted = errors.New("game has already started")
	ErrGameNotStarted     = errors.New("game has not started")
	ErrNotGameCreator     = errors.New("only the creator can start the game")
	ErrInvalidBoard       = errors.New("invalid board configuration")

	// Player errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrInvalidName    = errors.New("player name is required")

	// Connection errors
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrContention means optimistic writes kept losing races past the retry bound
	ErrContention = errors.New("too much contention, try again")
)
