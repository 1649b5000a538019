package message

import (
	"errors"

	"github.com/mcoot/snakesgame/internal/model"
)

// Code is a client-visible error code
type Code string

const (
	CodeGameNotFound       Code = "GAME_NOT_FOUND"
	CodeGameFull           Code = "GAME_FULL"
	CodeGameAlreadyStarted Code = "GAME_ALREADY_STARTED"
	CodeGameNotStarted     Code = "GAME_NOT_STARTED"
	CodeNotGameCreator     Code = "NOT_GAME_CREATOR"
	CodePlayerNotFound     Code = "PLAYER_NOT_FOUND"
	CodeInvalidMessage     Code = "INVALID_MESSAGE"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// InternalErrorMessage is the only text a client sees for unexpected failures
const InternalErrorMessage = "Internal server error"

// CodeFor maps an error to the code reported to clients.
// Anything unrecognized is an internal error.
func CodeFor(err error) Code {
	switch {
	case errors.Is(err, model.ErrGameNotFound):
		return CodeGameNotFound
	case errors.Is(err, model.ErrGameFull):
		return CodeGameFull
	case errors.Is(err, model.ErrGameAlreadyStarted):
		return CodeGameAlreadyStarted
	case errors.Is(err, model.ErrGameNotStarted):
		return CodeGameNotStarted
	case errors.Is(err, model.ErrNotGameCreator):
		return CodeNotGameCreator
	case errors.Is(err, model.ErrPlayerNotFound):
		return CodePlayerNotFound
	case errors.Is(err, ErrMalformed),
		errors.Is(err, ErrUnknownAction),
		errors.Is(err, model.ErrInvalidName),
		errors.Is(err, model.ErrInvalidBoard):
		return CodeInvalidMessage
	default:
		return CodeInternalError
	}
}

var codeMessages = map[Code]string{
	CodeGameNotFound:       "Game not found",
	CodeGameFull:           "Game is full",
	CodeGameAlreadyStarted: "Game has already started",
	CodeGameNotStarted:     "Game has not started",
	CodeNotGameCreator:     "Only the game creator can start the game",
	CodePlayerNotFound:     "Player not found",
	CodeInternalError:      InternalErrorMessage,
}

// ErrorFor builds the error message sent back to a client.
// Internal failures never leak their detail.
func ErrorFor(err error) Error {
	code := CodeFor(err)
	if text, ok := codeMessages[code]; ok {
		return Error{Code: code, Message: text}
	}
	switch {
	case errors.Is(err, ErrUnknownAction):
		return Error{Code: code, Message: "Unknown action"}
	case errors.Is(err, model.ErrInvalidName):
		return Error{Code: code, Message: "Player name is required"}
	case errors.Is(err, model.ErrInvalidBoard):
		return Error{Code: code, Message: "Invalid board configuration"}
	default:
		return Error{Code: code, Message: "Invalid message"}
	}
}
