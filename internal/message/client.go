// Package message defines the wire messages exchanged over a player's channel.
//
// Both directions are closed unions: inbound messages carry an "action"
// discriminator and outbound messages a "type" discriminator.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcoot/snakesgame/internal/model"
)

// Action discriminates client messages
type Action string

const (
	ActionJoinGame  Action = "joinGame"
	ActionRollDice  Action = "rollDice"
	ActionStartGame Action = "startGame"
	ActionPing      Action = "ping"
)

var (
	// ErrMalformed means the payload was not a JSON object
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownAction means the action discriminator matched no client message
	ErrUnknownAction = errors.New("unknown action")
)

// ClientMessage is implemented only by the types in this file
type ClientMessage interface {
	Action() Action
	clientMessage()
}

// JoinGame asks to join (or rejoin) a game under a display name
type JoinGame struct {
	GameCode   model.GameCode `json:"gameCode"`
	PlayerName string         `json:"playerName"`
}

// RollDice asks to roll for the given player
type RollDice struct {
	GameCode model.GameCode `json:"gameCode"`
	PlayerID model.PlayerID `json:"playerId"`
}

// StartGame asks to move a waiting game into play
type StartGame struct {
	GameCode model.GameCode `json:"gameCode"`
	PlayerID model.PlayerID `json:"playerId"`
}

// Ping is a keepalive answered by Pong
type Ping struct{}

func (JoinGame) Action() Action  { return ActionJoinGame }
func (RollDice) Action() Action  { return ActionRollDice }
func (StartGame) Action() Action { return ActionStartGame }
func (Ping) Action() Action      { return ActionPing }

func (JoinGame) clientMessage()  {}
func (RollDice) clientMessage()  {}
func (StartGame) clientMessage() {}
func (Ping) clientMessage()      {}

func (m JoinGame) MarshalJSON() ([]byte, error) {
	type alias JoinGame
	return json.Marshal(struct {
		Action Action `json:"action"`
		alias
	}{ActionJoinGame, alias(m)})
}

func (m RollDice) MarshalJSON() ([]byte, error) {
	type alias RollDice
	return json.Marshal(struct {
		Action Action `json:"action"`
		alias
	}{ActionRollDice, alias(m)})
}

func (m StartGame) MarshalJSON() ([]byte, error) {
	type alias StartGame
	return json.Marshal(struct {
		Action Action `json:"action"`
		alias
	}{ActionStartGame, alias(m)})
}

func (m Ping) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action Action `json:"action"`
	}{ActionPing})
}

// ParseClient decodes an inbound payload into its concrete message.
// Errors wrap ErrMalformed or ErrUnknownAction.
func ParseClient(data []byte) (ClientMessage, error) {
	var envelope struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg ClientMessage
	switch envelope.Action {
	case ActionJoinGame:
		var m JoinGame
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg = m
	case ActionRollDice:
		var m RollDice
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg = m
	case ActionStartGame:
		var m StartGame
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg = m
	case ActionPing:
		msg = Ping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, envelope.Action)
	}
	return msg, nil
}
