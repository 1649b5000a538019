package message

import (
	"encoding/json"
	"fmt"

	"github.com/mcoot/snakesgame/internal/model"
)

// Type discriminates server messages
type Type string

const (
	TypeGameState    Type = "gameState"
	TypeJoinedGame   Type = "joinedGame"
	TypePlayerJoined Type = "playerJoined"
	TypePlayerLeft   Type = "playerLeft"
	TypePlayerMoved  Type = "playerMoved"
	TypeGameStarted  Type = "gameStarted"
	TypeGameEnded    Type = "gameEnded"
	TypeError        Type = "error"
	TypePong         Type = "pong"
)

// ServerMessage is implemented only by the types in this file
type ServerMessage interface {
	Type() Type
	serverMessage()
}

// GameState is a full snapshot of a game
type GameState struct {
	Game    *model.Game     `json:"game"`
	Players []*model.Player `json:"players"`
}

// JoinedGame answers the joining channel with its identity and the current state
type JoinedGame struct {
	PlayerID model.PlayerID  `json:"playerId"`
	Game     *model.Game     `json:"game"`
	Players  []*model.Player `json:"players"`
}

// PlayerJoined tells the other participants about a new player
type PlayerJoined struct {
	Player *model.Player `json:"player"`
}

// PlayerLeft is sent when a player's channel closes
type PlayerLeft struct {
	PlayerID   model.PlayerID `json:"playerId"`
	PlayerName string         `json:"playerName"`
}

// PlayerMoved reports one resolved roll
type PlayerMoved struct {
	PlayerID         model.PlayerID    `json:"playerId"`
	PlayerName       string            `json:"playerName"`
	DiceRoll         int               `json:"diceRoll"`
	PreviousPosition int               `json:"previousPosition"`
	NewPosition      int               `json:"newPosition"`
	Effect           *model.MoveEffect `json:"effect,omitempty"`
}

// GameStarted is broadcast once when a game enters play
type GameStarted struct {
	Game *model.Game `json:"game"`
}

// GameEnded is broadcast once when a winner is recorded
type GameEnded struct {
	WinnerID   model.PlayerID `json:"winnerId"`
	WinnerName string         `json:"winnerName"`
}

// Error reports a failed request to the requesting channel only
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Pong answers Ping
type Pong struct{}

func (GameState) Type() Type    { return TypeGameState }
func (JoinedGame) Type() Type   { return TypeJoinedGame }
func (PlayerJoined) Type() Type { return TypePlayerJoined }
func (PlayerLeft) Type() Type   { return TypePlayerLeft }
func (PlayerMoved) Type() Type  { return TypePlayerMoved }
func (GameStarted) Type() Type  { return TypeGameStarted }
func (GameEnded) Type() Type    { return TypeGameEnded }
func (Error) Type() Type        { return TypeError }
func (Pong) Type() Type         { return TypePong }

func (GameState) serverMessage()    {}
func (JoinedGame) serverMessage()   {}
func (PlayerJoined) serverMessage() {}
func (PlayerLeft) serverMessage()   {}
func (PlayerMoved) serverMessage()  {}
func (GameStarted) serverMessage()  {}
func (GameEnded) serverMessage()    {}
func (Error) serverMessage()        {}
func (Pong) serverMessage()         {}

func (m GameState) MarshalJSON() ([]byte, error) {
	type alias GameState
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypeGameState, alias(m)})
}

func (m JoinedGame) MarshalJSON() ([]byte, error) {
	type alias JoinedGame
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypeJoinedGame, alias(m)})
}

func (m PlayerJoined) MarshalJSON() ([]byte, error) {
	type alias PlayerJoined
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypePlayerJoined, alias(m)})
}

func (m PlayerLeft) MarshalJSON() ([]byte, error) {
	type alias PlayerLeft
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypePlayerLeft, alias(m)})
}

func (m PlayerMoved) MarshalJSON() ([]byte, error) {
	type alias PlayerMoved
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypePlayerMoved, alias(m)})
}

func (m GameStarted) MarshalJSON() ([]byte, error) {
	type alias GameStarted
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypeGameStarted, alias(m)})
}

func (m GameEnded) MarshalJSON() ([]byte, error) {
	type alias GameEnded
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypeGameEnded, alias(m)})
}

func (m Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{TypeError, alias(m)})
}

func (m Pong) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Type `json:"type"`
	}{TypePong})
}

// Encode serializes a server message with its type discriminator
func Encode(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeServer parses an outbound payload, as a client would
func DecodeServer(data []byte) (ServerMessage, error) {
	var envelope struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		msg ServerMessage
		err error
	)
	switch envelope.Type {
	case TypeGameState:
		var m GameState
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeJoinedGame:
		var m JoinedGame
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlayerJoined:
		var m PlayerJoined
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlayerLeft:
		var m PlayerLeft
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlayerMoved:
		var m PlayerMoved
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeGameStarted:
		var m GameStarted
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeGameEnded:
		var m GameEnded
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeError:
		var m Error
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePong:
		msg = Pong{}
	default:
		return nil, fmt.Errorf("unknown message type %q", envelope.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}
