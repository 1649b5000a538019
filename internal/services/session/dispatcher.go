// Package session turns channel events into game operations and the pushes
// that follow them. It is shared by every transport.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcoot/snakesgame/internal/message"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
	"github.com/mcoot/snakesgame/internal/services/connection"
	"github.com/mcoot/snakesgame/internal/services/game"
)

// Dispatcher handles channel lifecycle events and inbound messages
type Dispatcher struct {
	games       *game.Controller
	registry    *connection.Registry
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(
	games *game.Controller,
	registry *connection.Registry,
	broadcaster *broadcast.Broadcaster,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		games:       games,
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "session")),
	}
}

// HandleOpen registers a newly opened channel
func (d *Dispatcher) HandleOpen(ctx context.Context, id model.ChannelID) error {
	_, err := d.registry.Open(ctx, id)
	return err
}

// HandleClose forgets a channel and tells the rest of the game its player left
func (d *Dispatcher) HandleClose(ctx context.Context, id model.ChannelID) error {
	link, err := d.registry.Close(ctx, id)
	if err != nil {
		return err
	}
	return d.announceLeft(ctx, link, id)
}

func (d *Dispatcher) announceLeft(ctx context.Context, link connection.Linkage, id model.ChannelID) error {
	if !link.IsLinked() || link.Superseded {
		return nil
	}
	_, err := d.broadcaster.BroadcastToGame(ctx, link.GameCode, message.PlayerLeft{
		PlayerID:   link.PlayerID,
		PlayerName: link.PlayerName,
	}, id)
	return err
}

// HandleMessage decodes and applies one inbound payload.
// Failures are answered on the channel as error messages; the returned error
// is reserved for transport faults the caller should act on.
func (d *Dispatcher) HandleMessage(ctx context.Context, id model.ChannelID, payload []byte) error {
	msg, err := message.ParseClient(payload)
	if err != nil {
		return d.fail(ctx, id, "", err)
	}

	switch m := msg.(type) {
	case message.Ping:
		_, err = d.broadcaster.SendTo(ctx, id, message.Pong{})
		return err
	case message.JoinGame:
		err = d.joinGame(ctx, id, m)
	case message.StartGame:
		err = d.startGame(ctx, id, m)
	case message.RollDice:
		err = d.rollDice(ctx, id, m)
	default:
		err = fmt.Errorf("%w: %q", message.ErrUnknownAction, msg.Action())
	}
	if err != nil {
		return d.fail(ctx, id, msg.Action(), err)
	}
	return nil
}

// fail reports err to the channel, logging anything that is not a domain failure
func (d *Dispatcher) fail(ctx context.Context, id model.ChannelID, action message.Action, err error) error {
	reply := message.ErrorFor(err)
	if reply.Code == message.CodeInternalError {
		d.logger.Error("request failed",
			slog.String("channel_id", string(id)),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	} else {
		d.logger.Debug("request rejected",
			slog.String("channel_id", string(id)),
			slog.String("action", string(action)),
			slog.String("code", string(reply.Code)),
		)
	}
	_, sendErr := d.broadcaster.SendTo(ctx, id, reply)
	return sendErr
}

func (d *Dispatcher) joinGame(ctx context.Context, id model.ChannelID, m message.JoinGame) error {
	result, err := d.games.JoinGame(ctx, m.GameCode, m.PlayerName)
	if err != nil {
		return err
	}
	displaced, err := d.registry.Link(ctx, id, result.Game.Code, result.Player.ID)
	if err != nil {
		return err
	}
	// A channel rejoining as someone else takes leave of its previous seat
	if err := d.announceLeft(ctx, displaced, id); err != nil {
		return err
	}

	result.Player.IsConnected = true
	for _, p := range result.Players {
		if p.ID == result.Player.ID {
			p.IsConnected = true
		}
	}

	if _, err := d.broadcaster.SendTo(ctx, id, message.JoinedGame{
		PlayerID: result.Player.ID,
		Game:     result.Game,
		Players:  result.Players,
	}); err != nil {
		return err
	}

	_, err = d.broadcaster.BroadcastToGame(ctx, result.Game.Code, message.PlayerJoined{Player: result.Player}, id)
	return err
}

func (d *Dispatcher) startGame(ctx context.Context, id model.ChannelID, m message.StartGame) error {
	result, err := d.games.StartGame(ctx, m.GameCode, m.PlayerID)
	if err != nil {
		return err
	}

	if !result.Started {
		// Redelivered start: bring the caller up to date without re-announcing
		snapshot, err := d.games.GetGame(ctx, m.GameCode)
		if err != nil {
			return err
		}
		_, err = d.broadcaster.SendTo(ctx, id, message.GameState{Game: snapshot.Game, Players: snapshot.Players})
		return err
	}

	_, err = d.broadcaster.BroadcastToGame(ctx, m.GameCode, message.GameStarted{Game: result.Game}, "")
	return err
}

func (d *Dispatcher) rollDice(ctx context.Context, id model.ChannelID, m message.RollDice) error {
	result, err := d.games.RollDice(ctx, m.GameCode, m.PlayerID)
	if err != nil {
		return err
	}

	move := result.Move
	if _, err := d.broadcaster.BroadcastToGame(ctx, m.GameCode, message.PlayerMoved{
		PlayerID:         move.PlayerID,
		PlayerName:       move.PlayerName,
		DiceRoll:         move.DiceRoll,
		PreviousPosition: move.PreviousPosition,
		NewPosition:      move.NewPosition,
		Effect:           move.Effect,
	}, ""); err != nil {
		return err
	}

	if !result.IsWinner {
		return nil
	}
	_, err = d.broadcaster.BroadcastToGame(ctx, m.GameCode, message.GameEnded{
		WinnerID:   result.Player.ID,
		WinnerName: result.Player.Name,
	}, "")
	return err
}
