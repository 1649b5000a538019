package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/mcoot/snakesgame/internal/dependencies/clock"
	"github.com/mcoot/snakesgame/internal/dependencies/random"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/board"
	"github.com/mcoot/snakesgame/internal/storage"
)

// Controller manages the game state machine.
// It keeps no state of its own; every transition is a conditional store write.
type Controller struct {
	storage storage.Storage
	cfg     Config
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
}

// NewController creates a new GameController
func NewController(
	storage storage.Storage,
	cfg Config,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage: storage,
		cfg:     cfg.withDefaults(),
		clock:   clock,
		random:  random,
		logger:  logger.With(slog.String("component", "game")),
	}
}

// CreateResult is returned by CreateGame
type CreateResult struct {
	Game   *model.Game
	Player *model.Player
}

// JoinResult is returned by JoinGame
type JoinResult struct {
	Game    *model.Game
	Player  *model.Player
	Players []*model.Player
	// Rejoined is set when the name matched an existing player
	Rejoined bool
}

// StartResult is returned by StartGame
type StartResult struct {
	Game *model.Game
	// Started is false when the game was already in play, so nothing should be broadcast
	Started bool
}

// RollResult is returned by RollDice
type RollResult struct {
	Game     *model.Game
	Player   *model.Player
	Move     *model.Move
	IsWinner bool
}

// Snapshot is a game with its players in join order
type Snapshot struct {
	Game    *model.Game     `json:"game"`
	Players []*model.Player `json:"players"`
}

// Board returns the default board new games are created with
func (c *Controller) Board() model.BoardConfig {
	return c.cfg.Board
}

// CreateGame creates a waiting game with its creator as the first player.
// A nil board uses the configured default.
func (c *Controller) CreateGame(ctx context.Context, creatorName string, boardCfg *model.BoardConfig) (*CreateResult, error) {
	name := strings.TrimSpace(creatorName)
	if name == "" {
		return nil, model.ErrInvalidName
	}

	cfg := c.cfg.Board
	if boardCfg != nil {
		if problems := board.ValidateBoard(*boardCfg); len(problems) > 0 {
			return nil, fmt.Errorf("%w: %s", model.ErrInvalidBoard, strings.Join(problems, "; "))
		}
		cfg = *boardCfg
	}

	now := c.clock.Now()
	creatorID := model.PlayerID(c.random.NewID())

	var game *model.Game
	for attempt := 0; attempt < c.cfg.MaxCodeAttempts; attempt++ {
		candidate := &model.Game{
			Code:      model.GameCode(c.random.String(CodeLength, CodeAlphabet)),
			Status:    model.GameStatusWaiting,
			CreatorID: creatorID,
			Board:     cfg,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := c.storage.PutGame(ctx, candidate, storage.IfAbsent())
		if errors.Is(err, storage.ErrConditionFailed) {
			c.logger.Debug("game code collision", slog.String("game_code", string(candidate.Code)))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create game: %w", err)
		}
		game = candidate
		break
	}
	if game == nil {
		return nil, fmt.Errorf("%w: no free game code after %d attempts", model.ErrContention, c.cfg.MaxCodeAttempts)
	}

	creator := &model.Player{
		ID:       creatorID,
		GameCode: game.Code,
		Name:     name,
		Color:    c.cfg.Palette[0],
		JoinedAt: now,
	}
	if err := c.storage.PutPlayer(ctx, creator, storage.IfPlayerCount(0)); err != nil {
		c.logger.Error("failed to save creator",
			slog.String("game_code", string(game.Code)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("create game %s: %w", game.Code, err)
	}

	c.logger.Info("game created",
		slog.String("game_code", string(game.Code)),
		slog.String("creator_id", string(creatorID)),
		slog.Int("board_size", cfg.Size),
	)

	return &CreateResult{Game: game, Player: creator}, nil
}

// JoinGame adds a named player to a waiting game.
// A name that is already taken (ignoring case) returns that player instead.
func (c *Controller) JoinGame(ctx context.Context, code model.GameCode, playerName string) (*JoinResult, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return nil, model.ErrInvalidName
	}

	for attempt := 0; attempt < c.cfg.MaxJoinAttempts; attempt++ {
		game, err := c.storage.GetGame(ctx, code)
		if err != nil {
			return nil, err
		}
		if game.Status != model.GameStatusWaiting {
			return nil, model.ErrGameAlreadyStarted
		}

		players, err := c.storage.GetPlayers(ctx, code)
		if err != nil {
			return nil, err
		}

		if existing := findByName(players, name); existing != nil {
			return &JoinResult{Game: game, Player: existing, Players: players, Rejoined: true}, nil
		}

		color, ok := c.nextColor(players)
		if !ok {
			return nil, model.ErrGameFull
		}

		player := &model.Player{
			ID:       model.PlayerID(c.random.NewID()),
			GameCode: code,
			Name:     name,
			Color:    color,
			JoinedAt: c.clock.Now(),
		}
		err = c.storage.PutPlayer(ctx, player, storage.IfPlayerCount(len(players)))
		if errors.Is(err, storage.ErrConditionFailed) {
			c.logger.Debug("join lost a race, retrying",
				slog.String("game_code", string(code)),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("join game %s: %w", code, err)
		}

		c.logger.Info("player joined",
			slog.String("game_code", string(code)),
			slog.String("player_id", string(player.ID)),
			slog.Int("player_count", len(players)+1),
		)

		return &JoinResult{Game: game, Player: player, Players: append(players, player)}, nil
	}

	return nil, fmt.Errorf("%w: join game %s", model.ErrContention, code)
}

// StartGame moves a waiting game into play. Only the creator may start it.
// Repeating the request once the game is playing is a no-op with Started unset.
func (c *Controller) StartGame(ctx context.Context, code model.GameCode, requester model.PlayerID) (*StartResult, error) {
	game, err := c.storage.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if game.CreatorID != requester {
		return nil, model.ErrNotGameCreator
	}

	switch game.Status {
	case model.GameStatusPlaying:
		return &StartResult{Game: game}, nil
	case model.GameStatusFinished:
		return nil, model.ErrGameAlreadyStarted
	}

	now := c.clock.Now()
	err = c.storage.UpdateGameStatus(ctx, code, model.GameStatusWaiting, model.GameStatusPlaying, "", now)
	if errors.Is(err, storage.ErrConditionFailed) {
		// A concurrent start won; report whatever state it left behind
		current, getErr := c.storage.GetGame(ctx, code)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == model.GameStatusPlaying {
			return &StartResult{Game: current}, nil
		}
		return nil, model.ErrGameAlreadyStarted
	}
	if err != nil {
		return nil, fmt.Errorf("start game %s: %w", code, err)
	}

	game.Status = model.GameStatusPlaying
	game.UpdatedAt = now

	c.logger.Info("game started", slog.String("game_code", string(code)))

	return &StartResult{Game: game, Started: true}, nil
}

// RollDice rolls once for the player and applies the move.
// The position write is guarded on the position it was computed from, and a
// winning move only wins if it is the one that finishes the game.
func (c *Controller) RollDice(ctx context.Context, code model.GameCode, playerID model.PlayerID) (*RollResult, error) {
	roll := -1

	for attempt := 0; attempt < c.cfg.MaxRollAttempts; attempt++ {
		game, err := c.storage.GetGame(ctx, code)
		if err != nil {
			return nil, err
		}
		if game.Status != model.GameStatusPlaying {
			return nil, model.ErrGameNotStarted
		}

		player, err := c.storage.GetPlayer(ctx, code, playerID)
		if err != nil {
			return nil, err
		}

		if roll < 0 {
			roll = board.RollDie(c.random)
		}
		result := board.ApplyMove(player.Position, roll, game.Board)

		err = c.storage.UpdatePlayerPosition(ctx, code, playerID, player.Position, result.NewPosition)
		if errors.Is(err, storage.ErrConditionFailed) {
			c.logger.Debug("roll lost a race, retrying",
				slog.String("game_code", string(code)),
				slog.String("player_id", string(playerID)),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("move player %s: %w", playerID, err)
		}

		now := c.clock.Now()
		move := &model.Move{
			ID:               model.MoveID(c.random.NewID()),
			GameCode:         code,
			PlayerID:         playerID,
			PlayerName:       player.Name,
			PlayerColor:      player.Color,
			DiceRoll:         roll,
			PreviousPosition: player.Position,
			NewPosition:      result.NewPosition,
			Effect:           result.Effect,
			Timestamp:        now,
		}
		if err := c.storage.AppendMove(ctx, move); err != nil {
			return nil, fmt.Errorf("record move: %w", err)
		}

		player.Position = result.NewPosition
		isWinner := false
		if result.IsWinner {
			isWinner, err = c.finish(ctx, game, playerID, now)
			if err != nil {
				return nil, err
			}
		}

		c.logger.Info("player moved",
			slog.String("game_code", string(code)),
			slog.String("player_id", string(playerID)),
			slog.Int("dice_roll", roll),
			slog.Int("from", move.PreviousPosition),
			slog.Int("to", move.NewPosition),
			slog.Bool("winner", isWinner),
		)

		return &RollResult{Game: game, Player: player, Move: move, IsWinner: isWinner}, nil
	}

	c.logger.Warn("roll gave up under contention",
		slog.String("game_code", string(code)),
		slog.String("player_id", string(playerID)),
	)
	return nil, fmt.Errorf("%w: roll for %s", model.ErrContention, playerID)
}

// finish records the winner if the game is still playing.
// It reports false when another winning move got there first.
func (c *Controller) finish(ctx context.Context, game *model.Game, winnerID model.PlayerID, now time.Time) (bool, error) {
	err := c.storage.UpdateGameStatus(ctx, game.Code, model.GameStatusPlaying, model.GameStatusFinished, winnerID, now)
	if errors.Is(err, storage.ErrConditionFailed) {
		c.logger.Info("winning move lost the race",
			slog.String("game_code", string(game.Code)),
			slog.String("player_id", string(winnerID)),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("finish game %s: %w", game.Code, err)
	}

	game.Status = model.GameStatusFinished
	game.WinnerID = winnerID
	game.UpdatedAt = now

	c.logger.Info("game finished",
		slog.String("game_code", string(game.Code)),
		slog.String("winner_id", string(winnerID)),
	)
	return true, nil
}

// GetGame returns the game and its players
func (c *Controller) GetGame(ctx context.Context, code model.GameCode) (*Snapshot, error) {
	game, err := c.storage.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	players, err := c.storage.GetPlayers(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Game: game, Players: players}, nil
}

// nextColor returns the first palette color no player holds
func (c *Controller) nextColor(players []*model.Player) (string, bool) {
	if len(players) >= len(c.cfg.Palette) {
		return "", false
	}
	taken := make(map[string]bool, len(players))
	for _, p := range players {
		taken[p.Color] = true
	}
	for _, color := range c.cfg.Palette {
		if !taken[color] {
			return color, true
		}
	}
	return "", false
}

func findByName(players []*model.Player, name string) *model.Player {
	fold := cases.Fold()
	want := fold.String(name)
	for _, p := range players {
		if fold.String(p.Name) == want {
			return p
		}
	}
	return nil
}
