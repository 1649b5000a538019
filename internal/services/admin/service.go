// Package admin provides read-only views over every game for operators.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
)

// RecentMoveLimit caps the moves returned by GameDetail
const RecentMoveLimit = 50

// GameDetail is the full admin view of one game
type GameDetail struct {
	Game    *model.Game           `json:"game"`
	Players []*model.RankedPlayer `json:"players"`
	Moves   []*model.Move         `json:"moves"` // Most recent first
}

// Service answers admin queries directly from storage
type Service struct {
	storage storage.Storage
	logger  *slog.Logger
}

// New creates an admin Service
func New(storage storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger.With(slog.String("component", "admin")),
	}
}

// ListGames summarizes every stored game, newest first
func (s *Service) ListGames(ctx context.Context) ([]*model.GameSummary, error) {
	games, err := s.storage.GetAllGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}

	summaries := make([]*model.GameSummary, 0, len(games))
	for _, game := range games {
		players, err := s.storage.GetPlayers(ctx, game.Code)
		if err != nil {
			return nil, fmt.Errorf("list players for %s: %w", game.Code, err)
		}

		summary := &model.GameSummary{
			Code:        game.Code,
			Status:      game.Status,
			PlayerCount: len(players),
			CreatedAt:   game.CreatedAt,
		}
		if ranked := rank(players, game.Board.Size); len(ranked) > 0 {
			summary.LeaderName = ranked[0].Name
			summary.LeaderPosition = ranked[0].Position
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// GameDetail returns a game with its players ranked and its latest moves
func (s *Service) GameDetail(ctx context.Context, code model.GameCode) (*GameDetail, error) {
	game, err := s.storage.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}

	players, err := s.storage.GetPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list players for %s: %w", code, err)
	}

	moves, err := s.storage.GetMoves(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list moves for %s: %w", code, err)
	}

	return &GameDetail{
		Game:    game,
		Players: rank(players, game.Board.Size),
		Moves:   latest(moves, RecentMoveLimit),
	}, nil
}

// rank orders players furthest along first. Ties keep join order and take
// consecutive ranks.
func rank(players []*model.Player, size int) []*model.RankedPlayer {
	ranked := make([]*model.RankedPlayer, len(players))
	for i, p := range players {
		ranked[i] = &model.RankedPlayer{Player: *p}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Position > ranked[j].Position
	})
	for i, p := range ranked {
		p.Rank = i + 1
		p.DistanceToWin = size - p.Position
	}
	return ranked
}

// latest returns up to limit moves, most recent first
func latest(moves []*model.Move, limit int) []*model.Move {
	if len(moves) > limit {
		moves = moves[len(moves)-limit:]
	}
	out := make([]*model.Move, len(moves))
	for i, m := range moves {
		out[len(moves)-1-i] = m
	}
	return out
}

