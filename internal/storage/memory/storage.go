package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// A single mutex makes every conditional write atomic.
type Storage struct {
	mu sync.RWMutex

	games       map[model.GameCode]*model.Game
	players     map[model.GameCode]map[model.PlayerID]*model.Player
	playerOrder map[model.GameCode][]model.PlayerID
	moves       map[model.GameCode][]*model.Move
	connections map[model.ChannelID]*model.Connection
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		games:       make(map[model.GameCode]*model.Game),
		players:     make(map[model.GameCode]map[model.PlayerID]*model.Player),
		playerOrder: make(map[model.GameCode][]model.PlayerID),
		moves:       make(map[model.GameCode][]*model.Move),
		connections: make(map[model.ChannelID]*model.Connection),
	}
}

// Ensure Storage implements the interfaces
var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Reaper  = (*Storage)(nil)
)

// Game operations

func (s *Storage) GetGame(ctx context.Context, code model.GameCode) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[code]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	cp := *game
	return &cp, nil
}

func (s *Storage) PutGame(ctx context.Context, game *model.Game, cond storage.WriteCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[game.Code]; exists && cond.IfAbsent {
		return storage.ErrConditionFailed
	}
	cp := *game
	s.games[game.Code] = &cp
	return nil
}

func (s *Storage) UpdateGameStatus(ctx context.Context, code model.GameCode, from, to model.GameStatus, winnerID model.PlayerID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[code]
	if !ok {
		return model.ErrGameNotFound
	}
	if game.Status != from {
		return storage.ErrConditionFailed
	}
	cp := *game
	cp.Status = to
	cp.WinnerID = winnerID
	cp.UpdatedAt = at
	s.games[code] = &cp
	return nil
}

func (s *Storage) GetAllGames(ctx context.Context) ([]*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	games := make([]*model.Game, 0, len(s.games))
	for _, game := range s.games {
		cp := *game
		games = append(games, &cp)
	}
	sort.Slice(games, func(i, j int) bool {
		if games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].Code < games[j].Code
		}
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})
	return games, nil
}

// Player operations

func (s *Storage) GetPlayer(ctx context.Context, code model.GameCode, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[code][id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	cp := *player
	return &cp, nil
}

func (s *Storage) GetPlayers(ctx context.Context, code model.GameCode) ([]*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.playerOrder[code]
	players := make([]*model.Player, 0, len(order))
	for _, id := range order {
		cp := *s.players[code][id]
		players = append(players, &cp)
	}
	return players, nil
}

func (s *Storage) PutPlayer(ctx context.Context, player *model.Player, cond storage.WriteCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.players[player.GameCode]
	if !ok {
		byID = make(map[model.PlayerID]*model.Player)
		s.players[player.GameCode] = byID
	}
	_, exists := byID[player.ID]
	if cond.IfAbsent && exists {
		return storage.ErrConditionFailed
	}
	if cond.CheckPlayerCount && len(byID) != cond.PlayerCount {
		return storage.ErrConditionFailed
	}
	cp := *player
	byID[player.ID] = &cp
	if !exists {
		s.playerOrder[player.GameCode] = append(s.playerOrder[player.GameCode], player.ID)
	}
	return nil
}

func (s *Storage) UpdatePlayerPosition(ctx context.Context, code model.GameCode, id model.PlayerID, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[code][id]
	if !ok {
		return model.ErrPlayerNotFound
	}
	if player.Position != from {
		return storage.ErrConditionFailed
	}
	cp := *player
	cp.Position = to
	s.players[code][id] = &cp
	return nil
}

func (s *Storage) UpdatePlayerConnection(ctx context.Context, code model.GameCode, id model.PlayerID, channel model.ChannelID, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[code][id]
	if !ok {
		return model.ErrPlayerNotFound
	}
	cp := *player
	cp.ChannelID = channel
	cp.IsConnected = connected
	s.players[code][id] = &cp
	return nil
}

// Move operations

func (s *Storage) AppendMove(ctx context.Context, move *model.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *move
	s.moves[move.GameCode] = append(s.moves[move.GameCode], &cp)
	return nil
}

func (s *Storage) GetMoves(ctx context.Context, code model.GameCode) ([]*model.Move, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	moves := make([]*model.Move, 0, len(s.moves[code]))
	for _, move := range s.moves[code] {
		cp := *move
		moves = append(moves, &cp)
	}
	return moves, nil
}

// Connection operations

func (s *Storage) GetConnection(ctx context.Context, id model.ChannelID) (*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, model.ErrConnectionNotFound
	}
	cp := *conn
	return &cp, nil
}

func (s *Storage) PutConnection(ctx context.Context, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conn
	s.connections[conn.ChannelID] = &cp
	return nil
}

func (s *Storage) DeleteConnection(ctx context.Context, id model.ChannelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
	return nil
}

func (s *Storage) GetConnectionsForGame(ctx context.Context, code model.GameCode) ([]*model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conns []*model.Connection
	for _, conn := range s.connections {
		if conn.GameCode == code {
			cp := *conn
			conns = append(conns, &cp)
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ChannelID < conns[j].ChannelID
	})
	return conns, nil
}

// ReapExpired removes connections whose expiry has passed
func (s *Storage) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reaped := 0
	for id, conn := range s.connections {
		if conn.IsExpired(now) {
			delete(s.connections, id)
			reaped++
		}
	}
	return reaped, nil
}
