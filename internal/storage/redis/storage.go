package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
// Conditional writes use WATCH/MULTI optimistic transactions.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Client returns the underlying client so other components can share its pool
func (s *Storage) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the server is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// playerRecord persists the channel reference that the public JSON form hides
type playerRecord struct {
	model.Player
	ChannelID model.ChannelID `json:"channelId,omitempty"`
}

func encodePlayer(p *model.Player) ([]byte, error) {
	return json.Marshal(playerRecord{Player: *p, ChannelID: p.ChannelID})
}

func decodePlayer(data []byte) (*model.Player, error) {
	var rec playerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	player := rec.Player
	player.ChannelID = rec.ChannelID
	return &player, nil
}

// watch runs fn in a WATCH transaction, retrying only when the EXEC was
// aborted by a concurrent write to a watched key. Errors returned by fn
// (including ErrConditionFailed) are passed through unchanged.
func (s *Storage) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	retries := s.cfg.TxRetries
	if retries < 1 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return storage.ErrConditionFailed
}

// Game operations

func (s *Storage) GetGame(ctx context.Context, code model.GameCode) (*model.Game, error) {
	data, err := s.client.Get(ctx, gameKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}

	var game model.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *Storage) PutGame(ctx context.Context, game *model.Game, cond storage.WriteCondition) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}

	key := gameKey(game.Code)
	if cond.IfAbsent {
		ok, err := s.client.SetNX(ctx, key, data, s.cfg.GameTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrConditionFailed
		}
		return s.client.SAdd(ctx, gamesIndexKey(), string(game.Code)).Err()
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, s.cfg.GameTTL)
	pipe.SAdd(ctx, gamesIndexKey(), string(game.Code))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) UpdateGameStatus(ctx context.Context, code model.GameCode, from, to model.GameStatus, winnerID model.PlayerID, at time.Time) error {
	key := gameKey(code)
	return s.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrGameNotFound
			}
			return err
		}

		var game model.Game
		if err := json.Unmarshal(data, &game); err != nil {
			return err
		}
		if game.Status != from {
			return storage.ErrConditionFailed
		}

		game.Status = to
		game.WinnerID = winnerID
		game.UpdatedAt = at
		updated, err := json.Marshal(&game)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}

func (s *Storage) GetAllGames(ctx context.Context) ([]*model.Game, error) {
	codes, err := s.client.SMembers(ctx, gamesIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return []*model.Game{}, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = gameKey(model.GameCode(code))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	games := make([]*model.Game, 0, len(values))
	var expired []interface{}
	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			// Game key expired, drop it from the index
			expired = append(expired, codes[i])
			continue
		}
		var game model.Game
		if err := json.Unmarshal([]byte(str), &game); err != nil {
			return nil, err
		}
		games = append(games, &game)
	}

	if len(expired) > 0 {
		if err := s.client.SRem(ctx, gamesIndexKey(), expired...).Err(); err != nil {
			return nil, err
		}
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
	data, err := s.client.Get(ctx, playerKey(code, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	return decodePlayer(data)
}

func (s *Storage) GetPlayers(ctx context.Context, code model.GameCode) ([]*model.Player, error) {
	ids, err := s.client.LRange(ctx, playersIndexKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Player{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(code, model.PlayerID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	players := make([]*model.Player, 0, len(values))
	for _, value := range values {
		str, ok := value.(string)
		if !ok {
			continue
		}
		player, err := decodePlayer([]byte(str))
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	return players, nil
}

func (s *Storage) PutPlayer(ctx context.Context, player *model.Player, cond storage.WriteCondition) error {
	data, err := encodePlayer(player)
	if err != nil {
		return err
	}

	key := playerKey(player.GameCode, player.ID)
	indexKey := playersIndexKey(player.GameCode)

	return s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if cond.IfAbsent && exists > 0 {
			return storage.ErrConditionFailed
		}
		if cond.CheckPlayerCount {
			count, err := tx.LLen(ctx, indexKey).Result()
			if err != nil {
				return err
			}
			if int(count) != cond.PlayerCount {
				return storage.ErrConditionFailed
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.GameTTL)
			if exists == 0 {
				pipe.RPush(ctx, indexKey, string(player.ID))
				pipe.Expire(ctx, indexKey, s.cfg.GameTTL)
			}
			return nil
		})
		return err
	}, key, indexKey)
}

// updatePlayer applies mutate to the stored player inside a WATCH transaction
func (s *Storage) updatePlayer(ctx context.Context, code model.GameCode, id model.PlayerID, mutate func(p *model.Player) error) error {
	key := playerKey(code, id)
	return s.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return model.ErrPlayerNotFound
			}
			return err
		}

		player, err := decodePlayer(data)
		if err != nil {
			return err
		}
		if err := mutate(player); err != nil {
			return err
		}

		updated, err := encodePlayer(player)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}

func (s *Storage) UpdatePlayerPosition(ctx context.Context, code model.GameCode, id model.PlayerID, from, to int) error {
	return s.updatePlayer(ctx, code, id, func(p *model.Player) error {
		if p.Position != from {
			return storage.ErrConditionFailed
		}
		p.Position = to
		return nil
	})
}

func (s *Storage) UpdatePlayerConnection(ctx context.Context, code model.GameCode, id model.PlayerID, channel model.ChannelID, connected bool) error {
	return s.updatePlayer(ctx, code, id, func(p *model.Player) error {
		p.ChannelID = channel
		p.IsConnected = connected
		return nil
	})
}

// Move operations

func (s *Storage) AppendMove(ctx context.Context, move *model.Move) error {
	data, err := json.Marshal(move)
	if err != nil {
		return err
	}

	key := movesKey(move.GameCode)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.cfg.GameTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetMoves(ctx context.Context, code model.GameCode) ([]*model.Move, error) {
	values, err := s.client.LRange(ctx, movesKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	moves := make([]*model.Move, 0, len(values))
	for _, value := range values {
		var move model.Move
		if err := json.Unmarshal([]byte(value), &move); err != nil {
			return nil, err
		}
		moves = append(moves, &move)
	}
	return moves, nil
}

// Connection operations

func (s *Storage) GetConnection(ctx context.Context, id model.ChannelID) (*model.Connection, error) {
	data, err := s.client.Get(ctx, connectionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrConnectionNotFound
		}
		return nil, err
	}

	var conn model.Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *Storage) PutConnection(ctx context.Context, conn *model.Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return err
	}

	// Expiry is enforced natively with a relative TTL taken from the record,
	// so the writer's clock and the Redis server's clock never need to agree
	var ttl time.Duration
	if !conn.ExpiresAt.IsZero() {
		ttl = conn.Lifetime()
		if ttl <= 0 {
			return s.DeleteConnection(ctx, conn.ChannelID)
		}
	}

	key := connectionKey(conn.ChannelID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		previous, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		var old model.Connection
		if len(previous) > 0 {
			if err := json.Unmarshal(previous, &old); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			if old.GameCode != "" && old.GameCode != conn.GameCode {
				pipe.SRem(ctx, connectionsForGameIndexKey(old.GameCode), string(conn.ChannelID))
			}
			if conn.GameCode != "" {
				indexKey := connectionsForGameIndexKey(conn.GameCode)
				pipe.SAdd(ctx, indexKey, string(conn.ChannelID))
				pipe.Expire(ctx, indexKey, s.cfg.GameTTL)
			}
			return nil
		})
		return err
	}, key)
}

func (s *Storage) DeleteConnection(ctx context.Context, id model.ChannelID) error {
	conn, err := s.GetConnection(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, connectionKey(id))
	if conn.GameCode != "" {
		pipe.SRem(ctx, connectionsForGameIndexKey(conn.GameCode), string(id))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetConnectionsForGame(ctx context.Context, code model.GameCode) ([]*model.Connection, error) {
	indexKey := connectionsForGameIndexKey(code)
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Connection{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = connectionKey(model.ChannelID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	conns := make([]*model.Connection, 0, len(values))
	var stale []interface{}
	for i, value := range values {
		str, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var conn model.Connection
		if err := json.Unmarshal([]byte(str), &conn); err != nil {
			return nil, err
		}
		if conn.GameCode != code {
			stale = append(stale, ids[i])
			continue
		}
		conns = append(conns, &conn)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, err
		}
	}

	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ChannelID < conns[j].ChannelID
	})
	return conns, nil
}
