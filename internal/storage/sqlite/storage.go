// Package sqlite provides a SQLite-backed session store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/storage"
)

// Storage persists session state in SQLite. Each conditional write is a
// single guarded statement and a zero rows-affected count means the guard failed.
type Storage struct {
	db *sqlx.DB
}

// Ensure Storage implements the interfaces
var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Reaper  = (*Storage)(nil)
)

// New opens the database at cfg.Path and applies the schema
func New(cfg Config) (*Storage, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		filepath.Clean(cfg.Path), cfg.BusyTimeoutMillis)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers so guarded statements never see SQLITE_BUSY
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Storage{db: db}, nil
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	var existing []string
	if err := db.SelectContext(ctx, &existing, `SELECT name FROM pragma_table_info('connections')`); err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}
	for _, col := range connectionColumns {
		if have[col.name] {
			continue
		}
		if _, err := db.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}
	return nil
}

// Close closes the database handle
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks the database is usable
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

type gameRow struct {
	Code      string `db:"code"`
	Status    string `db:"status"`
	CreatorID string `db:"creator_id"`
	Board     string `db:"board"`
	WinnerID  string `db:"winner_id"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func newGameRow(g *model.Game) (gameRow, error) {
	board, err := json.Marshal(g.Board)
	if err != nil {
		return gameRow{}, err
	}
	return gameRow{
		Code:      string(g.Code),
		Status:    string(g.Status),
		CreatorID: string(g.CreatorID),
		Board:     string(board),
		WinnerID:  string(g.WinnerID),
		CreatedAt: toNanos(g.CreatedAt),
		UpdatedAt: toNanos(g.UpdatedAt),
	}, nil
}

func (r gameRow) toModel() (*model.Game, error) {
	var board model.BoardConfig
	if err := json.Unmarshal([]byte(r.Board), &board); err != nil {
		return nil, fmt.Errorf("decode board for game %s: %w", r.Code, err)
	}
	return &model.Game{
		Code:      model.GameCode(r.Code),
		Status:    model.GameStatus(r.Status),
		CreatorID: model.PlayerID(r.CreatorID),
		Board:     board,
		WinnerID:  model.PlayerID(r.WinnerID),
		CreatedAt: fromNanos(r.CreatedAt),
		UpdatedAt: fromNanos(r.UpdatedAt),
	}, nil
}

type playerRow struct {
	GameCode    string `db:"game_code"`
	ID          string `db:"id"`
	Name        string `db:"name"`
	Color       string `db:"color"`
	Position    int    `db:"position"`
	IsConnected bool   `db:"is_connected"`
	ChannelID   string `db:"channel_id"`
	JoinedAt    int64  `db:"joined_at"`
}

func newPlayerRow(p *model.Player) playerRow {
	return playerRow{
		GameCode:    string(p.GameCode),
		ID:          string(p.ID),
		Name:        p.Name,
		Color:       p.Color,
		Position:    p.Position,
		IsConnected: p.IsConnected,
		ChannelID:   string(p.ChannelID),
		JoinedAt:    toNanos(p.JoinedAt),
	}
}

func (r playerRow) toModel() *model.Player {
	return &model.Player{
		ID:          model.PlayerID(r.ID),
		GameCode:    model.GameCode(r.GameCode),
		Name:        r.Name,
		Color:       r.Color,
		Position:    r.Position,
		IsConnected: r.IsConnected,
		ChannelID:   model.ChannelID(r.ChannelID),
		JoinedAt:    fromNanos(r.JoinedAt),
	}
}

type moveRow struct {
	ID               string         `db:"id"`
	GameCode         string         `db:"game_code"`
	PlayerID         string         `db:"player_id"`
	PlayerName       string         `db:"player_name"`
	PlayerColor      string         `db:"player_color"`
	DiceRoll         int            `db:"dice_roll"`
	PreviousPosition int            `db:"previous_position"`
	NewPosition      int            `db:"new_position"`
	Effect           sql.NullString `db:"effect"`
	Timestamp        int64          `db:"timestamp"`
}

func (r moveRow) toModel() (*model.Move, error) {
	move := &model.Move{
		ID:               model.MoveID(r.ID),
		GameCode:         model.GameCode(r.GameCode),
		PlayerID:         model.PlayerID(r.PlayerID),
		PlayerName:       r.PlayerName,
		PlayerColor:      r.PlayerColor,
		DiceRoll:         r.DiceRoll,
		PreviousPosition: r.PreviousPosition,
		NewPosition:      r.NewPosition,
		Timestamp:        fromNanos(r.Timestamp),
	}
	if r.Effect.Valid {
		var effect model.MoveEffect
		if err := json.Unmarshal([]byte(r.Effect.String), &effect); err != nil {
			return nil, fmt.Errorf("decode effect for move %s: %w", r.ID, err)
		}
		move.Effect = &effect
	}
	return move, nil
}

type connectionRow struct {
	ChannelID   string `db:"channel_id"`
	GameCode    string `db:"game_code"`
	PlayerID    string `db:"player_id"`
	NodeID      string `db:"node_id"`
	ConnectedAt int64  `db:"connected_at"`
	ExpiresAt   int64  `db:"expires_at"`
	TTL         int64  `db:"ttl"`
}

func (r connectionRow) toModel() *model.Connection {
	return &model.Connection{
		ChannelID:   model.ChannelID(r.ChannelID),
		GameCode:    model.GameCode(r.GameCode),
		PlayerID:    model.PlayerID(r.PlayerID),
		NodeID:      model.NodeID(r.NodeID),
		ConnectedAt: fromNanos(r.ConnectedAt),
		ExpiresAt:   fromNanos(r.ExpiresAt),
		TTL:         time.Duration(r.TTL),
	}
}

// Game operations

func (s *Storage) GetGame(ctx context.Context, code model.GameCode) (*model.Game, error) {
	var row gameRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM games WHERE code = ?`, string(code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}
	return row.toModel()
}

func (s *Storage) PutGame(ctx context.Context, game *model.Game, cond storage.WriteCondition) error {
	row, err := newGameRow(game)
	if err != nil {
		return err
	}

	query := `INSERT INTO games (code, status, creator_id, board, winner_id, created_at, updated_at)
		VALUES (:code, :status, :creator_id, :board, :winner_id, :created_at, :updated_at)`
	if cond.IfAbsent {
		query += ` ON CONFLICT (code) DO NOTHING`
	} else {
		query += ` ON CONFLICT (code) DO UPDATE SET
			status = excluded.status,
			creator_id = excluded.creator_id,
			board = excluded.board,
			winner_id = excluded.winner_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`
	}

	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Storage) UpdateGameStatus(ctx context.Context, code model.GameCode, from, to model.GameStatus, winnerID model.PlayerID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET status = ?, winner_id = ?, updated_at = ? WHERE code = ? AND status = ?`,
		string(to), string(winnerID), toNanos(at), string(code), string(from))
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		if !errors.Is(err, storage.ErrConditionFailed) {
			return err
		}
		if _, getErr := s.GetGame(ctx, code); getErr != nil {
			return getErr
		}
		return err
	}
	return nil
}

func (s *Storage) GetAllGames(ctx context.Context) ([]*model.Game, error) {
	var rows []gameRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM games ORDER BY created_at DESC, code ASC`); err != nil {
		return nil, err
	}
	games := make([]*model.Game, 0, len(rows))
	for _, row := range rows {
		game, err := row.toModel()
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, nil
}

// Player operations

const playerColumns = `game_code, id, name, color, position, is_connected, channel_id, joined_at`

func (s *Storage) GetPlayer(ctx context.Context, code model.GameCode, id model.PlayerID) (*model.Player, error) {
	var row playerRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+playerColumns+` FROM players WHERE game_code = ? AND id = ?`, string(code), string(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Storage) GetPlayers(ctx context.Context, code model.GameCode) ([]*model.Player, error) {
	var rows []playerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+playerColumns+` FROM players WHERE game_code = ? ORDER BY seq`, string(code))
	if err != nil {
		return nil, err
	}
	players := make([]*model.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, row.toModel())
	}
	return players, nil
}

func (s *Storage) PutPlayer(ctx context.Context, player *model.Player, cond storage.WriteCondition) error {
	row := newPlayerRow(player)

	if !cond.IfAbsent && !cond.CheckPlayerCount {
		_, err := s.db.NamedExecContext(ctx,
			`INSERT INTO players (`+playerColumns+`)
			VALUES (:game_code, :id, :name, :color, :position, :is_connected, :channel_id, :joined_at)
			ON CONFLICT (game_code, id) DO UPDATE SET
				name = excluded.name,
				color = excluded.color,
				position = excluded.position,
				is_connected = excluded.is_connected,
				channel_id = excluded.channel_id,
				joined_at = excluded.joined_at`, row)
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (`+playerColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM players WHERE game_code = ? AND id = ?)
		AND (? = 0 OR (SELECT COUNT(*) FROM players WHERE game_code = ?) = ?)`,
		row.GameCode, row.ID, row.Name, row.Color, row.Position, row.IsConnected, row.ChannelID, row.JoinedAt,
		row.GameCode, row.ID,
		boolToInt(cond.CheckPlayerCount), row.GameCode, cond.PlayerCount)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Storage) UpdatePlayerPosition(ctx context.Context, code model.GameCode, id model.PlayerID, from, to int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET position = ? WHERE game_code = ? AND id = ? AND position = ?`,
		to, string(code), string(id), from)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		if !errors.Is(err, storage.ErrConditionFailed) {
			return err
		}
		if _, getErr := s.GetPlayer(ctx, code, id); getErr != nil {
			return getErr
		}
		return err
	}
	return nil
}

func (s *Storage) UpdatePlayerConnection(ctx context.Context, code model.GameCode, id model.PlayerID, channel model.ChannelID, connected bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET channel_id = ?, is_connected = ? WHERE game_code = ? AND id = ?`,
		string(channel), connected, string(code), string(id))
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		if errors.Is(err, storage.ErrConditionFailed) {
			return model.ErrPlayerNotFound
		}
		return err
	}
	return nil
}

// Move operations

func (s *Storage) AppendMove(ctx context.Context, move *model.Move) error {
	var effect sql.NullString
	if move.Effect != nil {
		data, err := json.Marshal(move.Effect)
		if err != nil {
			return err
		}
		effect = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moves (id, game_code, player_id, player_name, player_color, dice_roll,
			previous_position, new_position, effect, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(move.ID), string(move.GameCode), string(move.PlayerID), move.PlayerName, move.PlayerColor,
		move.DiceRoll, move.PreviousPosition, move.NewPosition, effect, toNanos(move.Timestamp))
	return err
}

func (s *Storage) GetMoves(ctx context.Context, code model.GameCode) ([]*model.Move, error) {
	var rows []moveRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, game_code, player_id, player_name, player_color, dice_roll,
			previous_position, new_position, effect, timestamp
		FROM moves WHERE game_code = ? ORDER BY seq`, string(code))
	if err != nil {
		return nil, err
	}
	moves := make([]*model.Move, 0, len(rows))
	for _, row := range rows {
		move, err := row.toModel()
		if err != nil {
			return nil, err
		}
		moves = append(moves, move)
	}
	return moves, nil
}

// Connection operations

func (s *Storage) GetConnection(ctx context.Context, id model.ChannelID) (*model.Connection, error) {
	var row connectionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM connections WHERE channel_id = ?`, string(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrConnectionNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Storage) PutConnection(ctx context.Context, conn *model.Connection) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO connections (channel_id, game_code, player_id, node_id, connected_at, expires_at, ttl)
		VALUES (:channel_id, :game_code, :player_id, :node_id, :connected_at, :expires_at, :ttl)
		ON CONFLICT (channel_id) DO UPDATE SET
			game_code = excluded.game_code,
			player_id = excluded.player_id,
			node_id = excluded.node_id,
			connected_at = excluded.connected_at,
			expires_at = excluded.expires_at,
			ttl = excluded.ttl`,
		connectionRow{
			ChannelID:   string(conn.ChannelID),
			GameCode:    string(conn.GameCode),
			PlayerID:    string(conn.PlayerID),
			NodeID:      string(conn.NodeID),
			ConnectedAt: toNanos(conn.ConnectedAt),
			ExpiresAt:   toNanos(conn.ExpiresAt),
			TTL:         int64(conn.TTL),
		})
	return err
}

func (s *Storage) DeleteConnection(ctx context.Context, id model.ChannelID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE channel_id = ?`, string(id))
	return err
}

func (s *Storage) GetConnectionsForGame(ctx context.Context, code model.GameCode) ([]*model.Connection, error) {
	var rows []connectionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM connections WHERE game_code = ? ORDER BY channel_id`, string(code))
	if err != nil {
		return nil, err
	}
	conns := make([]*model.Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, row.toModel())
	}
	return conns, nil
}

// ReapExpired deletes connections whose expiry is at or before now
func (s *Storage) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM connections WHERE expires_at > 0 AND expires_at <= ?`, toNanos(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// requireAffected maps a zero rows-affected result to ErrConditionFailed
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrConditionFailed
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
