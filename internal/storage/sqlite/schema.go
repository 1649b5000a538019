package sqlite

// Timestamps are stored as UTC unix nanoseconds, 0 meaning unset
const schema = `
CREATE TABLE IF NOT EXISTS games (
  code        TEXT PRIMARY KEY,
  status      TEXT NOT NULL,
  creator_id  TEXT NOT NULL,
  board       TEXT NOT NULL,
  winner_id   TEXT NOT NULL DEFAULT '',
  created_at  INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS players (
  seq           INTEGER PRIMARY KEY AUTOINCREMENT,
  game_code     TEXT NOT NULL,
  id            TEXT NOT NULL,
  name          TEXT NOT NULL,
  color         TEXT NOT NULL,
  position      INTEGER NOT NULL DEFAULT 0,
  is_connected  INTEGER NOT NULL DEFAULT 0,
  channel_id    TEXT NOT NULL DEFAULT '',
  joined_at     INTEGER NOT NULL,
  UNIQUE (game_code, id)
);

CREATE TABLE IF NOT EXISTS moves (
  seq                INTEGER PRIMARY KEY AUTOINCREMENT,
  id                 TEXT NOT NULL,
  game_code          TEXT NOT NULL,
  player_id          TEXT NOT NULL,
  player_name        TEXT NOT NULL,
  player_color       TEXT NOT NULL,
  dice_roll          INTEGER NOT NULL,
  previous_position  INTEGER NOT NULL,
  new_position       INTEGER NOT NULL,
  effect             TEXT,
  timestamp          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS moves_by_game ON moves (game_code, seq);

CREATE TABLE IF NOT EXISTS connections (
  channel_id    TEXT PRIMARY KEY,
  game_code     TEXT NOT NULL DEFAULT '',
  player_id     TEXT NOT NULL DEFAULT '',
  node_id       TEXT NOT NULL DEFAULT '',
  connected_at  INTEGER NOT NULL,
  expires_at    INTEGER NOT NULL,
  ttl           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS connections_by_game ON connections (game_code);
`

// columns added after the first release, applied to databases that predate them
var connectionColumns = []struct{ name, ddl string }{
	{"node_id", `ALTER TABLE connections ADD COLUMN node_id TEXT NOT NULL DEFAULT ''`},
	{"ttl", `ALTER TABLE connections ADD COLUMN ttl INTEGER NOT NULL DEFAULT 0`},
}
