package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mcoot/snakesgame/internal/api"
	"github.com/mcoot/snakesgame/internal/factory"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/auth"
	redisstorage "github.com/mcoot/snakesgame/internal/storage/redis"
	sqlitestorage "github.com/mcoot/snakesgame/internal/storage/sqlite"
)

// Config is the server configuration read from the environment
type Config struct {
	Host string `env:"HOST"`
	Port int    `env:"PORT" envDefault:"8080"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"json"`

	StorageType string `env:"STORAGE_TYPE" envDefault:"memory"`
	RedisURL    string `env:"REDIS_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"snakes.db"`

	// NodeID and RelayURL matter when several servers share one store
	NodeID   string `env:"NODE_ID"`
	RelayURL string `env:"RELAY_URL"`

	// GameTTL applies to Redis, which expires games itself
	GameTTL time.Duration `env:"GAME_TTL" envDefault:"24h"`

	ConnectionTTL     time.Duration `env:"CONNECTION_TTL" envDefault:"24h"`
	PollConnectionTTL time.Duration `env:"POLL_CONNECTION_TTL" envDefault:"5m"`
	JanitorInterval   time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	AdminUsername     string `env:"ADMIN_USERNAME"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
}

// Load parses the environment into a Config and validates it
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other
func (c Config) Validate() error {
	switch c.StorageType {
	case factory.StorageTypeMemory, factory.StorageTypeSQLite:
	case factory.StorageTypeRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL required when STORAGE_TYPE=redis")
		}
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q", c.StorageType)
	}

	if (c.AdminUsername == "") != (c.AdminPasswordHash == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD_HASH must be set together")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q: must be 'json' or 'text'", c.LogFormat)
	}
	return nil
}

// Factory converts the settings into a factory.Config
func (c Config) Factory(logger *slog.Logger) factory.Config {
	cfg := factory.Config{
		Logger:      logger,
		StorageType: c.StorageType,
		Admin: auth.Config{
			Username:     c.AdminUsername,
			PasswordHash: c.AdminPasswordHash,
		},
		ConnectionTTL:     c.ConnectionTTL,
		PollConnectionTTL: c.PollConnectionTTL,
		JanitorInterval:   c.JanitorInterval,
		AllowedOrigins:    c.AllowedOrigins,
		NodeID:            model.NodeID(c.NodeID),
		RelayURL:          c.RelayURL,
	}

	switch c.StorageType {
	case factory.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.RedisURL
		redisCfg.GameTTL = c.GameTTL
		cfg.RedisConfig = &redisCfg
	case factory.StorageTypeSQLite:
		sqliteCfg := sqlitestorage.DefaultConfig()
		sqliteCfg.Path = c.SQLitePath
		cfg.SQLiteConfig = &sqliteCfg
	}
	return cfg
}

// Server returns the HTTP server settings
func (c Config) Server() api.ServerConfig {
	cfg := api.DefaultServerConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	return cfg
}
