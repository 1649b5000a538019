package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// GameTTL bounds how long a game, its players and its move log live
	GameTTL time.Duration

	// TxRetries is how many times a WATCH transaction is retried when an
	// unrelated write touches a watched key. Guards that genuinely fail are
	// never retried.
	TxRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		GameTTL:      24 * time.Hour,
		TxRetries:    5,
	}
}
