package sqlite

// Config holds SQLite settings
type Config struct {
	// Path is the database file. ":memory:" is not supported since every
	// pooled connection would see a different database.
	Path string

	// BusyTimeoutMillis is how long a writer waits on a locked database
	BusyTimeoutMillis int
}

// DefaultConfig returns sensible defaults for SQLite configuration
func DefaultConfig() Config {
	return Config{
		Path:              "snakes.db",
		BusyTimeoutMillis: 5000,
	}
}
