package cli

import (
	"os"
)

// Config holds CLI configuration
type Config struct {
	ServerURL     string
	Output        string
	AdminUser     string
	AdminPassword string
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:     getEnvOrDefault("SNAKES_SERVER", "http://localhost:8080"),
		Output:        getEnvOrDefault("SNAKES_OUTPUT", "text"),
		AdminUser:     os.Getenv("SNAKES_ADMIN_USER"),
		AdminPassword: os.Getenv("SNAKES_ADMIN_PASSWORD"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
