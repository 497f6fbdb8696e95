package server

import (
	"os"
	"time"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr string

	// Server timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxBodySize caps the inbound request body.
	MaxBodySize int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     90 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodySize:     10 << 20, // 10MB
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if addr := getEnv("RELAY_LISTEN_ADDR", ""); addr != "" {
		cfg.ListenAddr = addr
	}
	if d, err := time.ParseDuration(getEnv("RELAY_READ_TIMEOUT", "15s")); err == nil {
		cfg.ReadTimeout = d
	}
	if d, err := time.ParseDuration(getEnv("RELAY_WRITE_TIMEOUT", "60s")); err == nil {
		cfg.WriteTimeout = d
	}
	if d, err := time.ParseDuration(getEnv("RELAY_SHUTDOWN_TIMEOUT", "10s")); err == nil {
		cfg.ShutdownTimeout = d
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
