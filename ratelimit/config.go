package ratelimit

import (
	"os"
	"strconv"
)

// Config holds rate limiter configuration.
type Config struct {
	PerMinute   int     // per-client ceiling per minute window
	PerHour     int     // per-client ceiling per hour window
	GlobalRPS   float64 // gateway-wide requests per second
	GlobalBurst int     // gateway-wide burst size
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		PerMinute:   60,
		PerHour:     1000,
		GlobalRPS:   100,
		GlobalBurst: 50,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if i, err := strconv.Atoi(getEnv("RELAY_RATE_LIMIT_PER_MINUTE", "60")); err == nil {
		cfg.PerMinute = i
	}
	if i, err := strconv.Atoi(getEnv("RELAY_RATE_LIMIT_PER_HOUR", "1000")); err == nil {
		cfg.PerHour = i
	}
	if f, err := strconv.ParseFloat(getEnv("RELAY_GLOBAL_RPS", "100"), 64); err == nil {
		cfg.GlobalRPS = f
	}
	if i, err := strconv.Atoi(getEnv("RELAY_GLOBAL_BURST", "50")); err == nil {
		cfg.GlobalBurst = i
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
