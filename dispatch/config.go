package dispatch

import (
	"os"
	"strconv"
	"time"
)

const defaultMaxResponseSize = 10 << 20 // 10MB

// Config holds dispatcher configuration.
type Config struct {
	// UpstreamTimeout bounds each individual call attempt. The worst-case
	// dispatch ceiling is UpstreamTimeout*MaxAttempts plus cumulative
	// backoff (itself capped at RetryMaxWait per gap).
	UpstreamTimeout time.Duration

	// Retry settings
	MaxAttempts   int           // total attempts, including the first
	RetryBaseWait time.Duration // delay before the second attempt
	RetryMaxWait  time.Duration // backoff cap
	RetryFactor   float64       // backoff multiplier
	RetryJitter   float64       // jitter fraction (0 disables)

	// Content limits
	MaxResponseSize int64

	// Outbound connection pool
	KeepAlive    time.Duration
	MaxIdleConns int
	IdleTimeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UpstreamTimeout: 30 * time.Second,
		MaxAttempts:     3,
		RetryBaseWait:   time.Second,
		RetryMaxWait:    30 * time.Second,
		RetryFactor:     2.0,
		RetryJitter:     0,
		MaxResponseSize: defaultMaxResponseSize,
		KeepAlive:       30 * time.Second,
		MaxIdleConns:    100,
		IdleTimeout:     90 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if d, err := time.ParseDuration(getEnv("RELAY_UPSTREAM_TIMEOUT", "30s")); err == nil {
		cfg.UpstreamTimeout = d
	}
	if i, err := strconv.Atoi(getEnv("RELAY_MAX_ATTEMPTS", "3")); err == nil && i > 0 {
		cfg.MaxAttempts = i
	}
	if d, err := time.ParseDuration(getEnv("RELAY_RETRY_BASE_WAIT", "1s")); err == nil {
		cfg.RetryBaseWait = d
	}
	if d, err := time.ParseDuration(getEnv("RELAY_RETRY_MAX_WAIT", "30s")); err == nil {
		cfg.RetryMaxWait = d
	}
	if f, err := strconv.ParseFloat(getEnv("RELAY_RETRY_FACTOR", "2.0"), 64); err == nil {
		cfg.RetryFactor = f
	}
	if f, err := strconv.ParseFloat(getEnv("RELAY_RETRY_JITTER", "0"), 64); err == nil {
		cfg.RetryJitter = f
	}
	if i, err := strconv.ParseInt(getEnv("RELAY_MAX_RESPONSE_SIZE", "10485760"), 10, 64); err == nil {
		cfg.MaxResponseSize = i
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
