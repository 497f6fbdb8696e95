package health

import (
	"os"
	"time"
)

// Config holds health aggregator configuration.
type Config struct {
	// ProbeTimeout bounds each individual service probe. All probes run
	// concurrently, so a full sweep completes within roughly one timeout.
	ProbeTimeout time.Duration

	// ProbePath is appended to each service's base URL.
	ProbePath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout: 5 * time.Second,
		ProbePath:    "/health",
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if d, err := time.ParseDuration(getEnv("RELAY_PROBE_TIMEOUT", "5s")); err == nil {
		cfg.ProbeTimeout = d
	}
	if p := getEnv("RELAY_PROBE_PATH", ""); p != "" {
		cfg.ProbePath = p
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
