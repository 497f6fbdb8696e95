package breaker

import (
	"os"
	"strconv"
	"time"
)

// Config holds circuit breaker configuration, applied to every destination.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold uint32

	// RecoveryTimeout is how long the circuit stays open before the next
	// call attempt is allowed through as a half-open trial.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if i, err := strconv.ParseUint(getEnv("RELAY_BREAKER_FAILURE_THRESHOLD", "5"), 10, 32); err == nil {
		cfg.FailureThreshold = uint32(i)
	}
	if d, err := time.ParseDuration(getEnv("RELAY_BREAKER_RECOVERY_TIMEOUT", "30s")); err == nil {
		cfg.RecoveryTimeout = d
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
