package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/prilive-com/relay/gw"
)

// envServicePrefix is scanned from the environment: every
// RELAY_SERVICE_<NAME>=<base URL> pair registers one downstream service.
// <NAME> is lowercased and underscores become hyphens, so
// RELAY_SERVICE_REVERSE_LOGISTICS maps to "reverse-logistics".
const envServicePrefix = "RELAY_SERVICE_"

// Config holds the registry configuration.
type Config struct {
	Services map[string]string
}

// DefaultConfig returns an empty mapping.
func DefaultConfig() Config {
	return Config{Services: map[string]string{}}
}

// LoadConfig loads the name -> base URL mapping from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok || !strings.HasPrefix(key, envServicePrefix) {
			continue
		}
		name := serviceNameFromEnv(key[len(envServicePrefix):])
		if name == "" || strings.TrimSpace(value) == "" {
			continue
		}
		cfg.Services[name] = strings.TrimSpace(value)
	}

	if len(cfg.Services) == 0 {
		return nil, fmt.Errorf("%w: no %s<NAME> variables set", gw.ErrInvalidConfig, envServicePrefix)
	}

	return &cfg, nil
}

func serviceNameFromEnv(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	return strings.ReplaceAll(name, "_", "-")
}
