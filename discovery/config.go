package discovery

import (
	"os"
	"strings"
)

// Config holds discovery agent configuration. An empty AgentAddr
// disables discovery entirely.
type Config struct {
	AgentAddr     string // host:port of the Consul-compatible agent
	AdvertiseAddr string // host:port other nodes should reach us on
	ServiceName   string
	ServiceID     string
	Tags          []string
}

// DefaultConfig returns a Config with discovery disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName: "relay",
		ServiceID:   "relay-1",
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	cfg.AgentAddr = getEnv("RELAY_DISCOVERY_ADDR", "")
	cfg.AdvertiseAddr = getEnv("RELAY_ADVERTISE_ADDR", "")
	// Namespaced under RELAY_DISCOVERY_ so the registry's RELAY_SERVICE_
	// prefix scan never picks these up as destinations.
	if name := getEnv("RELAY_DISCOVERY_SERVICE_NAME", ""); name != "" {
		cfg.ServiceName = name
	}
	if id := getEnv("RELAY_DISCOVERY_SERVICE_ID", ""); id != "" {
		cfg.ServiceID = id
	}
	if tags := getEnv("RELAY_DISCOVERY_TAGS", ""); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				cfg.Tags = append(cfg.Tags, tag)
			}
		}
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
