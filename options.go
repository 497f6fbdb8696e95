package relay

import (
	"log/slog"
	"time"

	"github.com/prilive-com/relay/ratelimit"
)

// Option configures the Gateway.
type Option func(*gatewayConfig)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *gatewayConfig) {
		c.logger = logger
	}
}

// WithServices replaces the service table.
func WithServices(services map[string]string) Option {
	return func(c *gatewayConfig) {
		c.services = services
	}
}

// WithRateLimits sets the per-client ceilings.
func WithRateLimits(perMinute, perHour int) Option {
	return func(c *gatewayConfig) {
		c.ratelimitConfig.PerMinute = perMinute
		c.ratelimitConfig.PerHour = perHour
	}
}

// WithGlobalRate sets the gateway-wide throughput guard.
func WithGlobalRate(rps float64, burst int) Option {
	return func(c *gatewayConfig) {
		c.ratelimitConfig.GlobalRPS = rps
		c.ratelimitConfig.GlobalBurst = burst
	}
}

// WithCounterStore swaps the rate-limit counter backend, e.g. for a
// shared store in a multi-instance deployment.
func WithCounterStore(store ratelimit.CounterStore) Option {
	return func(c *gatewayConfig) {
		c.store = store
	}
}

// WithBreaker sets the circuit breaker thresholds.
func WithBreaker(failureThreshold uint32, recoveryTimeout time.Duration) Option {
	return func(c *gatewayConfig) {
		c.breakerConfig.FailureThreshold = failureThreshold
		c.breakerConfig.RecoveryTimeout = recoveryTimeout
	}
}

// WithRetries sets the total attempt ceiling, first try included.
func WithRetries(maxAttempts int) Option {
	return func(c *gatewayConfig) {
		c.dispatchConfig.MaxAttempts = maxAttempts
	}
}

// WithBackoff tunes the retry delay curve.
func WithBackoff(baseWait, maxWait time.Duration, factor float64) Option {
	return func(c *gatewayConfig) {
		c.dispatchConfig.RetryBaseWait = baseWait
		c.dispatchConfig.RetryMaxWait = maxWait
		c.dispatchConfig.RetryFactor = factor
	}
}

// WithUpstreamTimeout bounds each individual call attempt.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(c *gatewayConfig) {
		c.dispatchConfig.UpstreamTimeout = d
	}
}

// WithProbeTimeout bounds each health probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *gatewayConfig) {
		c.healthConfig.ProbeTimeout = d
	}
}

// WithListenAddr sets the HTTP listen address.
func WithListenAddr(addr string) Option {
	return func(c *gatewayConfig) {
		c.serverConfig.ListenAddr = addr
	}
}

// WithDiscovery points the gateway at a Consul-compatible agent.
func WithDiscovery(agentAddr, advertiseAddr string) Option {
	return func(c *gatewayConfig) {
		c.discoveryConfig.AgentAddr = agentAddr
		c.discoveryConfig.AdvertiseAddr = advertiseAddr
	}
}
