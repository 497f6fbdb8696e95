package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/prilive-com/relay/breaker"
	"github.com/prilive-com/relay/discovery"
	"github.com/prilive-com/relay/dispatch"
	"github.com/prilive-com/relay/gw"
	"github.com/prilive-com/relay/health"
	"github.com/prilive-com/relay/internal/metrics"
	"github.com/prilive-com/relay/ratelimit"
	"github.com/prilive-com/relay/registry"
	"github.com/prilive-com/relay/server"
)

// Gateway is the assembled relay: registry, rate limiter, circuit breakers,
// dispatcher, health aggregator and HTTP front end composed into one unit.
type Gateway struct {
	logger     *slog.Logger
	registry   *registry.Registry
	store      ratelimit.CounterStore
	limiter    *ratelimit.Limiter
	breakers   *breaker.Group
	dispatcher *dispatch.Dispatcher
	aggregator *health.Aggregator
	server     *server.Server
	registrar  *discovery.Registrar
	metrics    *metrics.Metrics
	config     gatewayConfig
}

type gatewayConfig struct {
	services map[string]string

	ratelimitConfig ratelimit.Config
	breakerConfig   breaker.Config
	dispatchConfig  dispatch.Config
	healthConfig    health.Config
	serverConfig    server.Config
	discoveryConfig discovery.Config

	store  ratelimit.CounterStore
	logger *slog.Logger
}

// New creates a Gateway with the given service table.
func New(services map[string]string, opts ...Option) (*Gateway, error) {
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: no services configured", gw.ErrInvalidConfig)
	}

	cfg := gatewayConfig{
		services:        services,
		ratelimitConfig: ratelimit.DefaultConfig(),
		breakerConfig:   breaker.DefaultConfig(),
		dispatchConfig:  dispatch.DefaultConfig(),
		healthConfig:    health.DefaultConfig(),
		serverConfig:    server.DefaultConfig(),
		discoveryConfig: discovery.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return assemble(cfg)
}

// NewFromEnv creates a Gateway configured entirely from RELAY_* environment
// variables. Options applied afterwards override the environment.
func NewFromEnv(opts ...Option) (*Gateway, error) {
	regCfg, err := registry.LoadConfig()
	if err != nil {
		return nil, err
	}
	rlCfg, err := ratelimit.LoadConfig()
	if err != nil {
		return nil, err
	}
	brCfg, err := breaker.LoadConfig()
	if err != nil {
		return nil, err
	}
	dpCfg, err := dispatch.LoadConfig()
	if err != nil {
		return nil, err
	}
	hcCfg, err := health.LoadConfig()
	if err != nil {
		return nil, err
	}
	srvCfg, err := server.LoadConfig()
	if err != nil {
		return nil, err
	}
	dscCfg, err := discovery.LoadConfig()
	if err != nil {
		return nil, err
	}

	cfg := gatewayConfig{
		services:        regCfg.Services,
		ratelimitConfig: *rlCfg,
		breakerConfig:   *brCfg,
		dispatchConfig:  *dpCfg,
		healthConfig:    *hcCfg,
		serverConfig:    *srvCfg,
		discoveryConfig: *dscCfg,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return assemble(cfg)
}

func assemble(cfg gatewayConfig) (*Gateway, error) {
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := registry.New(cfg.services)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	store := cfg.store
	if store == nil {
		store = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(cfg.ratelimitConfig, store, logger)

	breakers := breaker.NewGroup(cfg.breakerConfig, logger,
		breaker.WithStateChangeHook(func(service string, _, to gobreaker.State) {
			m.CircuitState.WithLabelValues(service).Set(breaker.StateValue(to))
		}),
	)

	dispatcher := dispatch.NewDispatcher(cfg.dispatchConfig, reg, limiter, breakers,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(m),
	)

	aggregator := health.NewAggregator(cfg.healthConfig, reg, health.WithLogger(logger))

	srv := server.NewServer(cfg.serverConfig, dispatcher, aggregator,
		server.WithLogger(logger),
		server.WithMetrics(m),
	)

	return &Gateway{
		logger:     logger,
		registry:   reg,
		store:      store,
		limiter:    limiter,
		breakers:   breakers,
		dispatcher: dispatcher,
		aggregator: aggregator,
		server:     srv,
		registrar:  discovery.NewRegistrar(cfg.discoveryConfig, discovery.WithLogger(logger)),
		metrics:    m,
		config:     cfg,
	}, nil
}

// Run serves HTTP until ctx is cancelled, registering with the discovery
// agent on the way up and deregistering on the way down. Discovery
// failures are logged, never fatal.
func (g *Gateway) Run(ctx context.Context) error {
	if g.registrar != nil {
		if err := g.registrar.Register(ctx); err != nil {
			g.logger.Warn("discovery registration failed", "error", err)
		}
		defer func() {
			if err := g.registrar.Deregister(context.Background()); err != nil {
				g.logger.Warn("discovery deregistration failed", "error", err)
			}
		}()
	}

	g.logger.Info("gateway starting",
		"services", g.registry.Names(),
		"listen", g.config.serverConfig.ListenAddr,
	)
	return g.server.Start(ctx)
}

// Close releases the gateway's resources.
func (g *Gateway) Close() error {
	if closer, ok := g.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Dispatch sends one request through the full resilience pipeline without
// going over HTTP. The embedding application's programmatic entry point.
func (g *Gateway) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.UpstreamResponse, error) {
	return g.dispatcher.Dispatch(ctx, req)
}

// CheckHealth probes every registered service and returns the aggregate report.
func (g *Gateway) CheckHealth(ctx context.Context) health.Report {
	return g.aggregator.CheckAll(ctx)
}

// UpdateServices atomically replaces the service table. In-flight
// dispatches keep the snapshot they resolved against.
func (g *Gateway) UpdateServices(services map[string]string) error {
	return g.registry.Replace(services)
}

// Services returns the registered service names.
func (g *Gateway) Services() []string {
	return g.registry.Names()
}

// Handler exposes the routed HTTP handler, mainly for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler()
}
