// Package health probes registered services and aggregates their status.
//
// The aggregator issues its own HTTP probes rather than reading circuit
// breaker state: a breaker only knows about traffic it has seen, while a
// probe gives a live answer for every destination, idle ones included.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prilive-com/relay/internal/httpclient"
	"github.com/prilive-com/relay/internal/syncutil"
	"github.com/prilive-com/relay/registry"
)

// State classifies the outcome of a single probe.
type State string

const (
	// StateHealthy means the probe returned a 2xx status.
	StateHealthy State = "healthy"
	// StateUnhealthy means the probe returned a non-2xx status.
	StateUnhealthy State = "unhealthy"
	// StateUnreachable means the probe failed at the transport level
	// or timed out.
	StateUnreachable State = "unreachable"
)

// Status is the probe result for one service.
type Status struct {
	Service    string        `json:"service"`
	State      State         `json:"state"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Report is the aggregate outcome of one sweep over the registry.
type Report struct {
	Healthy   bool      `json:"healthy"`
	Services  []Status  `json:"services"`
	CheckedAt time.Time `json:"checked_at"`
}

// Aggregator fans out health probes to every registered service.
type Aggregator struct {
	cfg        Config
	logger     *slog.Logger
	registry   *registry.Registry
	httpClient *http.Client
}

// Option configures the Aggregator.
type Option func(*Aggregator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithHTTPClient sets a custom probe HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Aggregator) {
		a.httpClient = client
	}
}

// NewAggregator creates an Aggregator over the given registry.
func NewAggregator(cfg Config, reg *registry.Registry, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:      cfg,
		registry: reg,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.httpClient == nil {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.RequestTimeout = cfg.ProbeTimeout
		a.httpClient = httpclient.New(clientCfg)
	}

	return a
}

// CheckAll probes every registered service concurrently and returns the
// aggregate report. Report.Healthy is true only when every service is
// healthy; an empty registry reports healthy.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	descriptors := a.registry.Descriptors()

	statuses := make([]Status, len(descriptors))
	syncutil.FanOut(len(descriptors), func(i int) {
		statuses[i] = a.probe(ctx, descriptors[i])
	})

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Service < statuses[j].Service
	})

	report := Report{
		Healthy:   true,
		Services:  statuses,
		CheckedAt: time.Now(),
	}
	for _, st := range statuses {
		if st.State != StateHealthy {
			report.Healthy = false
			break
		}
	}
	return report
}

// Check probes a single service by name.
func (a *Aggregator) Check(ctx context.Context, service string) (Status, error) {
	desc, err := a.registry.Resolve(service)
	if err != nil {
		return Status{}, err
	}
	return a.probe(ctx, desc), nil
}

func (a *Aggregator) probe(ctx context.Context, desc registry.ServiceDescriptor) Status {
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	status := Status{
		Service:   desc.Name,
		CheckedAt: time.Now(),
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, desc.BaseURL+a.cfg.ProbePath, nil)
	if err != nil {
		status.State = StateUnreachable
		status.Error = err.Error()
		return status
	}

	resp, err := a.httpClient.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.State = StateUnreachable
		status.Error = err.Error()
		a.logger.Warn("health probe failed",
			"service", desc.Name,
			"error", err,
		)
		return status
	}
	defer resp.Body.Close()

	status.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status.State = StateHealthy
	} else {
		status.State = StateUnhealthy
	}
	return status
}
