package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prilive-com/relay/breaker"
	"github.com/prilive-com/relay/gw"
	"github.com/prilive-com/relay/internal/httpclient"
	"github.com/prilive-com/relay/internal/metrics"
	"github.com/prilive-com/relay/internal/scrub"
	"github.com/prilive-com/relay/ratelimit"
	"github.com/prilive-com/relay/registry"
)

// Dispatcher routes requests to downstream services with rate limiting,
// circuit breaking and bounded retry. It owns no persistent state of its
// own; it composes the registry, limiter and breaker group per call.
type Dispatcher struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	registry   *registry.Registry
	limiter    *ratelimit.Limiter
	breakers   *breaker.Group
	sleeper    Sleeper
	metrics    *metrics.Metrics
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHTTPClient sets a custom outbound HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.httpClient = client
	}
}

// WithSleeper sets a custom sleeper for retry timing (useful for testing).
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) {
		d.sleeper = s
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a Dispatcher over the given collaborators.
func NewDispatcher(cfg Config, reg *registry.Registry, limiter *ratelimit.Limiter, breakers *breaker.Group, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		registry: reg,
		limiter:  limiter,
		breakers: breakers,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.httpClient == nil {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.RequestTimeout = cfg.UpstreamTimeout
		clientCfg.MaxIdleConns = cfg.MaxIdleConns
		clientCfg.IdleTimeout = cfg.IdleTimeout
		d.httpClient = httpclient.New(clientCfg)
	}
	if d.sleeper == nil {
		d.sleeper = realSleeper{}
	}

	return d
}

// Dispatch resolves the destination, applies the rate-limit gate, and
// executes the outbound call under retry with per-attempt circuit breaking.
// The destination's response is returned verbatim; failures surface as the
// gw error taxonomy.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*UpstreamResponse, error) {
	start := time.Now()

	desc, err := d.registry.Resolve(req.Service)
	if err != nil {
		d.count(req.Service, "service_unknown")
		return nil, err
	}

	dec := d.limiter.Allow(ctx, req.ClientKey)
	if !dec.Allowed {
		d.count(req.Service, "rate_limited")
		if d.metrics != nil {
			d.metrics.RateLimitRejections.WithLabelValues(req.Service).Inc()
		}
		d.logger.Info("rate limit exceeded",
			"service", req.Service,
			"client_key", scrub.ClientKey(req.ClientKey),
			"retry_after", dec.RetryAfter,
		)
		return nil, &gw.RateLimitError{
			ClientKey:  scrub.ClientKey(req.ClientKey),
			Limit:      dec.Limit,
			RetryAfter: dec.RetryAfter,
		}
	}

	resp, attempts, err := d.withRetry(ctx, func() (*UpstreamResponse, error) {
		return d.attempt(ctx, desc, req)
	})
	latency := time.Since(start)

	if err != nil {
		err = d.finalize(req, attempts, err)
		d.count(req.Service, outcomeLabel(err))
		d.logger.Error("dispatch failed",
			"service", req.Service,
			"attempts", attempts,
			"latency", latency,
			"error", err,
		)
		return nil, err
	}

	resp.Attempts = attempts
	resp.RateRemaining = dec.Remaining
	resp.RateReset = dec.ResetAt

	d.count(req.Service, "ok")
	d.logger.Info("dispatch complete",
		"service", req.Service,
		"status", resp.StatusCode,
		"attempts", attempts,
		"latency", latency,
	)
	return resp, nil
}

// attempt performs one upstream call, gated and charged by the
// destination's circuit breaker.
func (d *Dispatcher) attempt(ctx context.Context, desc registry.ServiceDescriptor, req Request) (*UpstreamResponse, error) {
	permit, err := d.breakers.Allow(req.Service)
	if err != nil {
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.DispatchAttempts.WithLabelValues(req.Service).Inc()
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	resp, err := d.do(attemptCtx, desc, req)
	if err != nil {
		// A caller disconnect is not a destination failure.
		if ctx.Err() != nil {
			permit.Cancel()
			return nil, ctx.Err()
		}

		// The destination did answer; the size cap is gateway policy.
		if errors.Is(err, gw.ErrResponseTooLarge) {
			permit.Success()
			return nil, err
		}
		permit.Failure()

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &attemptError{timeout: true, err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &attemptError{timeout: true, err: err}
		}
		return nil, &attemptError{timeout: false, err: err}
	}

	// 5xx counts against the circuit and is retried; everything below 500,
	// 4xx included, passes through verbatim without charging the breaker.
	if resp.StatusCode >= 500 {
		permit.Failure()
		return nil, &gw.UpstreamError{
			Service:    req.Service,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}

	permit.Success()
	if d.metrics != nil {
		d.metrics.UpstreamLatency.WithLabelValues(req.Service).Observe(time.Since(start).Seconds())
	}
	return resp, nil
}

// do builds and performs the raw HTTP exchange for one attempt.
func (d *Dispatcher) do(ctx context.Context, desc registry.ServiceDescriptor, req Request) (*UpstreamResponse, error) {
	u := desc.BaseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header = forwardHeader(req.Header)

	httpResp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	// Read limit+1 to detect overflow without a false positive at the cap.
	limited := io.LimitReader(httpResp.Body, d.cfg.MaxResponseSize+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(respBody)) > d.cfg.MaxResponseSize {
		return nil, gw.ErrResponseTooLarge
	}

	return &UpstreamResponse{
		StatusCode: httpResp.StatusCode,
		Header:     forwardHeader(httpResp.Header),
		Body:       respBody,
	}, nil
}

// finalize shapes the last attempt's error into the caller-facing taxonomy,
// stamping it with the attempt count. Transport causes carry the full
// upstream URL, so the client key is redacted from their messages.
func (d *Dispatcher) finalize(req Request, attempts int, err error) error {
	var upErr *gw.UpstreamError
	if errors.As(err, &upErr) {
		upErr.Attempts = attempts
		return upErr
	}

	var attErr *attemptError
	if errors.As(err, &attErr) {
		if attErr.timeout {
			return &gw.TimeoutError{Service: req.Service, Attempts: attempts}
		}
		return &gw.TransportError{
			Service:  req.Service,
			Attempts: attempts,
			Err:      scrub.KeyFromError(attErr.err, req.ClientKey),
		}
	}

	return err
}

func (d *Dispatcher) count(service, outcome string) {
	if d.metrics != nil {
		d.metrics.DispatchTotal.WithLabelValues(service, outcome).Inc()
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, gw.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, gw.ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, gw.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, gw.ErrTransport):
		return "transport_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
