// Package metrics holds the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Inbound HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dispatch core
	DispatchTotal       *prometheus.CounterVec
	DispatchAttempts    *prometheus.CounterVec
	UpstreamLatency     *prometheus.HistogramVec
	RateLimitRejections *prometheus.CounterVec
	CircuitState        *prometheus.GaugeVec
}

// New creates the metrics collection with its own registry, including the
// standard Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registerer := prometheus.WrapRegistererWith(prometheus.Labels{"service": "relay"}, registry)

	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total number of inbound HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "Inbound HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),

		DispatchTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_dispatch_total",
				Help: "Dispatch outcomes by destination service",
			},
			[]string{"destination", "outcome"},
		),
		DispatchAttempts: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_dispatch_attempts_total",
				Help: "Individual upstream call attempts by destination service",
			},
			[]string{"destination"},
		),
		UpstreamLatency: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_upstream_latency_seconds",
				Help:    "Upstream call latency in seconds, successful attempts only",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"destination"},
		),
		RateLimitRejections: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"destination"},
		),
		CircuitState: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_circuit_state",
				Help: "Circuit breaker state per destination (0 closed, 1 half-open, 2 open)",
			},
			[]string{"destination"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
