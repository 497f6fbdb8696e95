// Package dispatch implements the gateway's resilient request executor.
//
// A Dispatcher composes the service registry, the per-client rate limiter
// and a per-destination circuit breaker group around an outbound HTTP
// client. Every dispatch resolves the destination, passes the rate-limit
// gate, then executes the call under bounded exponential-backoff retry
// where each individual attempt is admitted and charged by the
// destination's circuit breaker.
package dispatch
