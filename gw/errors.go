package gw

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors - use with errors.Is()
var (
	// Dispatch errors
	ErrServiceUnknown  = errors.New("relay: unknown service")
	ErrRateLimited     = errors.New("relay: rate limit exceeded")
	ErrCircuitOpen     = errors.New("relay: circuit breaker open")
	ErrUpstreamTimeout = errors.New("relay: upstream timed out")
	ErrUpstream        = errors.New("relay: upstream error")
	ErrTransport       = errors.New("relay: transport failure")

	// Client errors
	ErrResponseTooLarge = errors.New("relay: upstream response too large")
	ErrInvalidConfig    = errors.New("relay: invalid configuration")
)

// ServiceUnknownError is returned when the requested logical service has no
// entry in the registry. Detected before any network call; never retried.
type ServiceUnknownError struct {
	Name string
}

func (e *ServiceUnknownError) Error() string {
	return fmt.Sprintf("relay: unknown service %q", e.Name)
}

func (e *ServiceUnknownError) Unwrap() error { return ErrServiceUnknown }

// RateLimitError is returned when a client exceeded its quota. The rejecting
// increment is not rolled back; the client spends the slot it attempted.
type RateLimitError struct {
	ClientKey  string // already redacted for display
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("relay: rate limit exceeded for %s (limit=%d, retry_after=%s)",
		e.ClientKey, e.Limit, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// CircuitOpenError is returned when the destination's breaker rejects the
// call. Distinct from a genuine upstream 5xx so operators can tell
// gateway-side protection from a real outage.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("relay: circuit open for service %q", e.Service)
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// TimeoutError is returned when every retry attempt timed out.
type TimeoutError struct {
	Service  string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("relay: %s timed out after %d attempt(s)", e.Service, e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return ErrUpstreamTimeout }

// UpstreamError is returned when the destination kept answering 5xx until
// retries were exhausted. 4xx responses are never wrapped in this error;
// they pass through to the caller verbatim.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       []byte
	Attempts   int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("relay: %s responded %d after %d attempt(s)",
		e.Service, e.StatusCode, e.Attempts)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// IsRetryable reports whether another attempt could succeed.
func (e *UpstreamError) IsRetryable() bool {
	return e.StatusCode >= 500 && e.StatusCode <= 599
}

// TransportError is returned for connection-level failures (DNS, refused
// connection) after retries were exhausted.
type TransportError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("relay: %s unreachable after %d attempt(s): %v",
		e.Service, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return ErrTransport }
