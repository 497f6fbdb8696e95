package dispatch

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/prilive-com/relay/gw"
)

// Sleeper abstracts time-based waiting for testing.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper uses actual time.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// attemptError marks a single failed attempt so the retry loop can classify
// it: timeout vs connection-level failure. The final error surfaced to the
// caller is built from the last attemptError plus the attempt count.
type attemptError struct {
	timeout bool
	err     error
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// withRetry runs fn up to cfg.MaxAttempts times, sleeping the backoff delay
// between attempts. It returns the attempt count alongside the result so
// errors can carry it.
func (d *Dispatcher) withRetry(ctx context.Context, fn func() (*UpstreamResponse, error)) (*UpstreamResponse, int, error) {
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, attempt, nil
		}

		lastErr = err

		// Non-retryable errors surface immediately: 4xx never reaches here
		// (it is a pass-through response), circuit rejections fail fast.
		if !isRetryable(err) {
			return nil, attempt, err
		}

		if attempt == d.cfg.MaxAttempts {
			break
		}

		wait := calculateBackoff(d.cfg, attempt)
		if err := d.sleeper.Sleep(ctx, wait); err != nil {
			return nil, attempt, err
		}
	}

	return nil, d.cfg.MaxAttempts, lastErr
}

func isRetryable(err error) bool {
	if errors.Is(err, gw.ErrResponseTooLarge) {
		return false
	}

	// Attempt timeouts and connection-level failures are both retryable.
	// Checked before the context sentinels: an attempt timeout wraps
	// context.DeadlineExceeded, but only the caller's own deadline or
	// disconnect should stop the retry sequence.
	var attErr *attemptError
	if errors.As(err, &attErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// A circuit that opens mid-sequence fails fast instead of waiting out
	// the backoff.
	if errors.Is(err, gw.ErrCircuitOpen) {
		return false
	}

	var upErr *gw.UpstreamError
	if errors.As(err, &upErr) {
		return upErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// calculateBackoff returns the delay before attempt+1.
// delay = min(maxWait, baseWait * factor^(attempt-1)), optionally jittered.
func calculateBackoff(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.RetryBaseWait) * math.Pow(cfg.RetryFactor, float64(attempt-1))
	if backoff > float64(cfg.RetryMaxWait) {
		backoff = float64(cfg.RetryMaxWait)
	}

	if cfg.RetryJitter > 0 {
		jitterRange := int64(backoff * cfg.RetryJitter)
		if jitterRange > 0 {
			jitter, err := rand.Int(rand.Reader, big.NewInt(jitterRange*2))
			if err == nil {
				backoff += float64(jitter.Int64()) - float64(jitterRange)
			}
		}
	}

	return time.Duration(backoff)
}
