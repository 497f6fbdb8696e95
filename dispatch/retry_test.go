package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prilive-com/relay/gw"
)

func backoffConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBaseWait = time.Second
	cfg.RetryMaxWait = 30 * time.Second
	cfg.RetryFactor = 2.0
	cfg.RetryJitter = 0
	return cfg
}

func TestCalculateBackoff_ExponentialGrowth(t *testing.T) {
	cfg := backoffConfig()

	assert.Equal(t, 1*time.Second, calculateBackoff(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateBackoff(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateBackoff(cfg, 3))
	assert.Equal(t, 8*time.Second, calculateBackoff(cfg, 4))
}

func TestCalculateBackoff_CappedAtMaxWait(t *testing.T) {
	cfg := backoffConfig()

	assert.Equal(t, 30*time.Second, calculateBackoff(cfg, 6), "2^5 = 32s exceeds the cap")
	assert.Equal(t, 30*time.Second, calculateBackoff(cfg, 20))
}

func TestCalculateBackoff_NonDecreasing(t *testing.T) {
	cfg := backoffConfig()

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		wait := calculateBackoff(cfg, attempt)
		assert.GreaterOrEqual(t, wait, prev, "attempt %d", attempt)
		prev = wait
	}
}

func TestCalculateBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := backoffConfig()
	cfg.RetryJitter = 0.2

	for i := 0; i < 100; i++ {
		wait := calculateBackoff(cfg, 3) // nominal 4s
		assert.GreaterOrEqual(t, wait, 3200*time.Millisecond)
		assert.LessOrEqual(t, wait, 4800*time.Millisecond)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"attempt timeout", &attemptError{timeout: true, err: context.DeadlineExceeded}, true},
		{"connection failure", &attemptError{timeout: false, err: errors.New("connection refused")}, true},
		{"upstream 500", &gw.UpstreamError{Service: "orders", StatusCode: 500}, true},
		{"upstream 503", &gw.UpstreamError{Service: "orders", StatusCode: 503}, true},
		{"circuit open", &gw.CircuitOpenError{Service: "orders"}, false},
		{"response too large", gw.ErrResponseTooLarge, false},
		{"caller cancelled", context.Canceled, false},
		{"caller deadline", context.DeadlineExceeded, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryable(tc.err))
		})
	}
}
