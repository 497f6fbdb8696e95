package dispatch_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/relay/breaker"
	"github.com/prilive-com/relay/dispatch"
	"github.com/prilive-com/relay/gw"
	"github.com/prilive-com/relay/internal/testutil"
	"github.com/prilive-com/relay/ratelimit"
	"github.com/prilive-com/relay/registry"
)

type fixture struct {
	upstream   *testutil.MockUpstream
	dispatcher *dispatch.Dispatcher
	breakers   *breaker.Group
	sleeper    *testutil.FakeSleeper
}

type fixtureConfig struct {
	dispatch  dispatch.Config
	breaker   breaker.Config
	perMinute int
}

func defaultFixtureConfig() fixtureConfig {
	dcfg := dispatch.DefaultConfig()
	dcfg.MaxAttempts = 3
	dcfg.RetryBaseWait = time.Second
	dcfg.RetryFactor = 2.0
	dcfg.RetryJitter = 0

	return fixtureConfig{
		dispatch:  dcfg,
		breaker:   breaker.Config{FailureThreshold: 5, RecoveryTimeout: time.Minute},
		perMinute: 1000,
	}
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()

	upstream := testutil.NewMockUpstream(t)

	reg, err := registry.New(map[string]string{"orders": upstream.BaseURL()})
	require.NoError(t, err)

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.PerMinute = cfg.perMinute
	rlCfg.PerHour = cfg.perMinute * 10
	rlCfg.GlobalRPS = 1000000
	rlCfg.GlobalBurst = 1000000
	limiter := ratelimit.NewLimiter(rlCfg, store, nil)

	breakers := breaker.NewGroup(cfg.breaker, nil)
	sleeper := &testutil.FakeSleeper{}

	d := dispatch.NewDispatcher(cfg.dispatch, reg, limiter, breakers,
		dispatch.WithSleeper(sleeper),
	)

	return &fixture{
		upstream:   upstream,
		dispatcher: d,
		breakers:   breakers,
		sleeper:    sleeper,
	}
}

func ordersRequest() dispatch.Request {
	return dispatch.Request{
		Service:   "orders",
		Method:    http.MethodGet,
		Path:      "/v2/orders",
		ClientKey: "client-a",
	}
}

func TestDispatcher_SuccessPassesThrough(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())
	f.upstream.On(http.MethodPost, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Order-Id", "42")
		testutil.ReplyJSON(w, http.StatusCreated, map[string]any{"id": 42})
	})

	req := ordersRequest()
	req.Method = http.MethodPost
	req.Query = url.Values{"expand": []string{"items"}}
	req.Header = http.Header{"X-Tenant": []string{"acme"}}
	req.Body = []byte(`{"sku":"widget"}`)

	resp, err := f.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "42", resp.Header.Get("X-Order-Id"))
	assert.Contains(t, string(resp.Body), `"id":42`)
	assert.Equal(t, 1, resp.Attempts)

	capture := f.upstream.LastCapture()
	require.NotNil(t, capture)
	assert.Equal(t, http.MethodPost, capture.Method)
	assert.Equal(t, "/v2/orders", capture.Path)
	assert.Equal(t, "items", capture.Query.Get("expand"))
	assert.Equal(t, "acme", capture.Headers.Get("X-Tenant"))
	assert.Equal(t, `{"sku":"widget"}`, string(capture.Body))
}

func TestDispatcher_4xxPassesThroughWithoutRetry(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyNotFound(w, "no such order")
	})

	resp, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.NoError(t, err, "a 4xx is the caller's answer, not a gateway failure")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, 1, f.upstream.CaptureCount(), "4xx is never retried")
	assert.Equal(t, 0, f.sleeper.CallCount())
}

func TestDispatcher_4xxDoesNotChargeBreaker(t *testing.T) {
	cfg := defaultFixtureConfig()
	cfg.breaker.FailureThreshold = 2
	f := newFixture(t, cfg)
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyJSON(w, http.StatusForbidden, map[string]any{"error": "nope"})
	})

	for i := 0; i < 10; i++ {
		resp, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	assert.Equal(t, gobreaker.StateClosed, f.breakers.State("orders"))
}

func TestDispatcher_5xxRetriedToExhaustion(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, http.StatusInternalServerError, "boom")
	})

	_, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrUpstream)

	var upErr *gw.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
	assert.Equal(t, 3, upErr.Attempts)

	assert.Equal(t, 3, f.upstream.CaptureCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeper.Calls(),
		"backoff doubles between attempts")
}

func TestDispatcher_5xxThenSuccess(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())

	var calls int
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			testutil.ReplyServerError(w, http.StatusBadGateway, "warming up")
			return
		}
		testutil.ReplyJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	resp, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
}

func TestDispatcher_BreakerOpensAndShortCircuits(t *testing.T) {
	cfg := defaultFixtureConfig()
	cfg.breaker.FailureThreshold = 2
	cfg.dispatch.MaxAttempts = 1
	f := newFixture(t, cfg)
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, http.StatusInternalServerError, "down")
	})

	for i := 0; i < 2; i++ {
		_, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
		assert.ErrorIs(t, err, gw.ErrUpstream)
	}

	_, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrCircuitOpen)
	assert.Equal(t, 2, f.upstream.CaptureCount(),
		"an open circuit answers without contacting the destination")
}

func TestDispatcher_CircuitOpeningMidSequenceFailsFast(t *testing.T) {
	cfg := defaultFixtureConfig()
	cfg.breaker.FailureThreshold = 2
	cfg.dispatch.MaxAttempts = 5
	f := newFixture(t, cfg)
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, http.StatusInternalServerError, "down")
	})

	_, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrCircuitOpen,
		"the circuit opening mid-sequence stops the retry loop")
	assert.Equal(t, 2, f.upstream.CaptureCount(),
		"only the attempts before the trip reach the destination")
}

func TestDispatcher_UnknownService(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())

	req := ordersRequest()
	req.Service = "payments"

	_, err := f.dispatcher.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrServiceUnknown)
	assert.Equal(t, 0, f.upstream.CaptureCount(), "unknown services never reach the network")
}

func TestDispatcher_RateLimited(t *testing.T) {
	cfg := defaultFixtureConfig()
	cfg.perMinute = 1
	f := newFixture(t, cfg)

	_, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.NoError(t, err)

	_, err = f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrRateLimited)

	var rateErr *gw.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 1, rateErr.Limit)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))
	assert.NotEqual(t, "client-a", rateErr.ClientKey, "client keys are redacted in errors")

	assert.Equal(t, 1, f.upstream.CaptureCount(), "rejected requests never reach the destination")
}

func TestDispatcher_ResponseTooLarge(t *testing.T) {
	cfg := defaultFixtureConfig()
	cfg.dispatch.MaxResponseSize = 64
	f := newFixture(t, cfg)
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(strings.Repeat("x", 1024))) //nolint:errcheck
	})

	_, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrResponseTooLarge)
	assert.NotErrorIs(t, err, gw.ErrTransport,
		"an oversized body is a gateway policy rejection, not a transport fault")
	assert.Equal(t, 1, f.upstream.CaptureCount(), "oversized responses are not retried")
	assert.Equal(t, gobreaker.StateClosed, f.breakers.State("orders"),
		"the destination answered; the breaker is not charged")
}

func TestDispatcher_AttemptTimeout(t *testing.T) {
	cfg := defaultFixtureConfig()
	cfg.dispatch.UpstreamTimeout = 50 * time.Millisecond
	cfg.dispatch.MaxAttempts = 2
	f := newFixture(t, cfg)
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		testutil.ReplyJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	_, err := f.dispatcher.Dispatch(context.Background(), ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrUpstreamTimeout)

	var timeoutErr *gw.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "orders", timeoutErr.Service)
	assert.Equal(t, 2, timeoutErr.Attempts, "each attempt gets its own deadline and is retried")
}

func TestDispatcher_TransportFailure(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())

	// Point the registry at a closed port.
	reg, err := registry.New(map[string]string{"orders": "http://127.0.0.1:1"})
	require.NoError(t, err)

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), store, nil)

	cfg := defaultFixtureConfig()
	d := dispatch.NewDispatcher(cfg.dispatch, reg, limiter, breaker.NewGroup(cfg.breaker, nil),
		dispatch.WithSleeper(f.sleeper),
	)

	_, err = d.Dispatch(context.Background(), ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrTransport)

	var transportErr *gw.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 3, transportErr.Attempts)
}

func TestDispatcher_TransportErrorRedactsClientKey(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())

	reg, err := registry.New(map[string]string{"orders": "http://127.0.0.1:1"})
	require.NoError(t, err)

	store := ratelimit.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), store, nil)

	cfg := defaultFixtureConfig()
	d := dispatch.NewDispatcher(cfg.dispatch, reg, limiter, breaker.NewGroup(cfg.breaker, nil),
		dispatch.WithSleeper(f.sleeper),
	)

	// Dial errors quote the full URL, so a key passed as a query
	// parameter would otherwise leak into the error text.
	req := ordersRequest()
	req.ClientKey = "sk-live-deadbeef"
	req.Query = url.Values{"api_key": []string{"sk-live-deadbeef"}}

	_, err = d.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, gw.ErrTransport)
	assert.NotContains(t, err.Error(), "sk-live-deadbeef")
	assert.Contains(t, err.Error(), "[REDACTED]")
}

func TestDispatcher_CallerCancellationStopsRetries(t *testing.T) {
	cfg := defaultFixtureConfig()
	f := newFixture(t, cfg)

	started := make(chan struct{})
	f.upstream.On(http.MethodGet, "/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(500 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := f.dispatcher.Dispatch(ctx, ordersRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.upstream.CaptureCount(), "a disconnected caller gets no further attempts")
	assert.Equal(t, gobreaker.StateClosed, f.breakers.State("orders"),
		"caller disconnects never charge the destination's breaker")
}

func TestDispatcher_HopByHopHeadersDropped(t *testing.T) {
	f := newFixture(t, defaultFixtureConfig())

	req := ordersRequest()
	req.Header = http.Header{
		"Connection":        []string{"keep-alive"},
		"Transfer-Encoding": []string{"chunked"},
		"X-Custom":          []string{"kept"},
	}

	_, err := f.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)

	capture := f.upstream.LastCapture()
	require.NotNil(t, capture)
	assert.Empty(t, capture.Headers.Get("Transfer-Encoding"))
	assert.Equal(t, "kept", capture.Headers.Get("X-Custom"))
}
