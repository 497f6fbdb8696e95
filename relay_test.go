package relay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/relay"
	"github.com/prilive-com/relay/dispatch"
	"github.com/prilive-com/relay/gw"
	"github.com/prilive-com/relay/internal/testutil"
)

func TestNew_RequiresServices(t *testing.T) {
	_, err := relay.New(nil)
	assert.ErrorIs(t, err, gw.ErrInvalidConfig)
}

func TestNew_RejectsInvalidServiceURL(t *testing.T) {
	_, err := relay.New(map[string]string{"orders": "not-a-url"})
	assert.ErrorIs(t, err, gw.ErrInvalidConfig)
}

func TestGateway_DispatchProgrammatic(t *testing.T) {
	upstream := testutil.NewMockUpstream(t)

	gateway, err := relay.New(map[string]string{"orders": upstream.BaseURL()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gateway.Close() })

	resp, err := gateway.Dispatch(context.Background(), dispatch.Request{
		Service:   "orders",
		Method:    http.MethodGet,
		Path:      "/v2/orders",
		ClientKey: "client-a",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, resp.Attempts)
}

func TestGateway_HTTPSurface(t *testing.T) {
	upstream := testutil.NewMockUpstream(t)

	gateway, err := relay.New(map[string]string{"orders": upstream.BaseURL()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gateway.Close() })

	rec := httptest.NewRecorder()
	gateway.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/v2/orders", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/v2/orders", upstream.LastCapture().Path)
}

func TestGateway_UpdateServices(t *testing.T) {
	upstream := testutil.NewMockUpstream(t)

	gateway, err := relay.New(map[string]string{"orders": upstream.BaseURL()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gateway.Close() })

	require.NoError(t, gateway.UpdateServices(map[string]string{
		"billing": upstream.BaseURL(),
	}))

	assert.Equal(t, []string{"billing"}, gateway.Services())

	_, err = gateway.Dispatch(context.Background(), dispatch.Request{
		Service:   "orders",
		Method:    http.MethodGet,
		Path:      "/",
		ClientKey: "client-a",
	})
	assert.ErrorIs(t, err, gw.ErrServiceUnknown)
}

func TestGateway_CheckHealth(t *testing.T) {
	upstream := testutil.NewMockUpstream(t)
	upstream.On(http.MethodGet, "/health", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyHealthy(w)
	})

	gateway, err := relay.New(map[string]string{"orders": upstream.BaseURL()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gateway.Close() })

	report := gateway.CheckHealth(context.Background())
	assert.True(t, report.Healthy)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("RELAY_SERVICE_ORDERS", "http://orders.internal:8080")
	t.Setenv("RELAY_RATE_LIMIT_PER_MINUTE", "5")
	t.Setenv("RELAY_MAX_ATTEMPTS", "2")

	gateway, err := relay.NewFromEnv()
	require.NoError(t, err)
	t.Cleanup(func() { _ = gateway.Close() })

	assert.Equal(t, []string{"orders"}, gateway.Services())
}
