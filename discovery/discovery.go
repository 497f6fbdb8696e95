// Package discovery registers the gateway with a Consul-compatible agent.
//
// Registration is best effort: the gateway serves traffic whether or not
// the catalogue accepts it, so failures are logged, never fatal.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prilive-com/relay/internal/httpclient"
)

// registration is the agent's service registration payload.
type registration struct {
	ID      string   `json:"ID"`
	Name    string   `json:"Name"`
	Address string   `json:"Address"`
	Port    int      `json:"Port"`
	Tags    []string `json:"Tags,omitempty"`
	Check   *check   `json:"Check,omitempty"`
}

type check struct {
	HTTP     string `json:"HTTP"`
	Interval string `json:"Interval"`
	Timeout  string `json:"Timeout"`
}

// Registrar announces the gateway to the discovery agent.
type Registrar struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
}

// Option configures the Registrar.
type Option func(*Registrar)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registrar) {
		r.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client for agent calls.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registrar) {
		r.httpClient = client
	}
}

// NewRegistrar creates a Registrar. A nil return means discovery is
// disabled (no agent address configured).
func NewRegistrar(cfg Config, opts ...Option) *Registrar {
	if cfg.AgentAddr == "" {
		return nil
	}

	r := &Registrar{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.httpClient == nil {
		clientCfg := httpclient.DefaultConfig()
		clientCfg.RequestTimeout = 5 * time.Second
		r.httpClient = httpclient.New(clientCfg)
	}

	return r
}

// Register announces the gateway to the agent, attaching an HTTP check
// against the gateway's own /health endpoint.
func (r *Registrar) Register(ctx context.Context) error {
	host, port, err := splitAdvertise(r.cfg.AdvertiseAddr)
	if err != nil {
		return fmt.Errorf("invalid advertise address %q: %w", r.cfg.AdvertiseAddr, err)
	}

	payload := registration{
		ID:      r.cfg.ServiceID,
		Name:    r.cfg.ServiceName,
		Address: host,
		Port:    port,
		Tags:    r.cfg.Tags,
		Check: &check{
			HTTP:     fmt.Sprintf("http://%s/health", r.cfg.AdvertiseAddr),
			Interval: "10s",
			Timeout:  "5s",
		},
	}

	if err := r.put(ctx, "/v1/agent/service/register", payload); err != nil {
		return err
	}

	r.logger.Info("registered with discovery agent",
		"agent", r.cfg.AgentAddr,
		"service_id", r.cfg.ServiceID,
		"advertise", r.cfg.AdvertiseAddr,
	)
	return nil
}

// Deregister removes the gateway from the agent's catalogue.
func (r *Registrar) Deregister(ctx context.Context) error {
	path := "/v1/agent/service/deregister/" + r.cfg.ServiceID
	if err := r.put(ctx, path, nil); err != nil {
		return err
	}

	r.logger.Info("deregistered from discovery agent",
		"agent", r.cfg.AgentAddr,
		"service_id", r.cfg.ServiceID,
	)
	return nil
}

func (r *Registrar) put(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := "http://" + r.cfg.AgentAddr + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, data)
	}
	return nil
}

func splitAdvertise(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
