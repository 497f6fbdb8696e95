package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prilive-com/relay/dispatch"
	"github.com/prilive-com/relay/gw"
)

// errorEnvelope is the JSON body for every gateway-generated error.
// Upstream error bodies are never echoed back to the caller.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// handleDispatch forwards ANY /api/v1/{service}[/*] to the named service.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	path := "/" + chi.URLParam(r, "*")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize))
	if err != nil {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the configured limit")
		return
	}

	resp, err := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		Service:   service,
		Method:    r.Method,
		Path:      path,
		Query:     r.URL.Query(),
		Header:    r.Header,
		Body:      body,
		ClientKey: clientKey(r),
	})
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}

	header := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	header.Set("X-RateLimit-Remaining", strconv.Itoa(resp.RateRemaining))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(resp.RateReset.Unix(), 10))

	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body) //nolint:errcheck
}

// handleHealth reports the gateway's own liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleServicesHealth probes every registered service and returns the
// aggregate report. 503 signals at least one degraded service so load
// balancers can act on the status code alone.
func (s *Server) handleServicesHealth(w http.ResponseWriter, r *http.Request) {
	report := s.aggregator.CheckAll(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// writeDispatchError maps the dispatch error taxonomy onto stable HTTP
// statuses. 4xx upstream responses never reach this path; they are
// forwarded verbatim by handleDispatch.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var rateErr *gw.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rateErr.RetryAfter)))
		s.writeError(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		return
	}

	switch {
	case errors.Is(err, gw.ErrServiceUnknown):
		s.writeError(w, r, http.StatusNotFound, "service_unknown", err.Error())
	case errors.Is(err, gw.ErrCircuitOpen):
		s.writeError(w, r, http.StatusServiceUnavailable, "circuit_open", err.Error())
	case errors.Is(err, gw.ErrUpstreamTimeout):
		s.writeError(w, r, http.StatusGatewayTimeout, "upstream_timeout", err.Error())
	case errors.Is(err, gw.ErrUpstream):
		s.writeError(w, r, http.StatusBadGateway, "upstream_error", err.Error())
	case errors.Is(err, gw.ErrTransport):
		s.writeError(w, r, http.StatusBadGateway, "upstream_unreachable", err.Error())
	case errors.Is(err, gw.ErrResponseTooLarge):
		s.writeError(w, r, http.StatusBadGateway, "response_too_large", err.Error())
	default:
		s.logger.Error("unclassified dispatch error",
			"request_id", RequestID(r.Context()),
			"error", err,
		)
		s.writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// clientKey identifies the caller for rate limiting: the API key when
// presented, otherwise the remote address.
func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.RemoteAddr
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
