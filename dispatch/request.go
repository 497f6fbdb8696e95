package dispatch

import (
	"net/http"
	"net/url"
	"time"
)

// Request describes one inbound call to forward to a downstream service.
type Request struct {
	Service   string // logical destination name
	Method    string
	Path      string // path below the service prefix, starting with "/"
	Query     url.Values
	Header    http.Header // forwarded subset is selected by the dispatcher
	Body      []byte
	ClientKey string // rate-limit identity: API key if present, else caller address
}

// UpstreamResponse is the destination's answer, forwarded verbatim.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Attempts is how many upstream calls were made to produce this response.
	Attempts int

	// Rate-limit metadata for the caller, minute granularity.
	RateRemaining int
	RateReset     time.Time
}

// Hop-by-hop headers are never forwarded in either direction.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// forwardHeader copies the safe subset of src into a fresh header set.
// Authorization passes through unchanged; hop-by-hop headers and Host
// are dropped.
func forwardHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if _, hop := hopByHopHeaders[http.CanonicalHeaderKey(name)]; hop {
			continue
		}
		if http.CanonicalHeaderKey(name) == "Host" {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	return dst
}
