package scrub_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prilive-com/relay/internal/scrub"
)

func TestClientKey(t *testing.T) {
	cases := []struct {
		name string
		key  string
		want string
	}{
		{"api key keeps prefix", "sk-live-abcdef123456", "sk-l…"},
		{"short key fully masked", "abcd", "…"},
		{"empty key", "", "…"},
		{"ip address unchanged", "10.0.0.7", "10.0.0.7"},
		{"host port unchanged", "10.0.0.7:54321", "10.0.0.7:54321"},
		{"ipv6 unchanged", "[::1]:8080", "[::1]:8080"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scrub.ClientKey(tc.key))
		})
	}
}

func TestKeyFromError_RedactsKey(t *testing.T) {
	base := errors.New("denied")
	err := fmt.Errorf("auth failed for key sk-live-abcdef: %w", base)

	scrubbed := scrub.KeyFromError(err, "sk-live-abcdef")

	assert.NotContains(t, scrubbed.Error(), "sk-live-abcdef")
	assert.Contains(t, scrubbed.Error(), "[REDACTED]")
	assert.ErrorIs(t, scrubbed, base, "the error chain survives redaction")
}

func TestKeyFromError_PassThrough(t *testing.T) {
	err := errors.New("plain failure")

	assert.Same(t, err, scrub.KeyFromError(err, "sk-live-abcdef"), "no key in message, no wrapping")
	assert.Same(t, err, scrub.KeyFromError(err, ""), "empty key never wraps")
	assert.NoError(t, scrub.KeyFromError(nil, "sk-live-abcdef"))
}
