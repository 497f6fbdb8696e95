// Package scrub provides security helpers for keeping client credentials
// out of logs and errors.
package scrub

import "strings"

// redactedSuffix replaces everything but a short prefix of a client key.
const redactedSuffix = "…"

// ClientKey masks an API key for display: the first four characters are
// kept so operators can correlate log lines, the rest is dropped.
// Network-address keys (containing a dot or colon) are returned unchanged;
// they are not secrets.
func ClientKey(key string) string {
	if strings.ContainsAny(key, ".:") {
		return key
	}
	if len(key) <= 4 {
		return redactedSuffix
	}
	return key[:4] + redactedSuffix
}

// KeyFromError removes a raw API key from an error message.
// Preserves the error chain for errors.Is/As via Unwrap().
func KeyFromError(err error, key string) error {
	if err == nil {
		return nil
	}
	if key == "" {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, key) {
		return &scrubbedError{
			msg: strings.ReplaceAll(msg, key, "[REDACTED]"),
			err: err,
		}
	}
	return err
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }
