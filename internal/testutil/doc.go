// Package testutil provides test helpers: a mock upstream service with
// request capture, canned replies, and a fake sleeper for deterministic
// retry timing.
package testutil
