// Package ratelimit enforces per-client request quotas with fixed-window
// counters at two granularities (per-minute and per-hour), fronted by a
// global requests-per-second guard.
//
// The limiter fails open: if the counter store is unreachable the request
// is allowed and the outage is logged, favoring availability over strict
// quota enforcement. A rejected request still spends the slot it attempted;
// the rejecting increment is not rolled back.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/prilive-com/relay/internal/scrub"
)

type granularity struct {
	label  string
	window time.Duration
}

var (
	perMinute = granularity{label: "m", window: time.Minute}
	perHour   = granularity{label: "h", window: time.Hour}
)

// Decision captures the result of a rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int           // minute-granularity ceiling
	Remaining  int           // minute-granularity remainder after this check
	ResetAt    time.Time     // when the rejecting (or current minute) window resets
	RetryAfter time.Duration // earliest retry hint when denied
}

// Limiter tracks request counts per client key over fixed windows.
type Limiter struct {
	cfg    Config
	store  CounterStore
	global *rate.Limiter
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a Limiter over the given counter store.
func NewLimiter(cfg Config, store CounterStore, logger *slog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		cfg:    cfg,
		store:  store,
		global: rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow checks the global guard and both fixed windows for clientKey.
// Each granularity's counter is incremented before comparison, so a
// rejected request still consumes its slot.
func (l *Limiter) Allow(ctx context.Context, clientKey string) Decision {
	now := l.now()

	if !l.global.Allow() {
		return Decision{
			Allowed:    false,
			Limit:      l.cfg.PerMinute,
			ResetAt:    now.Add(time.Second),
			RetryAfter: time.Second,
		}
	}

	minuteCount, minuteOK := l.check(ctx, clientKey, perMinute, l.cfg.PerMinute, now)
	_, hourOK := l.check(ctx, clientKey, perHour, l.cfg.PerHour, now)

	d := Decision{
		Allowed:   minuteOK && hourOK,
		Limit:     l.cfg.PerMinute,
		Remaining: remaining(l.cfg.PerMinute, minuteCount),
		ResetAt:   windowReset(now, perMinute.window),
	}
	if !d.Allowed {
		reset := windowReset(now, perMinute.window)
		if minuteOK { // only the hour ceiling tripped
			reset = windowReset(now, perHour.window)
		}
		d.ResetAt = reset
		d.RetryAfter = reset.Sub(now)
	}
	return d
}

// Remaining reports the minute-granularity quota left for clientKey without
// consuming a slot. Returns the full ceiling if the store is unreachable.
func (l *Limiter) Remaining(ctx context.Context, clientKey string) int {
	now := l.now()
	count, err := l.store.Get(ctx, windowKey(clientKey, perMinute, now))
	if err != nil {
		l.warnStoreFailure(clientKey, err)
		return l.cfg.PerMinute
	}
	return remaining(l.cfg.PerMinute, count)
}

// check increments the window counter for one granularity and compares the
// post-increment value against the ceiling. Store failures allow the request.
func (l *Limiter) check(ctx context.Context, clientKey string, g granularity, ceiling int, now time.Time) (int64, bool) {
	count, err := l.store.Increment(ctx, windowKey(clientKey, g, now), g.window)
	if err != nil {
		l.warnStoreFailure(clientKey, err)
		return 0, true // fail open
	}
	return count, count <= int64(ceiling)
}

func (l *Limiter) warnStoreFailure(clientKey string, err error) {
	l.logger.Warn("rate limit store unreachable, failing open",
		"client_key", scrub.ClientKey(clientKey),
		"error", err,
	)
}

// windowKey forms the composite (client, granularity, window id) key.
func windowKey(clientKey string, g granularity, now time.Time) string {
	id := now.Unix() / int64(g.window/time.Second)
	return fmt.Sprintf("%s:%s:%d", clientKey, g.label, id)
}

// windowReset returns the start of the next window of the given size.
func windowReset(now time.Time, window time.Duration) time.Time {
	secs := int64(window / time.Second)
	id := now.Unix() / secs
	return time.Unix((id+1)*secs, 0)
}

func remaining(ceiling int, count int64) int {
	left := ceiling - int(count)
	if left < 0 {
		return 0
	}
	return left
}
