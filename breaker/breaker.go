// Package breaker guards downstream destinations with one circuit breaker
// per logical service name.
//
// Each breaker trips after a configured number of consecutive failures,
// stays open for the recovery timeout, then lazily moves to half-open on
// the next call attempt and admits exactly one trial call. The trial's
// outcome decides the next state: success closes the circuit, failure
// re-opens it. There is no background timer; transitions happen only when
// calls arrive.
package breaker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/prilive-com/relay/gw"
)

// errAttemptFailed is what a failed attempt reports to gobreaker; the
// default IsSuccessful treats any non-nil error as a failure.
var errAttemptFailed = errors.New("attempt failed")

// Permit records the outcome of one admitted call attempt.
// Call exactly one of Success, Failure or Cancel.
type Permit struct {
	done  func(error)
	trial bool
}

// Success reports the attempt as succeeded, resetting the destination's
// failure streak.
func (p Permit) Success() { p.done(nil) }

// Failure reports the attempt as failed, counting against the trip
// threshold. A failed half-open trial re-opens the circuit.
func (p Permit) Failure() { p.done(errAttemptFailed) }

// Cancel reports that the attempt never completed, e.g. the caller
// disconnected mid-call. A closed breaker records it as a success so the
// destination is not charged; a cancelled half-open trial is no evidence
// of recovery and re-opens the circuit.
func (p Permit) Cancel() {
	if p.trial {
		p.done(errAttemptFailed)
		return
	}
	p.done(nil)
}

// StateChangeHook observes state transitions, e.g. to update metrics.
type StateChangeHook func(service string, from, to gobreaker.State)

// Group holds one circuit breaker per destination. Breakers are created on
// first use and shared by all concurrent callers to that destination.
type Group struct {
	cfg    Config
	logger *slog.Logger
	hook   StateChangeHook

	mu       sync.RWMutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker[any]
}

// GroupOption configures the Group.
type GroupOption func(*Group)

// WithStateChangeHook registers a transition observer.
func WithStateChangeHook(hook StateChangeHook) GroupOption {
	return func(g *Group) {
		g.hook = hook
	}
}

// NewGroup creates a breaker group with the given per-destination settings.
func NewGroup(cfg Config, logger *slog.Logger, opts ...GroupOption) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Group{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow asks the destination's breaker to admit a call. On admission the
// returned Permit must resolve with the attempt's outcome; on rejection
// the error is a *gw.CircuitOpenError.
//
// During the open-to-half-open transition only one trial call is admitted;
// concurrent callers are rejected until the trial resolves.
func (g *Group) Allow(service string) (Permit, error) {
	cb := g.get(service)
	done, err := cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Permit{}, &gw.CircuitOpenError{Service: service}
		}
		return Permit{}, err
	}
	// With MaxRequests 1 the breaker stays half-open until this permit
	// resolves, so the state read marks the trial holder reliably.
	return Permit{done: done, trial: cb.State() == gobreaker.StateHalfOpen}, nil
}

// State returns the current state of the destination's breaker.
// A destination never dispatched to reports closed.
func (g *Group) State(service string) gobreaker.State {
	g.mu.RLock()
	cb, ok := g.breakers[service]
	g.mu.RUnlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// States returns a snapshot of every known destination's state.
func (g *Group) States() map[string]gobreaker.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	states := make(map[string]gobreaker.State, len(g.breakers))
	for name, cb := range g.breakers {
		states[name] = cb.State()
	}
	return states
}

func (g *Group) get(service string) *gobreaker.TwoStepCircuitBreaker[any] {
	g.mu.RLock()
	cb, ok := g.breakers[service]
	g.mu.RUnlock()
	if ok {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok = g.breakers[service]; ok {
		return cb
	}

	threshold := g.cfg.FailureThreshold
	cb = gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name: service,
		// One trial call in half-open; its success closes the circuit,
		// its failure re-opens it.
		MaxRequests: 1,
		// Counts never decay in the closed state; a success resets the
		// consecutive-failure count.
		Interval: 0,
		Timeout:  g.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Info("circuit breaker state changed",
				"service", name,
				"from", from.String(),
				"to", to.String(),
			)
			if g.hook != nil {
				g.hook(name, from, to)
			}
		},
	})
	g.breakers[service] = cb
	return cb
}

// StateValue maps a breaker state to its metric value:
// 0 closed, 1 half-open, 2 open.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
