package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the backend for fixed-window counters.
// Implementations must be safe for concurrent use.
type CounterStore interface {
	// Increment atomically increments the counter for key, returning the
	// post-increment value. A missing or expired key is created with value 1
	// and the given time-to-live.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current counter value, or 0 if the key is missing
	// or expired.
	Get(ctx context.Context, key string) (int64, error)
}

// MemoryStore is an in-process CounterStore with TTL expiry.
// Entries are also reaped by a background sweep so abandoned windows
// do not accumulate.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry

	sweepTicker *time.Ticker
	sweepDone   chan struct{}
	closeOnce   sync.Once
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore and starts its sweep goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*counterEntry),
		sweepTicker: time.NewTicker(time.Minute),
		sweepDone:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-s.sweepDone:
				return
			case <-s.sweepTicker.C:
				s.sweep()
			}
		}
	}()

	return s
}

// Increment implements CounterStore.
func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &counterEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Get implements CounterStore.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

// Close stops the sweep goroutine. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.sweepTicker.Stop()
		close(s.sweepDone)
	})
	return nil
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Len returns the number of live entries. Useful for monitoring and tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ CounterStore = (*MemoryStore)(nil)
