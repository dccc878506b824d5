package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/shared"
)

// InMemoryIdempotencyStore keeps idempotency keys in process memory.
// It is meant for single-instance deployments and tests; keys do not
// survive a restart and are not shared between replicas.
type InMemoryIdempotencyStore struct {
	mu        sync.RWMutex
	keys      map[string]time.Time // key -> expiry
	clock     clockwork.Clock
	stopCh    chan struct{}
	closeOnce sync.Once
}

// InMemoryOption configures an InMemoryIdempotencyStore
type InMemoryOption func(*InMemoryIdempotencyStore)

// WithClock overrides the clock used for expiry
func WithClock(clock clockwork.Clock) InMemoryOption {
	return func(s *InMemoryIdempotencyStore) {
		s.clock = clock
	}
}

// NewInMemoryIdempotencyStore creates a store and starts its sweeper
func NewInMemoryIdempotencyStore(opts ...InMemoryOption) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		keys:   make(map[string]time.Time),
		clock:  clockwork.NewRealClock(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweep()

	return s
}

// MarkProcessed records key until ttl elapses
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if expiry, ok := s.keys[key]; ok && now.Before(expiry) {
		return false, nil
	}

	s.keys[key] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether key is recorded and not expired
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.keys[key]
	if !ok {
		return false, nil
	}
	return s.clock.Now().Before(expiry), nil
}

// Release forgets key
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

// Size returns the number of recorded keys, expired ones included
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *InMemoryIdempotencyStore) sweep() {
	ticker := s.clock.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, expiry := range s.keys {
		if !now.Before(expiry) {
			delete(s.keys, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
