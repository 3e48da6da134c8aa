package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

// Default memory store configuration constants.
const (
	defaultTTL     = 24 * time.Hour
	defaultMaxSize = 500_000
)

// MemoryStore implements Store on an in-process TTL cache. The cache handles
// retention and bounded size; the mutex makes check-and-set atomic.
type MemoryStore struct {
	mu    sync.Mutex
	cache *otter.Cache[string, time.Time]
	ttl   time.Duration
	max   int
}

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL sets the retention window for recorded keys.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxSize bounds the number of keys kept in memory.
func WithMaxSize(size int) MemoryOption {
	return func(s *MemoryStore) {
		if size > 0 {
			s.max = size
		}
	}
}

// NewMemoryStore creates an in-memory idempotency store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ttl: defaultTTL,
		max: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.cache = otter.Must(&otter.Options[string, time.Time]{
		MaximumSize:      s.max,
		ExpiryCalculator: otter.ExpiryWriting[string, time.Time](s.ttl),
	})

	return s
}

// PutIfAbsent atomically records key if it has not been seen within the
// retention window.
func (s *MemoryStore) PutIfAbsent(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.cache.GetIfPresent(key); seen {
		return false, nil
	}
	s.cache.Set(key, time.Now())
	return true, nil
}

// Remove deletes a key so it can be resubmitted.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Invalidate(key)
	return nil
}

// Size returns the approximate number of live records.
func (s *MemoryStore) Size(_ context.Context) int64 {
	return int64(s.cache.EstimatedSize())
}

// Close releases the store's resources.
func (s *MemoryStore) Close() error {
	return nil
}
