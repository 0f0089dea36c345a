package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/image-optimizer/pkg/cache"
)

// RecordingStore wraps a cache.Store and records every Set.
type RecordingStore struct {
	cache.Store

	mu   sync.Mutex
	sets []cache.Key

	// SetErr, when set, is returned by Set instead of writing.
	SetErr error
}

// NewRecordingStore wraps inner; a nil inner uses a fresh MemoryStore.
func NewRecordingStore(inner cache.Store) *RecordingStore {
	if inner == nil {
		inner = cache.NewMemoryStore(cache.DefaultMemoryEntries, cache.DefaultTTL)
	}
	return &RecordingStore{Store: inner}
}

// Set records key and delegates to the wrapped store.
func (s *RecordingStore) Set(ctx context.Context, key cache.Key, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.sets = append(s.sets, key)
	s.mu.Unlock()

	if s.SetErr != nil {
		return s.SetErr
	}
	return s.Store.Set(ctx, key, data, ttl)
}

// Enabled reports whether the wrapped store is enabled.
func (s *RecordingStore) Enabled() bool {
	return cache.Enabled(s.Store)
}

// Sets returns the keys passed to Set, in order.
func (s *RecordingStore) Sets() []cache.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cache.Key, len(s.sets))
	copy(out, s.sets)
	return out
}
