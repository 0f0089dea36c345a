package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryEntries is the default capacity of a MemoryStore.
const DefaultMemoryEntries = 1024

// MemoryStore is an in-process LRU cache with a store-wide TTL.
// The ttl passed to Set is ignored; entries expire after the TTL given to
// NewMemoryStore.
type MemoryStore struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryStore creates a MemoryStore holding at most size entries.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

// Get returns a copy of the payload for key or ErrCacheMiss.
func (m *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	data, ok := m.lru.Get(key.String())
	if !ok {
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Set stores a copy of data under key.
func (m *MemoryStore) Set(_ context.Context, key Key, data []byte, _ time.Duration) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.lru.Add(key.String(), buf)
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}
