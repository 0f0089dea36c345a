package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/image-optimizer/pkg/source"
)

// MemoryObjects is an in-memory source.ObjectStore.
type MemoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int

	// Err, when set, is returned by every Get.
	Err error
}

// NewMemoryObjects creates an empty object store.
func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: make(map[string][]byte)}
}

// Put stores data under key.
func (m *MemoryObjects) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// Get implements source.ObjectStore.
func (m *MemoryObjects) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++

	if m.Err != nil {
		return nil, m.Err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNoSuchKey, key)
	}
	return data, nil
}

// GetCount returns the number of Get calls.
func (m *MemoryObjects) GetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}
