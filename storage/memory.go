package storage

import (
	"context"
	"sort"
	"sync"
)

// Backend is a physical key-value store holding serialized strings
type Backend interface {
	Name() string
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	// RemoveItems deletes all keys in one operation
	RemoveItems(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
}

// MemoryBackend is the local ephemeral backend. Its contents live as
// long as the host session that selected it.
type MemoryBackend struct {
	items map[string]string
	mu    sync.RWMutex
}

// NewMemoryBackend creates an empty memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		items: make(map[string]string),
	}
}

func (m *MemoryBackend) Name() string { return "memory" }

// GetItem retrieves a value
func (m *MemoryBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	return v, ok, nil
}

// SetItem stores a value
func (m *MemoryBackend) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = value
	return nil
}

// RemoveItems deletes keys under a single lock
func (m *MemoryBackend) RemoveItems(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Keys returns all keys in sorted order
func (m *MemoryBackend) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the number of stored keys
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}
