package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps every store in process memory.
// It is the backend used by unit tests and single-process development.
type MemoryBackend struct {
	mu     sync.RWMutex
	stores map[string]map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		stores: make(map[string]map[string][]byte),
	}
}

func (m *MemoryBackend) CreateStore(_ context.Context, store string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[store]; !ok {
		m.stores[store] = make(map[string][]byte)
	}
	return nil
}

func (m *MemoryBackend) HasStore(_ context.Context, store string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stores[store]
	return ok, nil
}

func (m *MemoryBackend) Stores(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBackend) DropStore(_ context.Context, store string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, store)
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, store, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.stores[store]
	if !ok {
		return nil, ErrNotFound
	}
	value, ok := entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryBackend) Put(_ context.Context, store, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.stores[store]
	if !ok {
		return ErrStoreNotFound
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	entries[key] = stored
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, store, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entries, ok := m.stores[store]; ok {
		delete(entries, key)
	}
	return nil
}

func (m *MemoryBackend) Keys(_ context.Context, store string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.stores[store]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
