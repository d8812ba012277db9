package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps credentials in process memory. Values are lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Store saves value for host.
func (m *MemoryStore) Store(_ context.Context, host, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[host] = value
	return nil
}

// Get loads the value for host.
func (m *MemoryStore) Get(_ context.Context, host string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[host]
	return value, ok, nil
}

// Delete removes host.
func (m *MemoryStore) Delete(_ context.Context, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, host)
	return nil
}

// Clear removes every value.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}
