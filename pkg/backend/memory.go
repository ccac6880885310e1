package backend

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process backend, the default medium and the one the test
// suite runs against. It estimates usage from its own byte accounting.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	used     int64
	capacity int64
}

// NewMemory creates an in-memory backend. capacity is the medium-level
// ceiling reported by Estimate; zero means unbounded.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		data:     make(map[string][]byte),
		capacity: capacity,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[key]; ok {
		m.used -= int64(len(key) + len(old))
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.used += int64(len(key) + len(stored))
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[key]; ok {
		m.used -= int64(len(key) + len(old))
		delete(m.data, key)
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *Memory) Estimate(_ context.Context) (Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Usage{TotalBytes: m.capacity, UsedBytes: m.used}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string][]byte)
	m.used = 0
	return nil
}
