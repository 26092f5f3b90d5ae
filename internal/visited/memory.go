// Package visited tracks content-unit ids already processed. The memory
// backend scopes tracking to one session; the Postgres backend carries it
// across runs.
package visited

import (
	"context"
	"sync"
)

// Memory is a session-scoped visited set. It grows monotonically and never
// shrinks.
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemory creates an empty set.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

// Seen reports whether id was marked before.
func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[id]
	return ok, nil
}

// Mark records id and reports whether it was new.
func (m *Memory) Mark(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = struct{}{}
	return true, nil
}

// Len reports the number of marked ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
