// Package memory stores blobs in-memory for tests and development.
package memory

import (
	"context"
	"sync"
)

// Provider keeps blobs in a map and returns memory:// URIs.
type Provider struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty in-memory provider.
func New() *Provider {
	return &Provider{blobs: make(map[string][]byte)}
}

// Save records the blob under name.
func (p *Provider) Save(_ context.Context, name string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blobs[name] = append([]byte(nil), data...)
	return "memory://" + name, nil
}

// Get returns a stored blob.
func (p *Provider) Get(name string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.blobs[name]
	return data, ok
}

// Len reports the number of stored blobs.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.blobs)
}
