package session

import (
	"context"
	"sync"
)

// Backend is the durable key-value store behind a Store. Implementations must
// be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Apply writes every entry of set and removes every key in del as one
	// atomic batch.
	Apply(ctx context.Context, set map[string]string, del []string) error
}

// MemoryBackend keeps the session in process memory. It does not survive a
// restart and is meant for tests and ephemeral tooling.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]string)}
}

// Get returns the value stored under key.
func (b *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.entries[key]
	return v, ok, nil
}

// Apply writes and deletes keys under one lock.
func (b *MemoryBackend) Apply(_ context.Context, set map[string]string, del []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range del {
		delete(b.entries, k)
	}
	for k, v := range set {
		b.entries[k] = v
	}
	return nil
}

// Len returns the number of stored keys.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
