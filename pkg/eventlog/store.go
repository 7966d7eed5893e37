// Package eventlog records visit lifecycle events to an immutable
// object-store audit log. Every write is a new object under a
// deterministic key; the log is the union of all written objects.
package eventlog

import (
	"context"
	"sort"
	"sync"
)

// Store is the write-only object store the log appends to.
type Store interface {
	// Put writes content under key. Keys are never overwritten in normal
	// operation; the key format makes collisions a non-issue.
	Put(ctx context.Context, key string, content []byte) error

	// Name returns the store name for logging/debugging.
	Name() string
}

// MemoryStore keeps written objects in memory (for testing).
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores content under key.
func (s *MemoryStore) Put(ctx context.Context, key string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), content...)
	return nil
}

// Name returns "memory".
func (s *MemoryStore) Name() string { return "memory" }

// Keys returns all written keys, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the content written under key.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.objects[key]
	return content, ok
}
