package kvstore

import (
	"context"
	"sync"
)

// inMemory implements Store using an in-memory map.
type inMemory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewInMemoryStore creates a Store that lives only as long as the process.
func NewInMemoryStore() Store {
	return &inMemory{
		entries: make(map[string]string),
	}
}

// Get retrieves a value by its key.
func (s *inMemory) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// Set stores a value under its key.
func (s *inMemory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	return nil
}
