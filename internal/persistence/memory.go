package persistence

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
}

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, snapshot Snapshot) error {
	s.mu.Lock()
	s.snapshots[key] = snapshot
	s.mu.Unlock()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Snapshot, error) {
	s.mu.Lock()
	snapshot, ok := s.snapshots[key]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshot, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.snapshots[key]
	delete(s.snapshots, key)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Len reports the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}
