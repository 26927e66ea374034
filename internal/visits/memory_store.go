package visits

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store keyed by system id.
// This is intended for testing and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	visits map[string]Visit
	saves  int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{visits: make(map[string]Visit)}
}

// Save stores the visit, replacing any earlier visit for the same system id.
func (s *MemoryStore) Save(_ context.Context, v Visit) error {
	if v.SystemID == "" {
		return ErrMissingSystemID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.visits[v.SystemID] = v
	s.saves++
	return nil
}

// Get returns the latest visit for a system id.
func (s *MemoryStore) Get(_ context.Context, systemID string) (Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.visits[systemID]
	if !ok {
		return Visit{}, ErrVisitNotFound
	}
	return v, nil
}

// Len returns the number of distinct system ids stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visits)
}

// Saves returns the number of successful Save calls.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
