package store

import (
	"context"
	"slices"
	"sync"

	"github.com/fairyhunter13/storefront/internal/model"
)

// Memory keeps snapshots in process memory, keyed by namespace.
type Memory struct {
	mu  sync.RWMutex
	m   map[string]model.CartSnapshot
	key string
}

// NewMemory returns an empty in-memory store for key.
func NewMemory(key string) *Memory {
	return &Memory{m: make(map[string]model.CartSnapshot), key: key}
}

// Load returns a copy of the stored snapshot.
func (s *Memory) Load(_ context.Context) (model.CartSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.m[s.key]
	if !ok {
		return model.CartSnapshot{}, false, nil
	}
	snap.Items = slices.Clone(snap.Items)
	return snap, true, nil
}

// Save stores snap unless the same or a newer revision is already held.
func (s *Memory) Save(_ context.Context, snap model.CartSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[s.key]
	if !supersedes(snap.Revision, cur.Revision, ok) {
		return nil
	}
	snap.Items = slices.Clone(snap.Items)
	s.m[s.key] = snap
	return nil
}
