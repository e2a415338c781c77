package store

import (
	"context"
	"sync"

	"github.com/leoncowle/mastodon-misc/internal/snapshot"
)

// MemoryStore keeps the baseline in process memory.
type MemoryStore struct {
	mutex sync.Mutex
	saved snapshot.ListSnapshot
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a MemoryStore that already holds a baseline.
func NewMemoryStoreWith(s snapshot.ListSnapshot) *MemoryStore {
	return &MemoryStore{saved: s.Clone()}
}

func (s *MemoryStore) Load(ctx context.Context) (snapshot.ListSnapshot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.saved == nil {
		return nil, ErrBaselineMissing
	}
	return s.saved.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, snap snapshot.ListSnapshot) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.saved = snap.Clone()
	if s.saved == nil {
		s.saved = snapshot.ListSnapshot{}
	}
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error {
	return nil
}
