package settings

import (
	"context"
	"sync"

	"github.com/GamerLionLeo/CGM-Trakr/internal/glucose"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]glucose.Settings
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]glucose.Settings)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (glucose.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[userID]
	if !ok {
		return glucose.DefaultSettings(), nil
	}
	return entry, nil
}

func (s *MemoryStore) Put(_ context.Context, userID string, settings glucose.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = settings
	return nil
}
