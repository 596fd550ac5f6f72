package token

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Used by tests and
// development runs without Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) Swap(_ context.Context, prevRefreshToken string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.UserID]
	if !ok {
		return ErrNotFound
	}
	if cur.RefreshToken != prevRefreshToken {
		return ErrStale
	}
	s.records[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
	return nil
}
