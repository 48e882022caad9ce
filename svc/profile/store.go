package profile

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store persists profile records keyed by identity id.
type Store interface {
	// GetByID returns ErrNotFound when the user has no row yet.
	GetByID(ctx context.Context, id string) (Record, error)
	// Upsert inserts or replaces the row. A username held by another row
	// yields ErrUsernameTaken.
	Upsert(ctx context.Context, rec Record) error
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Record)}
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Username != "" {
		if len([]rune(rec.Username)) < 3 {
			return ErrInvalidRecord
		}
		for id, other := range s.rows {
			if id != rec.ID && strings.EqualFold(other.Username, rec.Username) {
				return ErrUsernameTaken
			}
		}
	}
	s.rows[rec.ID] = copyRecord(rec)
	return nil
}

func copyRecord(rec Record) Record {
	if rec.UpdatedAt != nil {
		t := *rec.UpdatedAt
		rec.UpdatedAt = &t
	}
	return rec
}

func timePtr(t time.Time) *time.Time { return &t }
