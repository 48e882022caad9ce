package auth

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"
)

// Storage persists identities and their password hashes. Emails are stored
// normalized; lookups by email are exact.
type Storage interface {
	// Create returns ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, identity Identity, passwordHash []byte) error
	// GetByID returns ErrIdentityNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (Identity, error)
	// GetByEmail returns ErrIdentityNotFound for unknown emails.
	GetByEmail(ctx context.Context, email string) (Identity, []byte, error)
	// UpdateMetadata merges patch into the stored metadata. Keys with a nil
	// value are removed.
	UpdateMetadata(ctx context.Context, id string, patch map[string]any) (Identity, error)
	// ConfirmEmail stamps the confirmation once. A second call returns
	// ErrAlreadyConfirmed.
	ConfirmEmail(ctx context.Context, id string, at time.Time) (Identity, error)
}

type memoryRecord struct {
	identity Identity
	hash     []byte
}

// MemoryStorage keeps identities in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	byID    map[string]*memoryRecord
	byEmail map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID:    make(map[string]*memoryRecord),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStorage) Create(_ context.Context, identity Identity, passwordHash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(identity.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrEmailTaken
	}
	s.byID[identity.ID] = &memoryRecord{identity: identity.Clone(), hash: append([]byte(nil), passwordHash...)}
	s.byEmail[email] = identity.ID
	return nil
}

func (s *MemoryStorage) GetByID(_ context.Context, id string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return rec.identity.Clone(), nil
}

func (s *MemoryStorage) GetByEmail(_ context.Context, email string) (Identity, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return Identity{}, nil, ErrIdentityNotFound
	}
	rec := s.byID[id]
	return rec.identity.Clone(), append([]byte(nil), rec.hash...), nil
}

func (s *MemoryStorage) UpdateMetadata(_ context.Context, id string, patch map[string]any) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	if rec.identity.Metadata == nil {
		rec.identity.Metadata = make(map[string]any, len(patch))
	}
	maps.Copy(rec.identity.Metadata, patch)
	for k, v := range patch {
		if v == nil {
			delete(rec.identity.Metadata, k)
		}
	}
	return rec.identity.Clone(), nil
}

func (s *MemoryStorage) ConfirmEmail(_ context.Context, id string, at time.Time) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	if rec.identity.EmailConfirmedAt != nil {
		return Identity{}, ErrAlreadyConfirmed
	}
	rec.identity.EmailConfirmedAt = &at
	return rec.identity.Clone(), nil
}
