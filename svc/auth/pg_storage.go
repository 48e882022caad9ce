package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/trevia/pkg/pg"
)

const identityColumns = `id, email, metadata, email_confirmed_at, created_at`

// PGStorage stores identities in the identities table.
type PGStorage struct {
	db *sql.DB
}

func NewPGStorage(db *sql.DB) *PGStorage {
	return &PGStorage{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner, extra ...any) (Identity, error) {
	var (
		identity  Identity
		metadata  []byte
		confirmed sql.NullTime
	)
	dest := append([]any{&identity.ID, &identity.Email, &metadata, &confirmed, &identity.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if pg.IsNotFoundError(err) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("auth: scan identity: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &identity.Metadata); err != nil {
			return Identity{}, fmt.Errorf("auth: decode metadata: %w", err)
		}
	}
	if identity.Metadata == nil {
		identity.Metadata = map[string]any{}
	}
	if confirmed.Valid {
		t := confirmed.Time
		identity.EmailConfirmedAt = &t
	}
	return identity, nil
}

func (s *PGStorage) Create(ctx context.Context, identity Identity, passwordHash []byte) error {
	metadata, err := json.Marshal(nonNilMetadata(identity.Metadata))
	if err != nil {
		return fmt.Errorf("auth: encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.Email, string(passwordHash), metadata, identity.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("auth: insert identity: %w", err)
	}
	return nil
}

func (s *PGStorage) GetByID(ctx context.Context, id string) (Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

func (s *PGStorage) GetByEmail(ctx context.Context, email string) (Identity, []byte, error) {
	var hash string
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+`, password_hash FROM identities WHERE email = $1`, email)
	identity, err := scanIdentity(row, &hash)
	if err != nil {
		return Identity{}, nil, err
	}
	return identity, []byte(hash), nil
}

// UpdateMetadata merges with jsonb concatenation, then strips keys whose
// patch value was null.
func (s *PGStorage) UpdateMetadata(ctx context.Context, id string, patch map[string]any) (Identity, error) {
	set := make(map[string]any, len(patch))
	var remove []string
	for k, v := range patch {
		if v == nil {
			remove = append(remove, k)
			continue
		}
		set[k] = v
	}
	encoded, err := json.Marshal(set)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: encode metadata: %w", err)
	}
	removed, err := json.Marshal(nonNilStrings(remove))
	if err != nil {
		return Identity{}, fmt.Errorf("auth: encode metadata keys: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`UPDATE identities
		SET metadata = (metadata || $2::jsonb) - ARRAY(SELECT jsonb_array_elements_text($3::jsonb))
		WHERE id = $1
		RETURNING `+identityColumns,
		id, encoded, removed,
	)
	return scanIdentity(row)
}

func (s *PGStorage) ConfirmEmail(ctx context.Context, id string, at time.Time) (Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE identities SET email_confirmed_at = $2 WHERE id = $1 AND email_confirmed_at IS NULL RETURNING `+identityColumns,
		id, at,
	)
	identity, err := scanIdentity(row)
	if !errors.Is(err, ErrIdentityNotFound) {
		return identity, err
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return Identity{}, err
	}
	return Identity{}, ErrAlreadyConfirmed
}

func nonNilMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
