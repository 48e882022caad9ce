package profile

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrymomot/trevia/pkg/pg"
)

// PGStore stores records in the profiles table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) GetByID(ctx context.Context, id string) (Record, error) {
	var (
		rec                                    Record
		username, fullName, avatarURL, website sql.NullString
		updatedAt                              sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, full_name, avatar_url, website, updated_at FROM profiles WHERE id = $1`, id,
	).Scan(&rec.ID, &username, &fullName, &avatarURL, &website, &updatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("profile: select: %w", err)
	}
	rec.Username = username.String
	rec.FullName = fullName.String
	rec.AvatarURL = avatarURL.String
	rec.Website = website.String
	if updatedAt.Valid {
		rec.UpdatedAt = timePtr(updatedAt.Time)
	}
	return rec, nil
}

func (s *PGStore) Upsert(ctx context.Context, rec Record) error {
	var updatedAt sql.NullTime
	if rec.UpdatedAt != nil {
		updatedAt = sql.NullTime{Time: *rec.UpdatedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, full_name, avatar_url, website, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			full_name = EXCLUDED.full_name,
			avatar_url = EXCLUDED.avatar_url,
			website = EXCLUDED.website,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, nullString(rec.Username), nullString(rec.FullName),
		nullString(rec.AvatarURL), nullString(rec.Website), updatedAt,
	)
	switch {
	case err == nil:
		return nil
	case pg.IsDuplicateKeyError(err):
		return ErrUsernameTaken
	case pg.IsCheckViolationError(err):
		return fmt.Errorf("%w: %s", ErrInvalidRecord, pg.ConstraintName(err))
	default:
		return fmt.Errorf("profile: upsert: %w", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
