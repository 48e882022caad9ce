package auth_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trevia/svc/auth"
)

func newMockStorage(t *testing.T) (*auth.PGStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return auth.NewPGStorage(db), mock
}

var identityCols = []string{"id", "email", "metadata", "email_confirmed_at", "created_at"}

func TestPGStorageCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("inserts", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStorage(t)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO identities`)).
			WithArgs("u1", "ada@example.com", "hash", []byte(`{}`), created).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(ctx, auth.Identity{ID: "u1", Email: "ada@example.com", CreatedAt: created}, []byte("hash")))
	})

	t.Run("duplicate email", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStorage(t)
		mock.ExpectExec(`INSERT INTO identities`).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_email_key"})

		err := s.Create(ctx, auth.Identity{ID: "u1", Email: "ada@example.com", CreatedAt: created}, []byte("hash"))
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})
}

func TestPGStorageGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	confirmed := created.Add(time.Hour)

	t.Run("by id", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStorage(t)
		mock.ExpectQuery(`SELECT id, email, metadata, email_confirmed_at, created_at FROM identities WHERE id = \$1`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows(identityCols).
				AddRow("u1", "ada@example.com", []byte(`{"full_name":"Ada"}`), confirmed, created))

		identity, err := s.GetByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", identity.Metadata["full_name"])
		require.NotNil(t, identity.EmailConfirmedAt)
		assert.True(t, confirmed.Equal(*identity.EmailConfirmedAt))
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStorage(t)
		mock.ExpectQuery(`FROM identities WHERE id`).WillReturnError(sql.ErrNoRows)

		_, err := s.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
	})

	t.Run("by email with hash", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockStorage(t)
		mock.ExpectQuery(`, password_hash FROM identities WHERE email = \$1`).
			WithArgs("ada@example.com").
			WillReturnRows(sqlmock.NewRows(append(identityCols, "password_hash")).
				AddRow("u1", "ada@example.com", []byte(`{}`), nil, created, "$2a$hash"))

		identity, hash, err := s.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", identity.ID)
		assert.Nil(t, identity.EmailConfirmedAt)
		assert.NotNil(t, identity.Metadata)
		assert.Equal(t, []byte("$2a$hash"), hash)
	})
}

func TestPGStorageUpdateMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`UPDATE identities\s+SET metadata = \(metadata \|\| \$2::jsonb\)`).
		WithArgs("u1", []byte(`{"full_name":"Ada"}`), []byte(`["avatar_url"]`)).
		WillReturnRows(sqlmock.NewRows(identityCols).
			AddRow("u1", "ada@example.com", []byte(`{"full_name":"Ada"}`), nil, time.Now()))

	identity, err := s.UpdateMetadata(ctx, "u1", map[string]any{"full_name": "Ada", "avatar_url": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"full_name": "Ada"}, identity.Metadata)
}

func TestPGStorageConfirmEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mock := newMockStorage(t)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE identities SET email_confirmed_at = \$2 WHERE id = \$1 AND email_confirmed_at IS NULL`).
		WithArgs("u1", at).
		WillReturnRows(sqlmock.NewRows(identityCols).AddRow("u1", "ada@example.com", []byte(`{}`), at, at))
	mock.ExpectQuery(`UPDATE identities SET email_confirmed_at`).
		WithArgs("u1", at).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM identities WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(identityCols).AddRow("u1", "ada@example.com", []byte(`{}`), at, at))
	mock.ExpectQuery(`UPDATE identities SET email_confirmed_at`).
		WithArgs("ghost", at).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM identities WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	identity, err := s.ConfirmEmail(ctx, "u1", at)
	require.NoError(t, err)
	require.NotNil(t, identity.EmailConfirmedAt)

	_, err = s.ConfirmEmail(ctx, "u1", at)
	assert.ErrorIs(t, err, auth.ErrAlreadyConfirmed)

	_, err = s.ConfirmEmail(ctx, "ghost", at)
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
}
