package profile_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trevia/svc/auth"
	"github.com/dmitrymomot/trevia/svc/auth/authtest"
	"github.com/dmitrymomot/trevia/svc/profile"
	"github.com/dmitrymomot/trevia/svc/sessionstore"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	env      *authtest.Env
	client   *auth.Client
	sessions *sessionstore.Store
	store    *profile.MemoryStore
	identity auth.Identity
}

func signedIn(t *testing.T, addr string) fixture {
	t.Helper()
	env := authtest.New(t)
	identity, token := env.SignedIn(t, addr)
	client := env.Service.Client(token)
	sessions := sessionstore.New(client)
	t.Cleanup(func() { _ = sessions.Close() })
	return fixture{env: env, client: client, sessions: sessions, store: profile.NewMemoryStore(), identity: identity}
}

func (f fixture) resolver(t *testing.T, store profile.Store, capability auth.Capability) *profile.Resolver {
	t.Helper()
	if store == nil {
		store = f.store
	}
	if capability == nil {
		capability = f.client
	}
	r := profile.NewResolver(f.sessions, store, capability, profile.WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// failingMetadata rejects metadata writes.
type failingMetadata struct {
	*auth.Client
	calls atomic.Int32
}

func (f *failingMetadata) UpdateIdentityMetadata(context.Context, map[string]any) error {
	f.calls.Add(1)
	return errors.New("auth provider unavailable")
}

// brokenStore fails every call.
type brokenStore struct{ upserts atomic.Int32 }

func (s *brokenStore) GetByID(context.Context, string) (profile.Record, error) {
	return profile.Record{}, errors.New("db down")
}

func (s *brokenStore) Upsert(context.Context, profile.Record) error {
	s.upserts.Add(1)
	return errors.New("db down")
}

// upsertFails reads through but rejects writes.
type upsertFails struct{ *profile.MemoryStore }

func (upsertFails) Upsert(context.Context, profile.Record) error { return errors.New("write rejected") }

// gatedStore holds the first read until released. The record is read
// before waiting so the stale result is observable.
type gatedStore struct {
	*profile.MemoryStore
	entered chan struct{}
	release chan struct{}
	first   atomic.Bool
}

func newGatedStore(inner *profile.MemoryStore) *gatedStore {
	return &gatedStore{MemoryStore: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) GetByID(ctx context.Context, id string) (profile.Record, error) {
	rec, err := s.MemoryStore.GetByID(ctx, id)
	if s.first.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.release
	}
	return rec, err
}

func TestResolverRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("defaults for a new user", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "a@b.com")
		r := f.resolver(t, nil, nil)

		assert.True(t, r.Current().Loading)
		view, err := r.Refresh(ctx)
		require.NoError(t, err)
		require.NotNil(t, view.Profile)
		assert.False(t, view.Loading)
		assert.NoError(t, view.Err)
		assert.Equal(t, f.identity.ID, view.Profile.ID)
		assert.Equal(t, "a", *view.Profile.Username)
		assert.Nil(t, view.Profile.FullName)
		assert.Nil(t, view.Profile.AvatarURL)
		assert.Equal(t, "a", view.DisplayName)
		assert.Equal(t, "A", view.Initials)
		assert.Equal(t, sessionstore.StateAuthenticated, f.sessions.State())
	})

	t.Run("stored full name wins over metadata", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "bea@example.com")
		_, err := f.env.Storage.UpdateMetadata(ctx, f.identity.ID, map[string]any{
			profile.MetaFullName:  "Metadata Bea",
			profile.MetaAvatarURL: "https://cdn.example.com/bea.png",
		})
		require.NoError(t, err)
		require.NoError(t, f.store.Upsert(ctx, profile.Record{ID: f.identity.ID, FullName: "Beatriz Costa"}))
		r := f.resolver(t, nil, nil)

		view, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Beatriz Costa", *view.Profile.FullName)
		assert.Equal(t, "https://cdn.example.com/bea.png", *view.Profile.AvatarURL)
		assert.Equal(t, "B", view.Initials)
	})

	t.Run("store failure degrades to identity data", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "cam@example.com")
		r := f.resolver(t, &brokenStore{}, nil)

		view, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.NoError(t, view.Err)
		require.NotNil(t, view.Profile)
		assert.Equal(t, "cam", view.DisplayName)
	})

	t.Run("repeated resolution is identical", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "dee@example.com")
		require.NoError(t, f.store.Upsert(ctx, profile.Record{ID: f.identity.ID, Website: "https://dee.example.com"}))
		r := f.resolver(t, nil, nil)

		first, err := r.Refresh(ctx)
		require.NoError(t, err)
		second, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("anonymous session yields no profile", func(t *testing.T) {
		t.Parallel()
		env := authtest.New(t)
		sessions := sessionstore.New(env.Service.Client(""))
		t.Cleanup(func() { _ = sessions.Close() })
		r := profile.NewResolver(sessions, profile.NewMemoryStore(), env.Service.Client(""))
		t.Cleanup(func() { _ = r.Close() })

		view, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.Nil(t, view.Profile)
		assert.False(t, view.Loading)
		assert.Empty(t, view.DisplayName)
	})
}

func TestResolverResolve(t *testing.T) {
	t.Parallel()
	f := signedIn(t, "eli@example.com")
	r := f.resolver(t, nil, nil)

	got, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.Resolve(context.Background(), &f.identity)
	require.NoError(t, err)
	assert.Equal(t, "eli", *got.Username)

	again, err := r.Resolve(context.Background(), &f.identity)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestResolverUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("writes record and metadata", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "fay@example.com")
		r := f.resolver(t, nil, nil)
		_, err := r.Refresh(ctx)
		require.NoError(t, err)

		require.NoError(t, r.Update(ctx, profile.Patch{FullName: ptr("Fay Okafor"), Website: ptr("fay.example.com")}))

		rec, err := f.store.GetByID(ctx, f.identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Fay Okafor", rec.FullName)
		assert.Equal(t, "https://fay.example.com", rec.Website)
		require.NotNil(t, rec.UpdatedAt)
		assert.Equal(t, fixedNow, *rec.UpdatedAt)

		identity, err := f.env.Storage.GetByID(ctx, f.identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Fay Okafor", identity.Metadata[profile.MetaFullName])

		view := r.Current()
		assert.Equal(t, "Fay Okafor", view.DisplayName)
		assert.Equal(t, "F", view.Initials)
	})

	t.Run("keeps untouched fields", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "gus@example.com")
		require.NoError(t, f.store.Upsert(ctx, profile.Record{ID: f.identity.ID, Username: "gustavo", Website: "https://gus.example.com"}))
		r := f.resolver(t, nil, nil)
		_, err := r.Refresh(ctx)
		require.NoError(t, err)

		require.NoError(t, r.Update(ctx, profile.Patch{AvatarURL: ptr("https://cdn.example.com/gus.png")}))
		rec, err := f.store.GetByID(ctx, f.identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "gustavo", rec.Username)
		assert.Equal(t, "https://gus.example.com", rec.Website)
		assert.Equal(t, "https://cdn.example.com/gus.png", rec.AvatarURL)
	})

	t.Run("not authenticated", func(t *testing.T) {
		t.Parallel()
		env := authtest.New(t)
		sessions := sessionstore.New(env.Service.Client(""))
		t.Cleanup(func() { _ = sessions.Close() })
		store := &brokenStore{}
		r := profile.NewResolver(sessions, store, env.Service.Client(""))
		t.Cleanup(func() { _ = r.Close() })
		_, err := r.Refresh(ctx)
		require.NoError(t, err)

		err = r.Update(ctx, profile.Patch{FullName: ptr("Nobody")})
		assert.ErrorIs(t, err, profile.ErrNotAuthenticated)
		assert.Equal(t, profile.KindValidationOrAuthFailure, profile.KindOf(err))
		assert.Zero(t, store.upserts.Load())
	})

	t.Run("not authenticated leaves store untouched", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "hal@example.com")
		r := f.resolver(t, nil, nil)
		_, err := f.sessions.SignOut(ctx)
		require.NoError(t, err)

		err = r.Update(ctx, profile.Patch{FullName: ptr("Hal")})
		assert.ErrorIs(t, err, profile.ErrNotAuthenticated)
		_, err = f.store.GetByID(ctx, f.identity.ID)
		assert.ErrorIs(t, err, profile.ErrNotFound)
	})

	t.Run("validation failure", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "ivy@example.com")
		r := f.resolver(t, nil, nil)
		_, err := r.Refresh(ctx)
		require.NoError(t, err)

		err = r.Update(ctx, profile.Patch{Username: ptr("x")})
		require.Error(t, err)
		assert.Equal(t, profile.KindValidationOrAuthFailure, profile.KindOf(err))
		_, err = f.store.GetByID(ctx, f.identity.ID)
		assert.ErrorIs(t, err, profile.ErrNotFound)
	})

	t.Run("upsert failure skips metadata write", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "jon@example.com")
		meta := &failingMetadata{Client: f.client}
		r := f.resolver(t, upsertFails{f.store}, meta)
		_, err := r.Refresh(ctx)
		require.NoError(t, err)

		err = r.Update(ctx, profile.Patch{FullName: ptr("Jon Snowden")})
		assert.ErrorIs(t, err, profile.ErrUpsertFailed)
		assert.Equal(t, profile.KindTransientFetchFailure, profile.KindOf(err))
		assert.Zero(t, meta.calls.Load())
	})

	t.Run("metadata failure is partial and view still updates", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "kim@example.com")
		meta := &failingMetadata{Client: f.client}
		r := f.resolver(t, nil, meta)
		_, err := r.Refresh(ctx)
		require.NoError(t, err)

		err = r.Update(ctx, profile.Patch{FullName: ptr("X")})
		assert.ErrorIs(t, err, profile.ErrMetadataSyncFailed)
		assert.Equal(t, profile.KindPartialWriteFailure, profile.KindOf(err))
		assert.Equal(t, int32(1), meta.calls.Load())

		view, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, "X", view.DisplayName)
	})

	t.Run("username conflict", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "lou@example.com")
		require.NoError(t, f.store.Upsert(ctx, profile.Record{ID: "someone-else", Username: "traveller"}))
		r := f.resolver(t, nil, nil)
		_, err := r.Refresh(ctx)
		require.NoError(t, err)

		err = r.Update(ctx, profile.Patch{Username: ptr("traveller")})
		assert.ErrorIs(t, err, profile.ErrUsernameTaken)
		assert.ErrorIs(t, err, profile.ErrUpsertFailed)
		assert.Equal(t, profile.KindValidationOrAuthFailure, profile.KindOf(err))
	})
}

func TestResolverDiscardsStalePasses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("older pass loses to newer one", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "max@example.com")
		require.NoError(t, f.store.Upsert(ctx, profile.Record{ID: f.identity.ID, FullName: "Old Name"}))
		gated := newGatedStore(f.store)
		r := f.resolver(t, gated, nil)
		_, err := f.sessions.Initialize(ctx)
		require.NoError(t, err)

		slow := make(chan profile.View, 1)
		go func() {
			v, _ := r.Refresh(ctx)
			slow <- v
		}()
		<-gated.entered

		require.NoError(t, f.store.Upsert(ctx, profile.Record{ID: f.identity.ID, FullName: "New Name"}))
		fresh, err := r.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, "New Name", fresh.DisplayName)

		close(gated.release)
		select {
		case v := <-slow:
			assert.Equal(t, "New Name", v.DisplayName)
		case <-time.After(time.Second):
			t.Fatal("slow refresh did not return")
		}
		assert.Equal(t, "New Name", r.Current().DisplayName)
	})

	t.Run("pass finishing after close is dropped", func(t *testing.T) {
		t.Parallel()
		f := signedIn(t, "ned@example.com")
		gated := newGatedStore(f.store)
		r := f.resolver(t, gated, nil)
		_, err := f.sessions.Initialize(ctx)
		require.NoError(t, err)

		var notified atomic.Int32
		r.Subscribe(func(profile.View) { notified.Add(1) })

		done := make(chan error, 1)
		go func() {
			_, err := r.Refresh(ctx)
			done <- err
		}()
		<-gated.entered
		require.NoError(t, r.Close())
		close(gated.release)

		select {
		case err := <-done:
			assert.ErrorIs(t, err, profile.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("refresh did not return")
		}
		assert.Zero(t, notified.Load())
		assert.Nil(t, r.Current().Profile)
	})
}

func TestResolverFollowsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := signedIn(t, "ola@example.com")
	r := f.resolver(t, nil, nil)
	_, err := r.Refresh(ctx)
	require.NoError(t, err)

	views := make(chan profile.View, 8)
	unsubscribe := r.Subscribe(func(v profile.View) { views <- v })
	defer unsubscribe()

	require.NoError(t, f.env.Service.Client(f.client.Token()).SignOut(ctx))

	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return v.Profile == nil && !v.Loading
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, profile.KindNone, profile.KindOf(nil))
	assert.Equal(t, profile.KindExpectedEmpty, profile.KindOf(profile.ErrNotFound))
	assert.Equal(t, profile.KindExpectedEmpty, profile.KindOf(auth.ErrNoSession))
	assert.Equal(t, profile.KindTransientFetchFailure, profile.KindOf(sessionstore.ErrFetchFailed))
	assert.Equal(t, profile.KindTransientFetchFailure, profile.KindOf(errors.New("boom")))
	assert.Equal(t, profile.KindValidationOrAuthFailure, profile.KindOf(auth.ErrInvalidCredentials))
	assert.Equal(t, "partial_write_failure", profile.KindPartialWriteFailure.String())
}
