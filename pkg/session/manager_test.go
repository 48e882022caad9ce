package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trevia/pkg/cookie"
	"github.com/dmitrymomot/trevia/pkg/session"
)

func newManager(t *testing.T, opts ...session.Option) (*session.Manager, *session.MemoryStore) {
	t.Helper()

	cookies, err := cookie.New([]string{strings.Repeat("k", 32)})
	require.NoError(t, err)

	store := session.NewMemoryStore(0)
	cfg := session.DefaultConfig()
	cfg.ActivityUpdateThreshold = 0

	m := session.New(append([]session.Option{
		session.WithConfig(cfg),
		session.WithStore(store),
		session.WithCookieManager(cookies),
	}, opts...)...)
	t.Cleanup(func() { _ = m.Close() })
	return m, store
}

func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManagerIssueAttachGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)

	s, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.IsAuthenticated())
	assert.NotEmpty(t, s.Token)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Attach(rec, s))

	req := requestWithCookies(rec)
	assert.Equal(t, s.Token, m.Token(req))

	got, err := m.Get(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestManagerBearerHeader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)

	s, err := m.Issue(ctx, "u2")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+s.Token)
	got, err := m.Get(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UserID)
}

func TestManagerRevoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)

	s, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	other, err := m.Issue(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, s.Token))
	_, err = m.Lookup(ctx, s.Token)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	require.NoError(t, m.RevokeUser(ctx, "u1"))
	_, err = m.Lookup(ctx, other.Token)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	assert.NoError(t, m.Revoke(ctx, ""))
}

func TestManagerRejectsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _ := newManager(t)

	_, err := m.Issue(ctx, "")
	assert.ErrorIs(t, err, session.ErrInvalidSession)

	_, err = m.Lookup(ctx, "")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	assert.Equal(t, "", m.Token(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestManagerActivitySlidesExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := newManager(t)

	s, err := m.Issue(ctx, "u1")
	require.NoError(t, err)
	before := s.ExpiresAt

	time.Sleep(5 * time.Millisecond)
	_, err = m.Lookup(ctx, s.Token)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := store.Get(ctx, s.Token)
		return err == nil && got.ExpiresAt.After(before)
	}, time.Second, 10*time.Millisecond)
}

func TestManagerDetach(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Detach(rec))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestNewPanicsWithoutTransport(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { session.New() })
}
