package cookie_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/trevia/pkg/cookie"
)

var (
	secretA = strings.Repeat("a", 32)
	secretB = strings.Repeat("b", 32)
)

func roundTrip(t *testing.T, write *cookie.Manager, read *cookie.Manager, value string) (string, error) {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, write.SetEncrypted(rec, "sid", value))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return read.GetEncrypted(req, "sid")
}

func TestEncryptedRoundTrip(t *testing.T) {
	t.Parallel()

	m, err := cookie.New([]string{secretA})
	require.NoError(t, err)

	got, err := roundTrip(t, m, m, "token-123")
	require.NoError(t, err)
	assert.Equal(t, "token-123", got)
}

func TestKeyRotation(t *testing.T) {
	t.Parallel()

	old, err := cookie.New([]string{secretA})
	require.NoError(t, err)
	rotated, err := cookie.New([]string{secretB, secretA})
	require.NoError(t, err)
	other, err := cookie.New([]string{secretB})
	require.NoError(t, err)

	got, err := roundTrip(t, old, rotated, "v")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = roundTrip(t, old, other, "v")
	assert.ErrorIs(t, err, cookie.ErrDecryptionFailed)
}

func TestNewValidatesSecrets(t *testing.T) {
	t.Parallel()

	_, err := cookie.New(nil)
	assert.ErrorIs(t, err, cookie.ErrNoSecret)

	_, err = cookie.New([]string{"", ""})
	assert.ErrorIs(t, err, cookie.ErrNoSecret)

	_, err = cookie.New([]string{"short"})
	assert.ErrorIs(t, err, cookie.ErrSecretTooShort)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	m, err := cookie.NewFromConfig(cookie.Config{Secrets: secretA + ", " + secretB, Secure: true, SameSite: "strict"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Set(rec, "plain", "x")
	c := rec.Result().Cookies()[0]
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
}

func TestGetMissingAndDelete(t *testing.T) {
	t.Parallel()

	m, err := cookie.New([]string{secretA})
	require.NoError(t, err)

	_, err = m.GetEncrypted(httptest.NewRequest(http.MethodGet, "/", nil), "sid")
	assert.ErrorIs(t, err, cookie.ErrCookieNotFound)

	rec := httptest.NewRecorder()
	m.Delete(rec, "sid")
	c := rec.Result().Cookies()[0]
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, -1, c.MaxAge)
}
