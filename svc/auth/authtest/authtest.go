// Package authtest builds in-memory auth services for tests.
package authtest

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/trevia/pkg/cookie"
	"github.com/dmitrymomot/trevia/pkg/email"
	"github.com/dmitrymomot/trevia/pkg/session"
	"github.com/dmitrymomot/trevia/svc/auth"
)

const (
	Secret   = "authtest-confirmation-secret"
	Password = "Tr1p-Planner!"
)

// Mailer records sent messages.
type Mailer struct {
	mu   sync.Mutex
	sent []email.Message
	Err  error
}

func (m *Mailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *Mailer) Sent() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.sent...)
}

// Env is a wired in-memory auth stack.
type Env struct {
	Service  *auth.Service
	Storage  *auth.MemoryStorage
	Sessions *session.Manager
	Cookies  *cookie.Manager
	Mailer   *Mailer
}

// New builds an Env with the cheapest bcrypt cost. Everything is closed on
// test cleanup.
func New(t testing.TB, opts ...auth.Option) *Env {
	t.Helper()

	cookies, err := cookie.New([]string{strings.Repeat("c", 32)})
	require.NoError(t, err)

	cfg := session.DefaultConfig()
	cfg.ActivityUpdateThreshold = 0
	sessions := session.New(session.WithConfig(cfg), session.WithCookieManager(cookies))

	storage := auth.NewMemoryStorage()
	mailer := &Mailer{}
	svc, err := auth.NewService(auth.Config{
		ConfirmationSecret: Secret,
		BcryptCost:         bcrypt.MinCost,
		SignInBurst:        5,
	}, storage, sessions, mailer, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = svc.Close()
		_ = sessions.Close()
	})
	return &Env{Service: svc, Storage: storage, Sessions: sessions, Cookies: cookies, Mailer: mailer}
}

// SignedIn registers addr with Password and signs in, returning the
// identity and its session token.
func (e *Env) SignedIn(t testing.TB, addr string) (auth.Identity, string) {
	t.Helper()
	ctx := context.Background()

	_, err := e.Service.SignUp(ctx, addr, Password, "http://localhost/auth/callback")
	require.NoError(t, err)
	identity, sess, err := e.Service.SignIn(ctx, addr, Password)
	require.NoError(t, err)
	return identity, sess.Token
}

// ConfirmationToken extracts the token from the last confirmation email.
func (e *Env) ConfirmationToken(t testing.TB) string {
	t.Helper()

	sent := e.Mailer.Sent()
	require.NotEmpty(t, sent)
	body := sent[len(sent)-1].BodyHTML
	start := strings.Index(body, `href="`)
	require.NotEqual(t, -1, start)
	rest := body[start+len(`href="`):]
	link := rest[:strings.Index(rest, `"`)]
	u, err := url.Parse(strings.ReplaceAll(link, "&amp;", "&"))
	require.NoError(t, err)
	return u.Query().Get("token")
}
