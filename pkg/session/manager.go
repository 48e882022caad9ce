package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrymomot/trevia/pkg/cookie"
)

// Manager issues and validates session tokens.
type Manager struct {
	store        Store
	transport    Transport
	config       Config
	cookies      *cookie.Manager
	activityChan chan activityUpdate
	done         chan struct{}
	stopped      chan struct{}
}

type activityUpdate struct {
	token        string
	lastActivity time.Time
	expiresAt    time.Time
}

// New creates a Manager. A cookie manager or an explicit transport is
// required. Without a store option sessions are kept in memory.
func New(opts ...Option) *Manager {
	m := &Manager{
		config:       DefaultConfig(),
		activityChan: make(chan activityUpdate, 1000),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		m.store = NewMemoryStore(m.config.CleanupInterval)
	}
	if m.transport == nil {
		if m.cookies == nil {
			panic("session: cookie manager is required when using the default transport")
		}
		m.transport = NewCompositeTransport(
			NewCookieTransport(m.cookies, m.config.CookieName, m.config.SecureCookies),
			NewHeaderTransport(m.config.HeaderName),
		)
	}

	go m.activityWorker()
	return m
}

// Issue creates a new authenticated session for userID.
func (m *Manager) Issue(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrInvalidSession
	}
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := NewSession(token, userID, now, m.config.expiry(now, now))
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup returns the live session for token. Activity is recorded in the
// background once per ActivityUpdateThreshold.
func (m *Manager) Lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	s, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.IsExpired() {
		return nil, ErrSessionExpired
	}
	if time.Since(s.LastActivityAt) >= m.config.ActivityUpdateThreshold {
		now := time.Now()
		m.queueActivity(activityUpdate{token: token, lastActivity: now, expiresAt: m.config.expiry(s.CreatedAt, now)})
	}
	return s, nil
}

// Revoke deletes the session for token. Unknown tokens are not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// RevokeUser deletes every session of userID.
func (m *Manager) RevokeUser(ctx context.Context, userID string) error {
	return m.store.DeleteByUserID(ctx, userID)
}

// Token extracts the raw token from r, or "" when the request carries none.
func (m *Manager) Token(r *http.Request) string {
	token, err := m.transport.GetToken(r)
	if err != nil {
		return ""
	}
	return token
}

// Get resolves the session carried by r.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil, err
	}
	return m.Lookup(ctx, token)
}

// Attach writes the session token to the response.
func (m *Manager) Attach(w http.ResponseWriter, s *Session) error {
	if s == nil || s.Token == "" {
		return ErrInvalidSession
	}
	return m.transport.SetToken(w, s.Token, time.Until(s.ExpiresAt))
}

// Detach clears the session token on the client.
func (m *Manager) Detach(w http.ResponseWriter) error {
	return m.transport.ClearToken(w)
}

// Close stops the activity worker after draining queued updates.
func (m *Manager) Close() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	<-m.stopped
	return nil
}

func (m *Manager) queueActivity(u activityUpdate) {
	select {
	case m.activityChan <- u:
	default:
		// Queue full: dropping keeps lookups non-blocking.
	}
}

func (m *Manager) activityWorker() {
	defer close(m.stopped)
	apply := func(u activityUpdate) {
		_ = m.store.UpdateActivity(context.Background(), u.token, u.lastActivity, u.expiresAt)
	}
	for {
		select {
		case u := <-m.activityChan:
			apply(u)
		case <-m.done:
			for {
				select {
				case u := <-m.activityChan:
					apply(u)
				default:
					return
				}
			}
		}
	}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
