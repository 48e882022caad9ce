package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrymomot/trevia/pkg/session"
)

// Client is the Capability of one browser session.
type Client struct {
	svc *Service

	mu     sync.RWMutex
	token  string
	userID string
}

var _ Capability = (*Client)(nil)

// Token returns the session token the client is currently bound to.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) bind(token, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	if userID != "" {
		c.userID = userID
	}
}

func (c *Client) GetCurrentIdentity(ctx context.Context) (*Identity, error) {
	tok := c.Token()
	if tok == "" {
		return nil, ErrNoSession
	}
	sess, err := c.svc.sessions.Lookup(ctx, tok)
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
		return nil, ErrNoSession
	case err != nil:
		return nil, fmt.Errorf("auth: lookup session: %w", err)
	case !sess.IsAuthenticated():
		return nil, ErrNoSession
	}

	identity, err := c.svc.storage.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("auth: load identity: %w", err)
	}
	c.bind(tok, identity.ID)
	return &identity, nil
}

// OnAuthStateChange delivers events concerning this client's token or its
// last known identity. fn runs on a dedicated goroutine, one event at a time.
func (c *Client) OnAuthStateChange(fn func(Event)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	sub := c.svc.Subscribe(ctx)
	go func() {
		for msg := range sub.Receive() {
			if c.concerns(msg.Data) {
				fn(msg.Data)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
		})
	}
}

// concerns reports whether ev is about this client. A refresh of the bound
// token moves the client onto the replacement before fn sees the event.
func (c *Client) concerns(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Kind == EventTokenRefreshed && ev.PreviousToken != "" && ev.PreviousToken == c.token {
		c.token = ev.Token
		return true
	}
	return (ev.Token != "" && ev.Token == c.token) || (ev.UserID != "" && ev.UserID == c.userID)
}

func (c *Client) UpdateIdentityMetadata(ctx context.Context, patch map[string]any) error {
	identity, err := c.GetCurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if _, err := c.svc.storage.UpdateMetadata(ctx, identity.ID, patch); err != nil {
		return fmt.Errorf("auth: update metadata: %w", err)
	}
	c.svc.publish(ctx, Event{Kind: EventUserUpdated, UserID: identity.ID})
	return nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if err := c.svc.SignOut(ctx, c.Token()); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return nil
}

func (c *Client) SignInWithCredentials(ctx context.Context, addr, password string) error {
	identity, sess, err := c.svc.SignIn(ctx, addr, password)
	if err != nil {
		return err
	}
	c.bind(sess.Token, identity.ID)
	return nil
}

func (c *Client) SignUpWithCredentials(ctx context.Context, addr, password, redirectTarget string) error {
	_, err := c.svc.SignUp(ctx, addr, password, redirectTarget)
	return err
}

// RefreshSession rotates the bound token.
func (c *Client) RefreshSession(ctx context.Context) error {
	fresh, err := c.svc.RefreshSession(ctx, c.Token())
	if err != nil {
		return err
	}
	c.bind(fresh.Token, fresh.UserID)
	return nil
}
