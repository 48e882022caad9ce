// Package auth is the authentication capability: identities, credentials,
// sessions and the auth state change channel.
//
// The Service is process-wide. Each browser session talks to it through a
// Client bound to that session's token; the Client implements Capability.
package auth

import (
	"context"
	"maps"
	"time"
)

// Identity is the authenticated subject.
type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	Metadata         map[string]any `json:"metadata"`
}

// MetadataString returns the metadata value under key when it is a string.
func (i Identity) MetadataString(key string) (string, bool) {
	v, ok := i.Metadata[key].(string)
	return v, ok
}

// Clone returns a copy that shares no mutable state with i.
func (i Identity) Clone() Identity {
	c := i
	c.Metadata = maps.Clone(i.Metadata)
	if i.EmailConfirmedAt != nil {
		t := *i.EmailConfirmedAt
		c.EmailConfirmedAt = &t
	}
	return c
}

type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventUserUpdated    EventKind = "user_updated"
	EventTokenRefreshed EventKind = "token_refreshed"
)

// Event is an auth state change. Token is the session token the change
// applies to, when there is one. PreviousToken is set on token_refreshed and
// names the token that Token replaced.
type Event struct {
	Kind          EventKind `json:"kind"`
	UserID        string    `json:"user_id,omitempty"`
	Token         string    `json:"-"`
	PreviousToken string    `json:"-"`
	At            time.Time `json:"at"`
}

// Capability is what the session and profile core needs from the auth
// provider.
type Capability interface {
	// GetCurrentIdentity returns ErrNoSession when nobody is signed in.
	GetCurrentIdentity(ctx context.Context) (*Identity, error)
	// OnAuthStateChange registers fn and returns its deregistration func.
	OnAuthStateChange(fn func(Event)) (unsubscribe func())
	UpdateIdentityMetadata(ctx context.Context, patch map[string]any) error
	SignOut(ctx context.Context) error
	SignInWithCredentials(ctx context.Context, email, password string) error
	SignUpWithCredentials(ctx context.Context, email, password, redirectTarget string) error
}
