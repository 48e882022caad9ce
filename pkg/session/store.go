package session

import (
	"context"
	"time"
)

// Store persists sessions by token.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// Get returns ErrSessionNotFound or ErrSessionExpired for unusable tokens.
	Get(ctx context.Context, token string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// UpdateActivity records activity and slides the expiry.
	UpdateActivity(ctx context.Context, token string, lastActivity, expiresAt time.Time) error
	Delete(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) error
}
