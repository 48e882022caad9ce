package session

import "context"

type sessionContextKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session stored by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// UserIDFromContext returns the user id of the authenticated session in ctx.
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := FromContext(ctx)
	if !ok || !s.IsAuthenticated() {
		return "", false
	}
	return s.UserID, true
}
