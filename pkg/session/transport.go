package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/trevia/pkg/cookie"
)

// Transport moves the session token between client and server.
type Transport interface {
	GetToken(r *http.Request) (string, error)
	SetToken(w http.ResponseWriter, token string, ttl time.Duration) error
	ClearToken(w http.ResponseWriter) error
}

// CookieTransport keeps the token in an encrypted, HttpOnly, SameSite=Lax cookie.
type CookieTransport struct {
	cookies *cookie.Manager
	name    string
	secure  bool
}

// NewCookieTransport creates a cookie transport.
func NewCookieTransport(cookies *cookie.Manager, name string, secure bool) *CookieTransport {
	return &CookieTransport{cookies: cookies, name: name, secure: secure}
}

func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	token, err := t.cookies.GetEncrypted(r, t.name)
	if err != nil || token == "" {
		return "", ErrSessionNotFound
	}
	return token, nil
}

func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	opts := []cookie.Option{
		cookie.WithMaxAge(int(ttl.Seconds())),
		cookie.WithPath("/"),
		cookie.WithHTTPOnly(true),
		cookie.WithSameSite(http.SameSiteLaxMode),
	}
	if t.secure {
		opts = append(opts, cookie.WithSecure(true))
	}
	return t.cookies.SetEncrypted(w, t.name, token, opts...)
}

func (t *CookieTransport) ClearToken(w http.ResponseWriter) error {
	t.cookies.Delete(w, t.name)
	return nil
}

// HeaderTransport reads "Bearer <token>" from a request header. SetToken
// echoes the token back in the same header so API clients can store it.
type HeaderTransport struct {
	header string
	prefix string
}

// NewHeaderTransport creates a header transport with the "Bearer " prefix.
func NewHeaderTransport(header string) *HeaderTransport {
	return &HeaderTransport{header: header, prefix: "Bearer "}
}

func (t *HeaderTransport) GetToken(r *http.Request) (string, error) {
	value := r.Header.Get(t.header)
	if !strings.HasPrefix(value, t.prefix) {
		return "", ErrSessionNotFound
	}
	token := strings.TrimSpace(strings.TrimPrefix(value, t.prefix))
	if token == "" {
		return "", ErrSessionNotFound
	}
	return token, nil
}

func (t *HeaderTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	w.Header().Set(t.header, t.prefix+token)
	if ttl > 0 {
		w.Header().Set(t.header+"-Expires", time.Now().Add(ttl).UTC().Format(time.RFC3339))
	}
	return nil
}

func (t *HeaderTransport) ClearToken(w http.ResponseWriter) error {
	w.Header().Del(t.header)
	w.Header().Del(t.header + "-Expires")
	return nil
}

// CompositeTransport reads from the first transport that yields a token and
// writes to all of them.
type CompositeTransport struct {
	transports []Transport
}

// NewCompositeTransport combines transports in priority order.
func NewCompositeTransport(transports ...Transport) *CompositeTransport {
	return &CompositeTransport{transports: transports}
}

func (t *CompositeTransport) GetToken(r *http.Request) (string, error) {
	for _, tr := range t.transports {
		if token, err := tr.GetToken(r); err == nil {
			return token, nil
		}
	}
	return "", ErrSessionNotFound
}

func (t *CompositeTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	var lastErr error
	for _, tr := range t.transports {
		if err := tr.SetToken(w, token, ttl); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (t *CompositeTransport) ClearToken(w http.ResponseWriter) error {
	var lastErr error
	for _, tr := range t.transports {
		if err := tr.ClearToken(w); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
