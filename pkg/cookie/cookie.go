// Package cookie writes and reads HTTP cookies whose values are encrypted with
// AES-256-GCM. Several secrets may be configured: the first encrypts, all of
// them are tried on read so keys can be rotated.
package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

const minSecretLength = 32

var (
	ErrNoSecret         = errors.New("cookie.no_secret")
	ErrSecretTooShort   = errors.New("cookie.secret_too_short")
	ErrDecryptionFailed = errors.New("cookie.decryption_failed")
	ErrCookieNotFound   = errors.New("cookie.not_found")
	ErrInvalidFormat    = errors.New("cookie.invalid_format")
)

// Config is loaded from the environment. Secrets is a comma separated list.
type Config struct {
	Secrets  string `env:"COOKIE_SECRETS,required"`
	Domain   string `env:"COOKIE_DOMAIN"`
	Secure   bool   `env:"COOKIE_SECURE" envDefault:"false"`
	SameSite string `env:"COOKIE_SAME_SITE" envDefault:"lax"`
}

// Options are the attributes applied to every cookie written by a Manager.
type Options struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// Option overrides a single attribute.
type Option func(*Options)

func WithPath(path string) Option         { return func(o *Options) { o.Path = path } }
func WithDomain(domain string) Option     { return func(o *Options) { o.Domain = domain } }
func WithMaxAge(seconds int) Option       { return func(o *Options) { o.MaxAge = seconds } }
func WithSecure(secure bool) Option       { return func(o *Options) { o.Secure = secure } }
func WithHTTPOnly(httpOnly bool) Option   { return func(o *Options) { o.HttpOnly = httpOnly } }
func WithSameSite(s http.SameSite) Option { return func(o *Options) { o.SameSite = s } }

// Manager owns the secrets and default attributes.
type Manager struct {
	secrets  []string
	defaults Options
}

// New validates the secrets. Defaults are Path=/, HttpOnly and SameSite=Lax.
func New(secrets []string, opts ...Option) (*Manager, error) {
	secrets = slices.DeleteFunc(slices.Clone(secrets), func(s string) bool { return s == "" })
	if len(secrets) == 0 {
		return nil, ErrNoSecret
	}
	for i, s := range secrets {
		if len(s) < minSecretLength {
			return nil, fmt.Errorf("%w: secret %d has %d chars, need at least %d", ErrSecretTooShort, i, len(s), minSecretLength)
		}
	}

	defaults := Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode}
	for _, opt := range opts {
		opt(&defaults)
	}
	return &Manager{secrets: secrets, defaults: defaults}, nil
}

// NewFromConfig builds a Manager from Config.
func NewFromConfig(cfg Config, opts ...Option) (*Manager, error) {
	var secrets []string
	for s := range strings.SplitSeq(cfg.Secrets, ",") {
		secrets = append(secrets, strings.TrimSpace(s))
	}

	base := []Option{WithDomain(cfg.Domain), WithSecure(cfg.Secure)}
	switch strings.ToLower(cfg.SameSite) {
	case "strict":
		base = append(base, WithSameSite(http.SameSiteStrictMode))
	case "none":
		base = append(base, WithSameSite(http.SameSiteNoneMode), WithSecure(true))
	}
	return New(secrets, append(base, opts...)...)
}

// Set writes a plain cookie.
func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) {
	o := m.defaults
	for _, opt := range opts {
		opt(&o)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	})
}

// Get reads a plain cookie.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// Delete expires the cookie on the client.
func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     m.defaults.Path,
		Domain:   m.defaults.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: m.defaults.HttpOnly,
		SameSite: m.defaults.SameSite,
		Secure:   m.defaults.Secure,
	})
}

// SetEncrypted encrypts value with the primary secret and writes it.
func (m *Manager) SetEncrypted(w http.ResponseWriter, name, value string, opts ...Option) error {
	encrypted, err := m.encrypt(value)
	if err != nil {
		return err
	}
	m.Set(w, name, encrypted, opts...)
	return nil
}

// GetEncrypted reads and decrypts a cookie written by SetEncrypted.
func (m *Manager) GetEncrypted(r *http.Request, name string) (string, error) {
	encrypted, err := m.Get(r, name)
	if err != nil {
		return "", err
	}
	return m.decrypt(encrypted)
}

func (m *Manager) encrypt(value string) (string, error) {
	gcm, err := newGCM(m.secrets[0])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(value), nil)), nil
}

func (m *Manager) decrypt(encrypted string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrInvalidFormat
	}
	for _, secret := range m.secrets {
		gcm, err := newGCM(secret)
		if err != nil || len(data) < gcm.NonceSize() {
			continue
		}
		nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
		if plain, err := gcm.Open(nil, nonce, ciphertext, nil); err == nil {
			return string(plain), nil
		}
	}
	return "", ErrDecryptionFailed
}

func newGCM(secret string) (cipher.AEAD, error) {
	block, err := aes.NewCipher([]byte(secret[:32]))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
