package session

import "github.com/dmitrymomot/trevia/pkg/cookie"

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the session store. Defaults to a MemoryStore.
func WithStore(store Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithTransport sets the token transport.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithConfig replaces the configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.config = cfg }
}

// WithCookieManager enables the default transport: an encrypted cookie,
// with a bearer header accepted as a fallback for API clients.
func WithCookieManager(cookies *cookie.Manager) Option {
	return func(m *Manager) { m.cookies = cookies }
}
