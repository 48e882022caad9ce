package session

import "time"

// Config holds token lifetimes and transport settings.
type Config struct {
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	HeaderName string `env:"SESSION_HEADER_NAME" envDefault:"Authorization"`

	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"2h"`
	MaxLifetime time.Duration `env:"SESSION_MAX_LIFETIME" envDefault:"720h"`

	// ActivityUpdateThreshold is the minimum time between activity writes for one token.
	ActivityUpdateThreshold time.Duration `env:"SESSION_ACTIVITY_UPDATE_THRESHOLD" envDefault:"5m"`
	// CleanupInterval applies to the memory store only. Zero disables cleanup.
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`

	SecureCookies bool `env:"SESSION_SECURE_COOKIES" envDefault:"false"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		CookieName:              "sid",
		HeaderName:              "Authorization",
		IdleTimeout:             2 * time.Hour,
		MaxLifetime:             30 * 24 * time.Hour,
		ActivityUpdateThreshold: 5 * time.Minute,
		CleanupInterval:         5 * time.Minute,
	}
}

// expiry returns the earlier of the idle deadline and the absolute deadline.
func (c Config) expiry(createdAt, now time.Time) time.Time {
	idle := now.Add(c.IdleTimeout)
	absolute := createdAt.Add(c.MaxLifetime)
	if absolute.Before(idle) {
		return absolute
	}
	return idle
}
