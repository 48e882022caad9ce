package routeguard

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidConfig = errors.New("routeguard: invalid config")

type Config struct {
	PublicPath    string `env:"GUARD_PUBLIC_PATH" envDefault:"/"`
	DashboardRoot string `env:"GUARD_DASHBOARD_ROOT" envDefault:"/dashboard"`
	LandingPath   string `env:"GUARD_LANDING_PATH" envDefault:"/dashboard/home"`
	// CallbackPrefixes stay reachable without a session.
	CallbackPrefixes []string `env:"GUARD_CALLBACK_PREFIXES" envSeparator:"," envDefault:"/auth/"`
	// ExemptPrefixes skip the guard entirely.
	ExemptPrefixes []string `env:"GUARD_EXEMPT_PREFIXES" envSeparator:"," envDefault:"/static/,/assets/,/_next/,/favicon.ico,/health,/metrics"`
	// APIPrefixes answer anonymous requests with 401 instead of a redirect.
	APIPrefixes []string `env:"GUARD_API_PREFIXES" envSeparator:"," envDefault:"/api/"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		PublicPath:       "/",
		DashboardRoot:    "/dashboard",
		LandingPath:      "/dashboard/home",
		CallbackPrefixes: []string{"/auth/"},
		ExemptPrefixes:   []string{"/static/", "/assets/", "/_next/", "/favicon.ico", "/health", "/metrics"},
		APIPrefixes:      []string{"/api/"},
	}
}

// Validate requires absolute paths and a landing path that is neither the
// public path nor the dashboard root, which would loop.
func (c Config) Validate() error {
	for name, p := range map[string]string{
		"public path":    c.PublicPath,
		"dashboard root": c.DashboardRoot,
		"landing path":   c.LandingPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: %s %q must start with /", ErrInvalidConfig, name, p)
		}
	}
	for _, p := range append(append(append([]string{}, c.CallbackPrefixes...), c.ExemptPrefixes...), c.APIPrefixes...) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: prefix %q must start with /", ErrInvalidConfig, p)
		}
	}
	if c.LandingPath == c.PublicPath || c.LandingPath == c.DashboardRoot {
		return fmt.Errorf("%w: landing path %q redirects to itself", ErrInvalidConfig, c.LandingPath)
	}
	return nil
}
