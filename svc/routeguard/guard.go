// Package routeguard gates navigation on session presence alone. Anonymous
// visitors are sent to the public entry path; signed-in users are sent from
// the entry path and the bare dashboard root to the landing page.
package routeguard

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/trevia/handler"
	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/metrics"
)

type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

// Decision is the outcome for one request. Location is set for Redirect.
type Decision struct {
	Action   Action
	Location string
}

// SessionChecker reports session presence without loading the identity.
type SessionChecker interface {
	HasSession(ctx context.Context, token string) bool
}

// TokenSource extracts the session token from a request.
type TokenSource func(r *http.Request) string

type Guard struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Guard)

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.log = l.With(logger.Component("routeguard")) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

func New(cfg Config, opts ...Option) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Guard{cfg: cfg, log: logger.Discard()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Exempt reports whether path bypasses the guard.
func (g *Guard) Exempt(path string) bool {
	return hasAnyPrefix(path, g.cfg.ExemptPrefixes)
}

// Decide is pure and defined for every path. Paths compare exactly, so
// "/dashboard/" is not the dashboard root.
func (g *Guard) Decide(sessionPresent bool, path string) Decision {
	if path == "" {
		path = "/"
	}
	if g.Exempt(path) {
		return Decision{Action: Allow}
	}
	if !sessionPresent {
		if path == g.cfg.PublicPath || hasAnyPrefix(path, g.cfg.CallbackPrefixes) {
			return Decision{Action: Allow}
		}
		return Decision{Action: Redirect, Location: g.cfg.PublicPath}
	}
	if path == g.cfg.PublicPath || path == g.cfg.DashboardRoot {
		return Decision{Action: Redirect, Location: g.cfg.LandingPath}
	}
	return Decision{Action: Allow}
}

// Middleware applies Decide to every request before it reaches next.
// Redirects use 307 so the method and body survive.
func (g *Guard) Middleware(checker SessionChecker, tokens TokenSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if g.Exempt(path) {
				g.metrics.GuardDecision("exempt")
				next.ServeHTTP(w, r)
				return
			}

			present := false
			if tok := tokens(r); tok != "" {
				present = checker.HasSession(r.Context(), tok)
			}

			d := g.Decide(present, path)
			if d.Action == Redirect && !present && hasAnyPrefix(path, g.cfg.APIPrefixes) {
				g.metrics.GuardDecision("unauthorized")
				handler.RenderError(w, r, handler.ErrUnauthorized)
				return
			}
			g.metrics.GuardDecision(d.Action.String())
			if d.Action == Redirect {
				g.log.DebugContext(r.Context(), "navigation redirected",
					logger.Path(path), slog.String("location", d.Location), slog.Bool("session", present))
				http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hasAnyPrefix matches entries ending in a slash as prefixes. Other entries
// match the path itself or anything below it, never a longer segment.
func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		switch {
		case p == "":
		case strings.HasSuffix(p, "/"):
			if strings.HasPrefix(path, p) {
				return true
			}
		case path == p || strings.HasPrefix(path, p+"/"):
			return true
		}
	}
	return false
}
