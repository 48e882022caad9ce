// Package profile serves the profile API, its live DataStar stream and the
// two pages the route guard sends visitors to.
package profile

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/trevia/handler"
	"github.com/dmitrymomot/trevia/pkg/binder"
	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/metrics"
	"github.com/dmitrymomot/trevia/pkg/session"
	"github.com/dmitrymomot/trevia/svc/auth"
	profilesvc "github.com/dmitrymomot/trevia/svc/profile"
	"github.com/dmitrymomot/trevia/svc/sessionstore"
)

// Config holds the guard paths the pages live at.
type Config struct {
	PublicPath  string `env:"GUARD_PUBLIC_PATH" envDefault:"/"`
	LandingPath string `env:"GUARD_LANDING_PATH" envDefault:"/dashboard/home"`
}

type Service struct {
	cfg          Config
	auth         *auth.Service
	sessionMgr   *session.Manager
	store        profilesvc.Store
	log          *slog.Logger
	metrics      *metrics.Metrics
	errorHandler handler.ErrorHandler[handler.Context]
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = l.With(logger.Component("profile_api"))
		s.errorHandler = handler.NewErrorHandler(s.log)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(cfg Config, authSvc *auth.Service, sessionMgr *session.Manager, store profilesvc.Store, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		auth:       authSvc,
		sessionMgr: sessionMgr,
		store:      store,
		log:        logger.Discard(),
	}
	s.errorHandler = handler.NewErrorHandler(s.log)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// API serves /api/profile.
func (s *Service) API() http.Handler {
	r := chi.NewRouter()
	r.Get("/", handler.Wrap(s.get,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
	r.Patch("/", handler.Wrap(s.update,
		handler.WithBinders[handler.Context, profilesvc.Patch](binder.JSON(), binder.Form()),
		handler.WithErrorHandler[handler.Context, profilesvc.Patch](s.errorHandler),
	))
	r.Get("/stream", handler.Wrap(s.stream,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
	return r
}

// RegisterPages adds the public entry page and the dashboard landing page
// to r.
func (s *Service) RegisterPages(r chi.Router) {
	r.Get(s.cfg.PublicPath, handler.Wrap(s.entryPage,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
	r.Get(s.cfg.LandingPath, handler.Wrap(s.homePage,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
}

// open builds the session store and resolver of the browser session behind
// r. Both are released by the returned func.
func (s *Service) open(r *http.Request) (*profilesvc.Resolver, func()) {
	client := s.auth.Client(s.sessionMgr.Token(r))
	sessions := sessionstore.New(client,
		sessionstore.WithLogger(s.log),
		sessionstore.WithMetrics(s.metrics),
	)
	resolver := profilesvc.NewResolver(sessions, s.store, client,
		profilesvc.WithLogger(s.log),
		profilesvc.WithMetrics(s.metrics),
	)
	return resolver, func() {
		_ = resolver.Close()
		_ = sessions.Close()
	}
}

// View is the JSON shape of a resolved profile.
type View struct {
	Profile     *profilesvc.Resolved `json:"profile"`
	DisplayName string               `json:"displayName"`
	Initials    string               `json:"initials"`
	Loading     bool                 `json:"loading"`
	Error       string               `json:"error,omitempty"`
}

func toView(v profilesvc.View) View {
	out := View{Profile: v.Profile, DisplayName: v.DisplayName, Initials: v.Initials, Loading: v.Loading}
	if kind := profilesvc.KindOf(v.Err); kind != profilesvc.KindNone && kind != profilesvc.KindExpectedEmpty {
		out.Error = kind.String()
	}
	return out
}

func (s *Service) get(ctx handler.Context, _ struct{}) handler.Response {
	resolver, release := s.open(ctx.Request())
	defer release()

	view, err := resolver.Refresh(ctx)
	if err != nil {
		return handler.Error(err)
	}
	if view.Profile == nil {
		return handler.Error(handler.ErrUnauthorized)
	}
	return handler.JSON(toView(view))
}

func (s *Service) update(ctx handler.Context, patch profilesvc.Patch) handler.Response {
	if patch.Empty() {
		return handler.Error(ErrEmptyPatch)
	}
	resolver, release := s.open(ctx.Request())
	defer release()

	if _, err := resolver.Refresh(ctx); err != nil {
		return handler.Error(err)
	}
	err := resolver.Update(ctx, patch)
	if err != nil && profilesvc.KindOf(err) != profilesvc.KindPartialWriteFailure {
		return handler.Error(httpError(err))
	}

	opts := []handler.JSONOption{}
	if err != nil {
		opts = append(opts, handler.WithJSONMeta(map[string]any{
			"warning": "Profile saved, but your account name could not be synced yet.",
		}))
	}
	return handler.JSON(toView(resolver.Current()), opts...)
}
