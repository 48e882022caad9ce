package account

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/trevia/handler"
	"github.com/dmitrymomot/trevia/pkg/binder"
	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/metrics"
	"github.com/dmitrymomot/trevia/pkg/session"
	"github.com/dmitrymomot/trevia/svc/auth"
	"github.com/dmitrymomot/trevia/svc/sessionstore"
)

// PasswordService serves email and password authentication.
type PasswordService struct {
	cfg          Config
	auth         *auth.Service
	sessionMgr   *session.Manager
	log          *slog.Logger
	metrics      *metrics.Metrics
	errorHandler handler.ErrorHandler[handler.Context]
}

type Option func(*PasswordService)

func WithLogger(l *slog.Logger) Option {
	return func(s *PasswordService) {
		s.log = l.With(logger.Component("account"))
		s.errorHandler = handler.NewErrorHandler(s.log)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PasswordService) { s.metrics = m }
}

func NewPasswordService(cfg Config, authSvc *auth.Service, sessionMgr *session.Manager, opts ...Option) *PasswordService {
	s := &PasswordService{
		cfg:        cfg,
		auth:       authSvc,
		sessionMgr: sessionMgr,
		log:        logger.Discard(),
	}
	s.errorHandler = handler.NewErrorHandler(s.log)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PasswordService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/login", handler.Wrap(s.login,
		handler.WithBinders[handler.Context, LoginRequest](binder.JSON(), binder.Form()),
		handler.WithErrorHandler[handler.Context, LoginRequest](s.errorHandler),
	))
	r.Post("/register", handler.Wrap(s.register,
		handler.WithBinders[handler.Context, RegisterRequest](binder.JSON(), binder.Form()),
		handler.WithErrorHandler[handler.Context, RegisterRequest](s.errorHandler),
	))
	r.Post("/logout", handler.Wrap(s.logout,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
	r.Post("/refresh", handler.Wrap(s.refresh,
		handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
	))
	r.Get("/callback", handler.Wrap(s.callback,
		handler.WithBinders[handler.Context, CallbackRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, CallbackRequest](s.errorHandler),
	))

	return r
}

// store opens a session store for the browser session behind ctx. The
// caller closes it.
func (s *PasswordService) store(ctx handler.Context) (*sessionstore.Store, *auth.Client) {
	client := s.auth.Client(s.sessionMgr.Token(ctx.Request()))
	return sessionstore.New(client, sessionstore.WithLogger(s.log), sessionstore.WithMetrics(s.metrics)), client
}

// attach writes the client's current token to the response.
func (s *PasswordService) attach(ctx handler.Context, client *auth.Client) error {
	sess, err := s.sessionMgr.Lookup(ctx, client.Token())
	if err != nil {
		return err
	}
	return s.sessionMgr.Attach(ctx.ResponseWriter(), sess)
}

type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (s *PasswordService) login(ctx handler.Context, req LoginRequest) handler.Response {
	store, client := s.store(ctx)
	defer store.Close()

	snap, err := store.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return handler.Error(httpError(err))
	}
	if err := s.attach(ctx, client); err != nil {
		return handler.Error(err)
	}
	if snap.Authenticated() {
		s.log.InfoContext(ctx, "signed in", logger.UserID(snap.Identity.ID))
	}
	return handler.Redirect(s.cfg.LandingPath)
}

type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type RegisterResponse struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

func (s *PasswordService) register(ctx handler.Context, req RegisterRequest) handler.Response {
	store, _ := s.store(ctx)
	defer store.Close()

	if _, err := store.SignUp(ctx, req.Email, req.Password, s.cfg.CallbackURL()); err != nil {
		return handler.Error(httpError(err))
	}
	return handler.JSON(RegisterResponse{Email: req.Email, Status: "confirmation_sent"},
		handler.WithJSONStatus(http.StatusAccepted),
		handler.WithJSONMeta(map[string]any{"message": "Check your email for a confirmation link."}),
	)
}

func (s *PasswordService) logout(ctx handler.Context, _ struct{}) handler.Response {
	store, _ := s.store(ctx)
	defer store.Close()

	if _, err := store.SignOut(ctx); err != nil {
		return handler.Error(httpError(err))
	}
	if err := s.sessionMgr.Detach(ctx.ResponseWriter()); err != nil {
		return handler.Error(err)
	}
	return handler.Redirect(s.cfg.PublicPath)
}

type RefreshResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// refresh rotates the session token.
func (s *PasswordService) refresh(ctx handler.Context, _ struct{}) handler.Response {
	client := s.auth.Client(s.sessionMgr.Token(ctx.Request()))
	if err := client.RefreshSession(ctx); err != nil {
		return handler.Error(httpError(err))
	}
	sess, err := s.sessionMgr.Lookup(ctx, client.Token())
	if err != nil {
		return handler.Error(err)
	}
	if err := s.sessionMgr.Attach(ctx.ResponseWriter(), sess); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(RefreshResponse{ExpiresAt: sess.ExpiresAt.UTC()})
}

type CallbackRequest struct {
	Token string `query:"token"`
}

func (s *PasswordService) callback(ctx handler.Context, req CallbackRequest) handler.Response {
	identity, sess, err := s.auth.ConfirmEmail(ctx, req.Token)
	if err != nil {
		return handler.Error(httpError(err))
	}
	if err := s.sessionMgr.Attach(ctx.ResponseWriter(), sess); err != nil {
		return handler.Error(err)
	}
	s.log.InfoContext(ctx, "email confirmed", logger.UserID(identity.ID))
	return handler.Redirect(s.cfg.LandingPath)
}
