package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/trevia/pkg/broadcast"
	"github.com/dmitrymomot/trevia/pkg/email"
	"github.com/dmitrymomot/trevia/pkg/email/templates"
	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/metrics"
	"github.com/dmitrymomot/trevia/pkg/sanitizer"
	"github.com/dmitrymomot/trevia/pkg/session"
	"github.com/dmitrymomot/trevia/pkg/token"
	"github.com/dmitrymomot/trevia/pkg/validator"
)

const confirmationSubject = "email_confirm"

type confirmationPayload struct {
	Subject string `json:"sub"`
	UserID  string `json:"uid"`
	Email   string `json:"email"`
}

// Service is the process-wide auth provider.
type Service struct {
	cfg      Config
	storage  Storage
	sessions *session.Manager
	mailer   email.Sender
	events   *broadcast.MemoryBroadcaster[Event]
	throttle *throttle
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	// dummyHash is compared against on unknown emails so both failure paths
	// cost one bcrypt comparison.
	dummyHash []byte
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l.With(logger.Component("auth")) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, storage Storage, sessions *session.Manager, mailer email.Sender, opts ...Option) (*Service, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.SignInBurst <= 0 {
		cfg.SignInBurst = 5
	}
	if cfg.SignInRefill <= 0 {
		cfg.SignInRefill = time.Minute
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: prepare password hasher: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		storage:   storage,
		sessions:  sessions,
		mailer:    mailer,
		events:    broadcast.NewMemoryBroadcaster[Event](16),
		throttle:  newThrottle(cfg.SignInRefill, cfg.SignInBurst),
		log:       logger.Discard(),
		now:       time.Now,
		dummyHash: dummy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Client returns a Capability bound to the session token of one browser.
// An empty token yields an anonymous client.
func (s *Service) Client(token string) *Client {
	return &Client{svc: s, token: token}
}

// SignUp registers an identity and mails a confirmation link pointing at
// redirectTarget with a signed token query parameter. No session is issued
// until the link is followed.
func (s *Service) SignUp(ctx context.Context, rawEmail, password, redirectTarget string) (Identity, error) {
	addr := sanitizer.NormalizeEmail(rawEmail)
	if err := validator.Apply(
		validator.ValidEmail("email", addr),
		validator.StrongPassword("password", password, validator.DefaultPasswordPolicy()),
		validator.NotCommonPassword("password", password),
		validator.Required("redirect_to", redirectTarget),
	); err != nil {
		return Identity{}, err
	}
	target, err := url.Parse(redirectTarget)
	if err != nil {
		return Identity{}, validator.ValidationErrors{{Field: "redirect_to", Message: "must be a valid URL", Key: "validation.url"}}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: hash password: %w", err)
	}

	identity := Identity{
		ID:        uuid.NewString(),
		Email:     addr,
		CreatedAt: s.now().UTC(),
		Metadata:  map[string]any{},
	}
	if err := s.storage.Create(ctx, identity, hash); err != nil {
		return Identity{}, err
	}
	s.log.InfoContext(ctx, "identity registered", logger.UserID(identity.ID))

	if err := s.sendConfirmation(ctx, identity, target); err != nil {
		// The identity is durable; the user can still sign in when
		// confirmation is not required.
		s.log.ErrorContext(ctx, "confirmation email not sent", logger.UserID(identity.ID), logger.Error(err))
	}
	return identity, nil
}

func (s *Service) sendConfirmation(ctx context.Context, identity Identity, target *url.URL) error {
	tok, err := token.Generate(confirmationPayload{
		Subject: confirmationSubject,
		UserID:  identity.ID,
		Email:   identity.Email,
	}, s.cfg.ConfirmationSecret, s.cfg.ConfirmationTTL)
	if err != nil {
		return err
	}
	link := *target
	q := link.Query()
	q.Set("token", tok)
	link.RawQuery = q.Encode()

	body, err := templates.Render(ctx, templates.ConfirmEmail(templates.ConfirmEmailData{
		Name:       localPart(identity.Email),
		ConfirmURL: link.String(),
	}))
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, email.Message{
		To:       identity.Email,
		Subject:  "Confirm your email",
		BodyHTML: body,
		Tag:      "confirm-email",
	})
}

// SignIn verifies credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, rawEmail, password string) (Identity, *session.Session, error) {
	addr := sanitizer.NormalizeEmail(rawEmail)
	if !s.throttle.allow(addr, s.now()) {
		s.log.WarnContext(ctx, "sign-in throttled")
		return Identity{}, nil, ErrTooManyAttempts
	}

	identity, hash, err := s.storage.GetByEmail(ctx, addr)
	switch {
	case errors.Is(err, ErrIdentityNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Identity{}, nil, ErrInvalidCredentials
	case err != nil:
		return Identity{}, nil, fmt.Errorf("auth: load identity: %w", err)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return Identity{}, nil, ErrInvalidCredentials
	}
	if s.cfg.RequireConfirmedEmail && identity.EmailConfirmedAt == nil {
		return Identity{}, nil, ErrEmailNotConfirmed
	}
	s.throttle.reset(addr)

	sess, err := s.startSession(ctx, identity.ID)
	if err != nil {
		return Identity{}, nil, err
	}
	return identity, sess, nil
}

// ConfirmEmail consumes a confirmation token, marks the email confirmed and
// signs the identity in. A token is accepted once.
func (s *Service) ConfirmEmail(ctx context.Context, confirmationToken string) (Identity, *session.Session, error) {
	payload, err := token.Parse[confirmationPayload](confirmationToken, s.cfg.ConfirmationSecret)
	if err != nil || payload.Subject != confirmationSubject || payload.UserID == "" {
		return Identity{}, nil, ErrInvalidConfirmationToken
	}

	identity, err := s.storage.ConfirmEmail(ctx, payload.UserID, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) || errors.Is(err, ErrAlreadyConfirmed) {
			return Identity{}, nil, ErrInvalidConfirmationToken
		}
		return Identity{}, nil, fmt.Errorf("auth: confirm email: %w", err)
	}
	if !strings.EqualFold(identity.Email, payload.Email) {
		return Identity{}, nil, ErrInvalidConfirmationToken
	}

	sess, err := s.startSession(ctx, identity.ID)
	if err != nil {
		return Identity{}, nil, err
	}
	return identity, sess, nil
}

func (s *Service) startSession(ctx context.Context, userID string) (*session.Session, error) {
	sess, err := s.sessions.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: issue session: %w", err)
	}
	s.publish(ctx, Event{Kind: EventSignedIn, UserID: userID, Token: sess.Token})
	return sess, nil
}

// SignOut revokes the session behind sessionToken. Unknown tokens are not
// an error.
func (s *Service) SignOut(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	var userID string
	if sess, err := s.sessions.Lookup(ctx, sessionToken); err == nil {
		userID = sess.UserID
	}
	if err := s.sessions.Revoke(ctx, sessionToken); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	s.publish(ctx, Event{Kind: EventSignedOut, UserID: userID, Token: sessionToken})
	return nil
}

// RefreshSession rotates sessionToken: a new token is issued for the same
// identity and the old one is revoked.
func (s *Service) RefreshSession(ctx context.Context, sessionToken string) (*session.Session, error) {
	old, err := s.sessions.Lookup(ctx, sessionToken)
	if err != nil || !old.IsAuthenticated() {
		return nil, ErrNoSession
	}
	fresh, err := s.sessions.Issue(ctx, old.UserID)
	if err != nil {
		return nil, fmt.Errorf("auth: issue session: %w", err)
	}
	if err := s.sessions.Revoke(ctx, sessionToken); err != nil {
		s.log.WarnContext(ctx, "old session not revoked", logger.UserID(old.UserID), logger.Error(err))
	}
	s.publish(ctx, Event{Kind: EventTokenRefreshed, UserID: old.UserID, Token: fresh.Token, PreviousToken: sessionToken})
	return fresh, nil
}

// HasSession reports whether sessionToken names a live authenticated
// session. The identity is not loaded.
func (s *Service) HasSession(ctx context.Context, sessionToken string) bool {
	if sessionToken == "" {
		return false
	}
	sess, err := s.sessions.Lookup(ctx, sessionToken)
	return err == nil && sess.IsAuthenticated()
}

// Subscribe delivers every auth event until ctx is done.
func (s *Service) Subscribe(ctx context.Context) broadcast.Subscriber[Event] {
	return s.events.Subscribe(ctx)
}

// Close stops event delivery.
func (s *Service) Close() error {
	return s.events.Close()
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.metrics.AuthEvent(string(ev.Kind))
	s.log.DebugContext(ctx, "auth event", logger.Event(string(ev.Kind)), logger.UserID(ev.UserID))
	if err := s.events.Broadcast(ctx, broadcast.Message[Event]{Data: ev}); err != nil {
		s.log.WarnContext(ctx, "auth event not delivered", logger.Event(string(ev.Kind)), logger.Error(err))
	}
}

func localPart(addr string) string {
	local, _, _ := strings.Cut(addr, "@")
	return local
}
