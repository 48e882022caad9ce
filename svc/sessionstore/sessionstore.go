// Package sessionstore holds the session state of one browser session:
// who is signed in, or that nobody is. It mediates every "who is logged
// in" read and re-resolves when the auth capability reports a change.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/metrics"
	"github.com/dmitrymomot/trevia/pkg/statemachine"
	"github.com/dmitrymomot/trevia/svc/auth"
)

var (
	// ErrFetchFailed wraps identity retrieval failures other than "no
	// session". The store still settles to StateAnonymous.
	ErrFetchFailed = errors.New("sessionstore: identity fetch failed")
	ErrClosed      = errors.New("sessionstore: closed")
)

// State implements statemachine.State.
type State string

func (s State) Name() string { return string(s) }

const (
	StateUnresolved    State = "unresolved"
	StateResolving     State = "resolving"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

type event string

func (e event) Name() string { return string(e) }

const (
	eventInitialize     event = "initialize"
	eventIdentityFound  event = "identity_found"
	eventIdentityAbsent event = "identity_absent"
	eventAuthChanged    event = "auth_changed"
)

// Snapshot is a settled view of the store. Identity is set only in
// StateAuthenticated.
type Snapshot struct {
	State    State
	Identity *auth.Identity
}

func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

type call struct {
	done chan struct{}
	snap Snapshot
	err  error
}

// Store is safe for concurrent use.
type Store struct {
	capability   auth.Capability
	log          *slog.Logger
	metrics      *metrics.Metrics
	fetchTimeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	machine   *statemachine.StateMachine
	identity  *auth.Identity
	inflight  *call
	listeners map[uint64]func(Snapshot)
	nextID    uint64
	detach    func()
	closed    bool
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l.With(logger.Component("sessionstore")) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithFetchTimeout bounds identity fetches triggered by auth notifications.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// New returns a store in StateUnresolved. Call Initialize to resolve it.
func New(capability auth.Capability, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		capability:   capability,
		log:          logger.Discard(),
		fetchTimeout: 10 * time.Second,
		baseCtx:      ctx,
		cancel:       cancel,
		listeners:    make(map[uint64]func(Snapshot)),
		machine: statemachine.MustNew(StateUnresolved,
			statemachine.WithTransition(StateUnresolved, StateResolving, eventInitialize),
			statemachine.WithTransition(StateAuthenticated, StateResolving, eventAuthChanged),
			statemachine.WithTransition(StateAnonymous, StateResolving, eventAuthChanged),
			statemachine.WithTransition(StateResolving, StateAuthenticated, eventIdentityFound),
			statemachine.WithTransition(StateResolving, StateAnonymous, eventIdentityAbsent),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state without blocking on a fetch.
func (s *Store) State() State {
	return s.machine.Current().(State)
}

// CurrentIdentity returns the latest resolved identity, or nil.
func (s *Store) CurrentIdentity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIdentity(s.identity)
}

// Snapshot returns the current state and identity.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{State: s.machine.Current().(State), Identity: cloneIdentity(s.identity)}
}

// Initialize fetches the current identity and settles the store. A call
// made while a fetch is in flight waits for that fetch and returns its
// result. A "no session" answer settles to StateAnonymous with a nil
// error; any other failure settles to StateAnonymous and returns an error
// wrapping ErrFetchFailed.
func (s *Store) Initialize(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrClosed
	}
	if c := s.inflight; c != nil {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.snap, c.err
		case <-ctx.Done():
			return Snapshot{State: StateResolving}, ctx.Err()
		}
	}

	c := &call{done: make(chan struct{})}
	s.inflight = c
	ev := eventAuthChanged
	if s.machine.Is(StateUnresolved) {
		ev = eventInitialize
	}
	if err := s.machine.Fire(ctx, ev, nil); err != nil {
		s.inflight = nil
		s.mu.Unlock()
		close(c.done)
		return s.Snapshot(), fmt.Errorf("sessionstore: %w", err)
	}
	s.mu.Unlock()

	identity, fetchErr := s.capability.GetCurrentIdentity(ctx)

	s.mu.Lock()
	var err error
	switch {
	case fetchErr == nil && identity != nil:
		s.identity = cloneIdentity(identity)
		_ = s.machine.Fire(ctx, eventIdentityFound, nil)
	case fetchErr == nil, errors.Is(fetchErr, auth.ErrNoSession):
		s.identity = nil
		_ = s.machine.Fire(ctx, eventIdentityAbsent, nil)
	default:
		s.identity = nil
		_ = s.machine.Fire(ctx, eventIdentityAbsent, nil)
		err = fmt.Errorf("%w: %w", ErrFetchFailed, fetchErr)
	}
	c.snap, c.err = s.snapshotLocked(), err
	s.inflight = nil
	s.mu.Unlock()
	close(c.done)

	s.metrics.SessionSettled(c.snap.State.Name())
	if err != nil {
		s.log.WarnContext(ctx, "identity fetch failed", logger.SessionState(c.snap.State.Name()), logger.Error(fetchErr))
	} else {
		s.log.DebugContext(ctx, "session settled", logger.SessionState(c.snap.State.Name()))
	}
	return c.snap, err
}

// Subscribe registers fn to receive the settled snapshot after every auth
// state change. The first subscription attaches to the capability's change
// channel; the last unsubscribe releases it. The returned func is
// idempotent.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || fn == nil {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	if s.detach == nil {
		s.detach = s.capability.OnAuthStateChange(s.onAuthChange)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			var detach func()
			if len(s.listeners) == 0 {
				detach, s.detach = s.detach, nil
			}
			s.mu.Unlock()
			if detach != nil {
				detach()
			}
		})
	}
}

func (s *Store) onAuthChange(ev auth.Event) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.fetchTimeout)
	defer cancel()
	s.log.DebugContext(ctx, "auth state changed", logger.Event(string(ev.Kind)))
	s.refresh(ctx)
}

// refresh settles the store and notifies listeners, unless closed.
func (s *Store) refresh(ctx context.Context) Snapshot {
	snap, err := s.Initialize(ctx)
	if errors.Is(err, ErrClosed) {
		return snap
	}
	s.notify(snap)
	return snap
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// SignIn signs in through the capability and re-resolves.
func (s *Store) SignIn(ctx context.Context, email, password string) (Snapshot, error) {
	if err := s.capability.SignInWithCredentials(ctx, email, password); err != nil {
		return s.Snapshot(), err
	}
	return s.refresh(ctx), nil
}

// SignUp registers through the capability and re-resolves. The store stays
// anonymous until the confirmation link is followed.
func (s *Store) SignUp(ctx context.Context, email, password, redirectTarget string) (Snapshot, error) {
	if err := s.capability.SignUpWithCredentials(ctx, email, password, redirectTarget); err != nil {
		return s.Snapshot(), err
	}
	return s.refresh(ctx), nil
}

// SignOut signs out through the capability and re-resolves.
func (s *Store) SignOut(ctx context.Context) (Snapshot, error) {
	if err := s.capability.SignOut(ctx); err != nil {
		return s.Snapshot(), err
	}
	return s.refresh(ctx), nil
}

// Close releases the capability subscription and drops every listener.
// In-flight notifications are cancelled. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.listeners = nil
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	s.cancel()
	if detach != nil {
		detach()
	}
	return nil
}

func cloneIdentity(i *auth.Identity) *auth.Identity {
	if i == nil {
		return nil
	}
	c := i.Clone()
	return &c
}
