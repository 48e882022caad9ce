package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/trevia/pkg/logger"
	"github.com/dmitrymomot/trevia/pkg/metrics"
	"github.com/dmitrymomot/trevia/svc/auth"
	"github.com/dmitrymomot/trevia/svc/sessionstore"
)

// View is what consumers render.
type View struct {
	Profile     *Resolved
	DisplayName string
	Initials    string
	Loading     bool
	Err         error
}

// Resolver keeps the resolved profile of one session in step with its
// session store. Passes are sequenced after session settlement; a pass
// overtaken by a newer one, or finishing after Close, is discarded.
type Resolver struct {
	sessions   *sessionstore.Store
	store      Store
	capability auth.Capability
	log        *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	timeout    time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	mu          sync.Mutex
	generation  uint64
	profile     *Resolved
	loading     bool
	err         error
	closed      bool
	listeners   map[uint64]func(View)
	nextID      uint64
	unsubscribe func()
}

type ResolverOption func(*Resolver)

func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l.With(logger.Component("profile")) }
}

func WithMetrics(m *metrics.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithPassTimeout bounds passes started by session notifications.
func WithPassTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver subscribes to sessions. The first view is produced by
// Refresh or by the next session notification.
func NewResolver(sessions *sessionstore.Store, store Store, capability auth.Capability, opts ...ResolverOption) *Resolver {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		sessions:   sessions,
		store:      store,
		capability: capability,
		log:        logger.Discard(),
		now:        time.Now,
		timeout:    10 * time.Second,
		baseCtx:    ctx,
		cancel:     cancel,
		loading:    true,
		listeners:  make(map[uint64]func(View)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.unsubscribe = sessions.Subscribe(r.onSession)
	return r
}

func (r *Resolver) onSession(snap sessionstore.Snapshot) {
	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()
	r.pass(ctx, snap.Identity)
}

// Resolve merges the stored record for identity. A nil identity yields a
// nil profile. A missing row means defaults; any other store failure is
// logged and resolution continues with identity data only.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity) (*Resolved, error) {
	if identity == nil {
		return nil, nil
	}
	if r.isClosed() {
		return nil, ErrClosed
	}

	rec, err := r.store.GetByID(ctx, identity.ID)
	switch {
	case err == nil:
		r.metrics.ProfileResolution("stored")
		resolved := Merge(*identity, &rec)
		return &resolved, nil
	case errors.Is(err, ErrNotFound):
		r.metrics.ProfileResolution("defaults")
	default:
		r.metrics.ProfileResolution("degraded")
		r.log.WarnContext(ctx, "profile fetch failed, using identity data",
			logger.UserID(identity.ID), logger.Error(err))
	}
	resolved := Merge(*identity, nil)
	return &resolved, nil
}

// pass resolves identity and publishes the result unless a newer pass
// started or the resolver closed meanwhile.
func (r *Resolver) pass(ctx context.Context, identity *auth.Identity) (View, bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return View{}, false
	}
	r.generation++
	gen := r.generation
	r.loading = true
	r.mu.Unlock()

	resolved, err := r.Resolve(ctx, identity)

	r.mu.Lock()
	if r.closed || gen != r.generation {
		r.mu.Unlock()
		r.metrics.ProfileResolution("discarded")
		return View{}, false
	}
	r.profile, r.err, r.loading = resolved, err, false
	view := r.viewLocked()
	fns := r.listenersLocked()
	r.mu.Unlock()

	for _, fn := range fns {
		fn(view)
	}
	return view, true
}

// Refresh settles the session if needed and runs a fresh pass.
func (r *Resolver) Refresh(ctx context.Context) (View, error) {
	if r.isClosed() {
		return View{}, ErrClosed
	}

	snap := r.sessions.Snapshot()
	var fetchErr error
	if snap.State == sessionstore.StateUnresolved || snap.State == sessionstore.StateResolving {
		snap, fetchErr = r.sessions.Initialize(ctx)
		if fetchErr != nil && !errors.Is(fetchErr, sessionstore.ErrFetchFailed) {
			return r.Current(), fetchErr
		}
	}

	view, ok := r.pass(ctx, snap.Identity)
	if !ok {
		if r.isClosed() {
			return View{}, ErrClosed
		}
		return r.Current(), nil
	}
	if fetchErr != nil {
		r.mu.Lock()
		r.err = fetchErr
		view = r.viewLocked()
		r.mu.Unlock()
	}
	return view, nil
}

// Current returns the latest view without blocking on I/O.
func (r *Resolver) Current() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Resolver) viewLocked() View {
	var p *Resolved
	if r.profile != nil {
		c := *r.profile
		p = &c
	}
	v := View{Profile: p, Loading: r.loading, Err: r.err}
	if p != nil {
		v.DisplayName = p.DisplayName()
		v.Initials = p.Initials()
	}
	return v
}

// Update writes patch for the signed-in user. The profile row is written
// first; the full name is then copied into identity metadata. A failed row
// write stops before the metadata write. A failed metadata write returns
// ErrMetadataSyncFailed, but the row is durable and the view is refreshed.
func (r *Resolver) Update(ctx context.Context, patch Patch) error {
	if r.isClosed() {
		return ErrClosed
	}
	patch = patch.Sanitize()
	if err := patch.Validate(); err != nil {
		r.metrics.ProfileUpdate("invalid")
		return err
	}

	snap := r.sessions.Snapshot()
	if !snap.Authenticated() {
		r.metrics.ProfileUpdate("not_authenticated")
		return ErrNotAuthenticated
	}
	identity := snap.Identity

	existing, err := r.store.GetByID(ctx, identity.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		existing = Record{ID: identity.ID}
	case err != nil:
		r.metrics.ProfileUpdate("upsert_failed")
		return fmt.Errorf("%w: %w", ErrUpsertFailed, err)
	}

	rec := patch.ApplyTo(existing)
	rec.ID = identity.ID
	rec.UpdatedAt = timePtr(r.now().UTC())
	if err := r.store.Upsert(ctx, rec); err != nil {
		r.metrics.ProfileUpdate("upsert_failed")
		r.log.WarnContext(ctx, "profile upsert failed", logger.UserID(identity.ID), logger.Error(err))
		return fmt.Errorf("%w: %w", ErrUpsertFailed, err)
	}

	var syncErr error
	if patch.FullName != nil && *patch.FullName != "" {
		if err := r.capability.UpdateIdentityMetadata(ctx, map[string]any{MetaFullName: *patch.FullName}); err != nil {
			r.log.WarnContext(ctx, "identity metadata sync failed", logger.UserID(identity.ID), logger.Error(err))
			syncErr = fmt.Errorf("%w: %w", ErrMetadataSyncFailed, err)
		}
	}

	if _, ok := r.pass(ctx, identity); !ok && r.isClosed() {
		return errors.Join(syncErr, ErrClosed)
	}
	if syncErr != nil {
		r.metrics.ProfileUpdate("partial")
		return syncErr
	}
	r.metrics.ProfileUpdate("ok")
	return nil
}

// Subscribe registers fn for every published view.
func (r *Resolver) Subscribe(fn func(View)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || fn == nil {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.listeners, id)
			r.mu.Unlock()
		})
	}
}

func (r *Resolver) listenersLocked() []func(View) {
	fns := make([]func(View), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func (r *Resolver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close detaches from the session store and discards any pass still in
// flight. It does not close the session store.
func (r *Resolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.listeners = nil
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	r.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}
