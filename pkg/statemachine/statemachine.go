// Package statemachine is a small thread-safe finite state machine with
// guarded transitions and transition actions.
package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// State is a named state.
type State interface{ Name() string }

// Event is a named trigger.
type Event interface{ Name() string }

// StringState is a State backed by a string.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is an Event backed by a string.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }

// Guard decides whether a transition may fire.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Action runs before the state changes. An error aborts the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

type transition struct {
	to      State
	guards  []Guard
	actions []Action
}

// StateMachine holds the current state and the transition table
// keyed by from-state and event name.
type StateMachine struct {
	mu          sync.RWMutex
	initial     State
	current     State
	transitions map[string]map[string][]transition
}

// Option configures New.
type Option func(*StateMachine) error

// TransitionOption attaches guards or actions to one transition.
type TransitionOption func(*transition)

// New creates a machine in initialState.
func New(initialState State, opts ...Option) (*StateMachine, error) {
	if initialState == nil {
		return nil, ErrInvalidTransition
	}
	sm := &StateMachine{
		initial:     initialState,
		current:     initialState,
		transitions: make(map[string]map[string][]transition),
	}
	for _, opt := range opts {
		if err := opt(sm); err != nil {
			return nil, err
		}
	}
	return sm, nil
}

// MustNew is New that panics on a malformed table.
func MustNew(initialState State, opts ...Option) *StateMachine {
	sm, err := New(initialState, opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return sm
}

// WithTransition registers from --event--> to.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(sm *StateMachine) error {
		return sm.AddTransition(from, to, event, opts...)
	}
}

// WithGuard adds a guard. All guards must pass.
func WithGuard(g Guard) TransitionOption {
	return func(t *transition) {
		if g != nil {
			t.guards = append(t.guards, g)
		}
	}
}

// WithAction adds an action, run in registration order.
func WithAction(a Action) TransitionOption {
	return func(t *transition) {
		if a != nil {
			t.actions = append(t.actions, a)
		}
	}
}

// AddTransition registers a transition. Several transitions may share a
// from-state and event; the first whose guards pass wins.
func (sm *StateMachine) AddTransition(from, to State, event Event, opts ...TransitionOption) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}
	t := transition{to: to}
	for _, opt := range opts {
		opt(&t)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	byEvent, ok := sm.transitions[from.Name()]
	if !ok {
		byEvent = make(map[string][]transition)
		sm.transitions[from.Name()] = byEvent
	}
	byEvent[event.Name()] = append(byEvent[event.Name()], t)
	return nil
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Is reports whether the current state is s.
func (sm *StateMachine) Is(s State) bool {
	return sm.Current().Name() == s.Name()
}

// Fire applies event to the current state.
func (sm *StateMachine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	t, err := sm.match(ctx, event, data)
	if err != nil {
		return err
	}
	for _, action := range t.actions {
		if err := action(ctx, sm.current, t.to, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}
	sm.current = t.to
	return nil
}

// CanFire reports whether Fire would find a transition. Actions are not run.
func (sm *StateMachine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, err := sm.match(ctx, event, data)
	return err == nil
}

// Reset returns to the initial state.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	sm.current = sm.initial
	sm.mu.Unlock()
}

func (sm *StateMachine) match(ctx context.Context, event Event, data any) (*transition, error) {
	from := sm.current.Name()
	candidates := sm.transitions[from][event.Name()]
	if len(candidates) == 0 {
		return nil, &ErrNoTransitionAvailable{StateName: from, EventName: event.Name()}
	}
	for i := range candidates {
		passed := true
		for _, g := range candidates[i].guards {
			if !g(ctx, sm.current, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return &candidates[i], nil
		}
	}
	return nil, &ErrTransitionRejected{StateName: from, EventName: event.Name()}
}
