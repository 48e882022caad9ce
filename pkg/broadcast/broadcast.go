// Package broadcast fans typed messages out to in-process subscribers.
// Slow subscribers lose messages instead of blocking the publisher.
package broadcast

import (
	"context"
	"sync"
)

// Message wraps a payload.
type Message[T any] struct {
	Data T
}

// Subscriber receives broadcast messages until it is closed.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the subscriber closes.
	Receive() <-chan Message[T]
	// Close is idempotent.
	Close() error
}

// Broadcaster publishes messages to every live subscriber.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber that is removed when ctx is cancelled.
	Subscribe(ctx context.Context) Subscriber[T]
	Broadcast(ctx context.Context, msg Message[T]) error
	Close() error
}

// MemoryBroadcaster is the in-process Broadcaster. Safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	closed      bool
	cleanup     sync.WaitGroup
}

// NewMemoryBroadcaster creates a broadcaster whose subscribers buffer up to
// bufferSize messages (at least one).
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := &subscriber[T]{ch: make(chan Message[T], b.bufferSize), done: make(chan struct{})}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.cleanup.Add(1)
		go func() {
			defer b.cleanup.Done()
			select {
			case <-ctx.Done():
				b.unsubscribe(sub)
			case <-sub.done:
				b.unsubscribe(sub)
			}
		}()
	}
	return sub
}

func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	for sub := range b.subscribers {
		if !sub.send(msg) && sub.isClosed() {
			go b.unsubscribe(sub)
		}
	}
	return nil
}

// Close closes every subscriber. Later Subscribe calls return closed subscribers.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.subscribers {
		_ = sub.Close()
	}
	clear(b.subscribers)
	b.mu.Unlock()

	b.cleanup.Wait()
	return nil
}

// Len returns the number of live subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *MemoryBroadcaster[T]) unsubscribe(sub *subscriber[T]) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	_ = sub.Close()
}

type subscriber[T any] struct {
	mu     sync.RWMutex
	ch     chan Message[T]
	done   chan struct{}
	closed bool
}

func (s *subscriber[T]) Receive() <-chan Message[T] { return s.ch }

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.done)
	}
	return nil
}

func (s *subscriber[T]) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
