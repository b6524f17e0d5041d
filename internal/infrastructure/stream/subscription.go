// Package stream provides the channel-backed subscription handle shared by
// every event source.
package stream

import (
	"context"
	"sync"
)

// Subscription delivers events of type T to a single consumer until it is
// closed. Producers call Publish; the consumer ranges over Events.
type Subscription[T any] struct {
	events chan T
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	onClose   func() error
	closeErr  error
}

// New creates a subscription with the given buffer. onClose, when non-nil,
// runs once on Close to release the underlying feed.
func New[T any](buffer int, onClose func() error) *Subscription[T] {
	if buffer < 0 {
		buffer = 0
	}
	return &Subscription[T]{
		events:  make(chan T, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// FromSlice returns an already closed subscription that yields events in order.
func FromSlice[T any](events ...T) *Subscription[T] {
	s := New[T](len(events), nil)
	for _, ev := range events {
		s.events <- ev
	}
	_ = s.Close()
	return s
}

func (s *Subscription[T]) Events() <-chan T {
	return s.events
}

// Done is closed as soon as Close starts.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Publish hands ev to the consumer. It blocks while the buffer is full and
// reports false if the subscription was closed or ctx ended first.
func (s *Subscription[T]) Publish(ctx context.Context, ev T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close ends the sequence. Events already buffered stay readable. Safe to
// call more than once and from any goroutine.
func (s *Subscription[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
		if s.onClose != nil {
			s.closeErr = s.onClose()
		}
	})
	return s.closeErr
}
