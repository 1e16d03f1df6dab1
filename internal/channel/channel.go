// Package channel provides a bounded single-producer/single-consumer queue.
//
// New splits the queue into a Sender and a Receiver. The split is permanent:
// whoever holds the Sender is the only producer and whoever holds the
// Receiver is the only consumer. Sends never block; receives suspend until a
// value is available.
package channel

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrFull is returned by TrySend when the queue is at capacity.
	// The queue is left untouched and the value is not stored.
	ErrFull = errors.New("channel full")

	// ErrDisconnected is returned by Recv once the Sender has been closed
	// and every buffered value has been drained.
	ErrDisconnected = errors.New("channel disconnected")

	// ErrClosed is returned by TrySend after Close.
	ErrClosed = errors.New("channel closed")
)

// Sender is the producing half of a bounded channel.
type Sender[T any] struct {
	ch     chan<- T
	closed bool
}

// Receiver is the consuming half of a bounded channel.
type Receiver[T any] struct {
	ch <-chan T
}

// New creates a FIFO with room for capacity values and returns its two halves.
func New[T any](capacity int) (*Sender[T], *Receiver[T], error) {
	if capacity < 1 {
		return nil, nil, errors.Errorf("invalid channel capacity %d", capacity)
	}
	ch := make(chan T, capacity)
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}, nil
}

// TrySend enqueues v without blocking.
// When the queue is full v is dropped and ErrFull is returned; the values
// already buffered are preserved in order.
func (s *Sender[T]) TrySend(v T) error {
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- v:
		return nil
	default:
		return ErrFull
	}
}

// Len returns the number of values currently buffered.
func (s *Sender[T]) Len() int { return len(s.ch) }

// Cap returns the channel capacity.
func (s *Sender[T]) Cap() int { return cap(s.ch) }

// Close disconnects the producer. Values already buffered are still
// delivered, after which Recv reports ErrDisconnected.
// Close must be called from the producing context.
func (s *Sender[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Recv suspends until a value is available, the sender is closed and drained
// (ErrDisconnected), or ctx is done (ctx.Err()).
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	select {
	case v, ok := <-r.ch:
		if !ok {
			var zero T
			return zero, ErrDisconnected
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryRecv returns the oldest buffered value without suspending.
// ok is false when nothing is buffered.
func (r *Receiver[T]) TryRecv() (v T, ok bool, err error) {
	select {
	case v, open := <-r.ch:
		if !open {
			return v, false, ErrDisconnected
		}
		return v, true, nil
	default:
		return v, false, nil
	}
}

// Len returns the number of values currently buffered.
func (r *Receiver[T]) Len() int { return len(r.ch) }

// Cap returns the channel capacity.
func (r *Receiver[T]) Cap() int { return cap(r.ch) }
