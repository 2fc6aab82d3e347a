package clock

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receive once the channel is closed and drained.
var ErrClosed = errors.New("clock: channel closed")

// Latest is a single-slot coalescing channel. Put never blocks: a value that
// has not been received yet is overwritten. Receive always returns the newest
// value, so a slow consumer skips stale entries instead of queueing them.
type Latest[T any] struct {
	mu      sync.Mutex
	val     T
	has     bool
	closed  bool
	dropped uint64
	ready   chan struct{}
}

// NewLatest returns an empty channel.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, replacing any unread value. It reports false when the
// channel is closed.
func (l *Latest[T]) Put(v T) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	if l.has {
		l.dropped++
	}
	l.val = v
	l.has = true
	l.mu.Unlock()

	l.signal()
	return true
}

// Receive blocks until a value is available, ctx is done, or the channel is
// closed and empty.
func (l *Latest[T]) Receive(ctx context.Context) (T, error) {
	v, _, err := l.ReceiveOrWake(ctx, nil)
	return v, err
}

// ReceiveOrWake is Receive that also returns, with ok false and no error,
// when wake fires before a value arrives. A nil wake never fires.
func (l *Latest[T]) ReceiveOrWake(ctx context.Context, wake <-chan struct{}) (T, bool, error) {
	for {
		if v, ok, closed := l.take(); ok {
			return v, true, nil
		} else if closed {
			return v, false, ErrClosed
		}

		var zero T
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-wake:
			return zero, false, nil
		case <-l.ready:
		}
	}
}

// TryReceive returns the pending value, if any, without blocking.
func (l *Latest[T]) TryReceive() (T, bool) {
	v, ok, _ := l.take()
	return v, ok
}

// Close wakes any receiver. A pending value is still delivered.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
}

// Pending reports whether a value is waiting to be received.
func (l *Latest[T]) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.has
}

// Dropped returns how many values were overwritten before being received.
func (l *Latest[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Latest[T]) take() (v T, ok, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.has {
		v = l.val
		var zero T
		l.val = zero
		l.has = false
		return v, true, l.closed
	}
	return v, false, l.closed
}

func (l *Latest[T]) signal() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}
