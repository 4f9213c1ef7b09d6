package phase

import (
	"context"
	"sync"
)

// Latch is a one-way, set-once signal broadcast to every waiter.
// Set is idempotent and safe from any goroutine; once set, a latch is
// never cleared.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch returns an unset latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set releases all current and future waiters. It reports whether this
// call was the one that set the latch.
func (l *Latch) Set() bool {
	first := false
	l.once.Do(func() {
		close(l.ch)
		first = true
	})
	return first
}

// IsSet reports whether the latch has been set.
func (l *Latch) IsSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.ch
}

// Wait blocks until the latch is set or ctx is done.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
