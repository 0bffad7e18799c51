// Package latch provides a single-fire completion signal.
package latch

import (
	"context"
	"sync/atomic"
	"time"
)

// Latch transitions from unset to set exactly once. Any number of
// goroutines may fire or wait on it.
type Latch struct {
	fired int32
	done  chan struct{}
}

func New() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Fire sets the latch. It reports whether this call was the one that
// set it; later calls are no-ops and return false.
func (l *Latch) Fire() bool {
	if !atomic.CompareAndSwapInt32(&l.fired, 0, 1) {
		return false
	}
	close(l.done)
	return true
}

func (l *Latch) Fired() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done returns a channel which is closed once the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch is set or timeout elapses and reports
// whether it was set. A non-positive timeout does not block.
func (l *Latch) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return l.Fired()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return true
	case <-timer.C:
		// A fire racing the deadline still counts.
		return l.Fired()
	}
}

// WaitContext blocks until the latch is set or ctx is done.
func (l *Latch) WaitContext(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
