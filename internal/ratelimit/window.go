// Package ratelimit provides a sliding-window limiter shared by concurrent
// senders.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window admits at most Limit events in any Period-long window.
//
// Callers reserve a slot under the lock and sleep outside it, so concurrent
// callers queue up in reservation order without holding the mutex.
type Window struct {
	limit  int
	period time.Duration

	mu    sync.Mutex
	slots []time.Time // reserved send times, ascending
}

// New returns a Window admitting limit events per period. A non-positive
// limit or period disables limiting.
func New(limit int, period time.Duration) *Window {
	return &Window{limit: limit, period: period}
}

// Reserve books the next free slot at or after now and returns how long the
// caller must wait before using it.
func (w *Window) Reserve(now time.Time) time.Duration {
	if w == nil || w.limit <= 0 || w.period <= 0 {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.period)
	drop := 0
	for drop < len(w.slots) && !w.slots[drop].After(cutoff) {
		drop++
	}
	w.slots = w.slots[drop:]

	at := now
	if len(w.slots) >= w.limit {
		if earliest := w.slots[len(w.slots)-w.limit].Add(w.period); earliest.After(at) {
			at = earliest
		}
	}
	w.slots = append(w.slots, at)
	return at.Sub(now)
}

// Wait blocks until a slot is available or ctx is done.
func (w *Window) Wait(ctx context.Context) error {
	d := w.Reserve(time.Now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
