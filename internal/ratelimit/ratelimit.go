// Package ratelimit implements the sliding-window admission gate for the
// embedding API. Admission history is an ordered list of (timestamp, count)
// tuples; a single mutex protects it and waiters sleep outside the lock.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mhanii/corolaria/internal/logging"
)

// ErrAcquireTimeout is returned when slots do not free up within the
// caller's timeout. Treated as a transient step error upstream.
var ErrAcquireTimeout = errors.New("rate limit acquire timed out")

type entry struct {
	at    time.Time
	count int
}

// SlidingWindow admits at most maxRequests units per rolling window.
type SlidingWindow struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	history []entry
	now     func() time.Time // test seam
}

// New creates a sliding-window limiter.
func New(maxRequests int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// prune drops entries older than the window. Caller holds the lock.
func (l *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.history) && !l.history[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		l.history = append(l.history[:0], l.history[i:]...)
	}
}

// used sums the admitted counts in the current window. Caller holds the lock.
func (l *SlidingWindow) used() int {
	total := 0
	for _, e := range l.history {
		total += e.count
	}
	return total
}

// AvailableCapacity returns the remaining slots in the current window.
func (l *SlidingWindow) AvailableCapacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	free := l.maxRequests - l.used()
	if free < 0 {
		free = 0
	}
	return free
}

// Record registers usage without blocking, for requests already in flight.
func (l *SlidingWindow) Record(count int) {
	if count <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	l.history = append(l.history, entry{at: now, count: count})
}

// Acquire blocks until count slots are free in the current window, records
// the usage, and returns nil. It returns ErrAcquireTimeout when the timeout
// elapses first and the context error when ctx is cancelled. The wait time
// until the next expiry is computed under the lock; the sleep happens
// outside it.
func (l *SlidingWindow) Acquire(ctx context.Context, count int, timeout time.Duration) error {
	if count <= 0 {
		return nil
	}
	if count > l.maxRequests {
		return fmt.Errorf("cannot acquire %d slots from a window of %d", count, l.maxRequests)
	}

	deadline := l.now().Add(timeout)
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if l.used()+count <= l.maxRequests {
			l.history = append(l.history, entry{at: now, count: count})
			l.mu.Unlock()
			return nil
		}
		// Sleep until the oldest entry leaves the window, bounded by the
		// remaining timeout.
		var wait time.Duration
		if len(l.history) > 0 {
			wait = l.history[0].at.Add(l.window).Sub(now)
		}
		l.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			logging.Get(logging.CategoryEmbedding).Warn("Rate limit acquire(%d) timed out after %v", count, timeout)
			return ErrAcquireTimeout
		}
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
