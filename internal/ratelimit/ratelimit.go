// Package ratelimit bounds research-stage throughput with a sliding window.
// Denial is backpressure, not failure: callers wait for capacity rather than
// dropping work.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most ceiling operations within any rolling window.
type Limiter struct {
	mu         sync.Mutex
	ceiling    int
	window     time.Duration
	admissions []time.Time // timestamps of admitted operations, oldest first
	now        func() time.Time
}

// New creates a limiter. The documented research envelope is 300-500
// operations per hour; window is normally time.Hour.
func New(ceiling int, window time.Duration) *Limiter {
	if ceiling < 1 {
		ceiling = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Limiter{
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
	}
}

// TryAcquire admits one operation if window capacity allows, without
// blocking.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictLocked(now)
	if len(l.admissions) >= l.ceiling {
		return false
	}
	l.admissions = append(l.admissions, now)
	return true
}

// Acquire blocks until an operation is admitted or ctx is done. The wait is
// bounded by the window: capacity always frees once the oldest admission
// ages out.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if l.TryAcquire() {
			return nil
		}

		wait := l.nextFree()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InWindow reports how many admissions currently count against the ceiling.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictLocked(l.now())
	return len(l.admissions)
}

// nextFree returns how long until the oldest admission leaves the window.
func (l *Limiter) nextFree() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.admissions) == 0 {
		return time.Millisecond
	}
	wait := l.window - l.now().Sub(l.admissions[0])
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

func (l *Limiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admissions) && !l.admissions[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.admissions = append(l.admissions[:0], l.admissions[i:]...)
	}
}
