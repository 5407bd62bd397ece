// Package ratelimit provides the per-source sliding-window admission
// control every outbound catalog request passes through.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits up to capacity requests per window. One instance exists
// per upstream source; scraped catalogs get tighter windows than official
// APIs.
//
// Wait never returns an error: the limiter only delays, it does not fail.
// The context is honored so a cancelled caller stops sleeping early; its
// subsequent network call is the thing that observes the cancellation.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	stamps   []time.Time

	now func() time.Time
}

// New creates a limiter admitting capacity requests per window. A capacity
// of zero or less disables limiting.
func New(capacity int, window time.Duration) *Limiter {
	return &Limiter{
		capacity: capacity,
		window:   window,
		now:      time.Now,
	}
}

// Wait blocks until the caller may issue one request.
func (l *Limiter) Wait(ctx context.Context) {
	if l == nil || l.capacity <= 0 {
		return
	}

	l.mu.Lock()
	now := l.now()
	l.prune(now)

	if len(l.stamps) < l.capacity {
		l.stamps = append(l.stamps, now)
		l.mu.Unlock()
		return
	}

	// Window full: sleep until the oldest stamp leaves the window, then
	// start a fresh window.
	delay := l.window - now.Sub(l.stamps[0])
	l.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	l.mu.Lock()
	l.stamps = l.stamps[:0]
	l.stamps = append(l.stamps, l.now())
	l.mu.Unlock()
}

// Pending returns how many requests currently sit inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// prune drops timestamps older than the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := 0
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			l.stamps[keep] = ts
			keep++
		}
	}
	l.stamps = l.stamps[:keep]
}
