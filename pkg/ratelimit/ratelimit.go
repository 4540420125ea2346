// Package ratelimit implements a sliding-window hit counter keyed by an
// arbitrary string, typically a client address.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu      sync.Mutex
	limits  map[string][]time.Time
	window  time.Duration
	maxHits int
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
	}
}

// Allow records a hit for key and reports whether it stays within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(key, time.Now())

	if len(l.limits[key]) >= l.maxHits {
		return false
	}

	l.limits[key] = append(l.limits[key], time.Now())
	return true
}

// Remaining reports how many hits key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(key, time.Now())

	remaining := l.maxHits - len(l.limits[key])
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Limiter) pruneLocked(key string, now time.Time) {
	hits, exists := l.limits[key]
	if !exists {
		return
	}

	windowStart := now.Add(-l.window)
	valid := hits[:0]
	for _, hit := range hits {
		if hit.After(windowStart) {
			valid = append(valid, hit)
		}
	}
	l.limits[key] = valid
}
