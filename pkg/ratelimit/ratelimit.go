// Package ratelimit guards message-emitting operations with a per-sender
// sliding window. The window is process-local; a restart resets all quotas.
package ratelimit

import (
	"sync"
	"time"

	"github.com/Brickmii/team-table/pkg/errors"
)

// Defaults shared by every store instance.
const (
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 30
)

// Limiter tracks send attempts per sender over a sliding window.
// It is safe for concurrent use.
type Limiter struct {
	window time.Duration
	limit  int

	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

// New creates a limiter with the given window and per-window cap.
func New(window time.Duration, limit int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{
		window:  window,
		limit:   limit,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// NewDefault creates a limiter with the default 30-per-60s policy.
func NewDefault() *Limiter {
	return New(DefaultWindow, DefaultLimit)
}

// Allow records one attempt for sender, or rejects it with a RATE_LIMITED
// error when the window is full. A rejected attempt is not recorded.
func (l *Limiter) Allow(sender string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.buckets[sender][:0]
	for _, ts := range l.buckets[sender] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.buckets[sender] = kept
		return errors.Newf(errors.CodeRateLimit,
			"rate limit exceeded: max %d messages per %s", l.limit, l.window)
	}
	l.buckets[sender] = append(kept, now)
	return nil
}

// Reconfigure replaces the window and cap without dropping recorded
// attempts, so a config reload takes effect immediately. Non-positive
// values fall back to the defaults like New.
func (l *Limiter) Reconfigure(window time.Duration, limit int) {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = window
	l.limit = limit
}

// Reset clears all recorded attempts. Intended for tests and operator use.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string][]time.Time)
}

// SetClock overrides the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
