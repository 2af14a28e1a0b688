package shellcheck

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces a per-integration request ceiling over a sliding
// 60 second window. Timestamps are trimmed lazily on each check; there is
// no background sweeper.
type RateLimiter struct {
	window time.Duration

	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter with the standard 60 second window.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		window:  time.Minute,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an attempt for the integration and reports whether it
// stays within limit calls per window. A limit <= 0 disables limiting.
func (l *RateLimiter) Allow(integrationID string, limit int) (bool, string) {
	if limit <= 0 {
		return true, ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	kept := l.history[integrationID][:0]
	for _, ts := range l.history[integrationID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.history[integrationID] = kept
		return false, fmt.Sprintf("rate limit exceeded: %d calls in the last minute (limit %d)", len(kept), limit)
	}

	l.history[integrationID] = append(kept, l.now())
	return true, ""
}
