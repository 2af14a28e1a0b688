package shellcheck

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterEnforcesLimit(t *testing.T) {
	l := NewRateLimiter()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("slack-1", 3)
		assert.True(t, ok, "call %d should pass", i+1)
	}

	ok, reason := l.Allow("slack-1", 3)
	assert.False(t, ok)
	assert.Contains(t, reason, "rate limit exceeded")
}

func TestRateLimiterIsolatesIntegrations(t *testing.T) {
	l := NewRateLimiter()

	ok, _ := l.Allow("slack-1", 1)
	assert.True(t, ok)
	ok, _ = l.Allow("slack-1", 1)
	assert.False(t, ok)

	ok, _ = l.Allow("discord-1", 1)
	assert.True(t, ok, "another integration has its own window")
}

func TestRateLimiterWindowSlides(t *testing.T) {
	now := time.Now()
	l := NewRateLimiter()
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("k", 1)
	assert.True(t, ok)
	ok, _ = l.Allow("k", 1)
	assert.False(t, ok)

	now = now.Add(61 * time.Second)
	ok, _ = l.Allow("k", 1)
	assert.True(t, ok, "entries older than the window are trimmed")
}

func TestRateLimiterZeroLimitDisables(t *testing.T) {
	l := NewRateLimiter()
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("k", 0)
		assert.True(t, ok)
	}
}
