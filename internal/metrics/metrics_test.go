package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	// Every counter method must tolerate a nil receiver, since callers
	// treat the collector as optional.
	var c *Collector
	c.IncCommandChecked()
	c.IncCommandBlocked()
	c.IncMessageAnalyzed()
	c.IncMessageBlocked()
	c.IncFactValidated()
	c.IncFactBlocked()
	c.IncLLMEscalation()
	c.IncLLMEscalationFailure()
	c.IncExceptionHit()
	c.IncCacheHit()
	c.IncCacheMiss()
	c.IncCacheFallback()
	c.IncBufferInjection()
	assert.Nil(t, c.Snapshot())
}

func TestCountersAccumulate(t *testing.T) {
	c := New()
	c.IncCommandChecked()
	c.IncCommandChecked()
	c.IncCommandBlocked()
	c.IncLLMEscalation()
	c.IncExceptionHit()

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap["agentward_commands_checked_total"])
	assert.Equal(t, uint64(1), snap["agentward_commands_blocked_total"])
	assert.Equal(t, uint64(1), snap["agentward_llm_escalations_total"])
	assert.Equal(t, uint64(1), snap["agentward_exception_hits_total"])
	assert.Equal(t, uint64(0), snap["agentward_messages_blocked_total"])
}

func TestHandlerExposition(t *testing.T) {
	c := New()
	c.IncMessageAnalyzed()
	c.IncCacheHit()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	res := rec.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Contains(t, res.Header.Get("Content-Type"), "text/plain")
	out := string(body)
	assert.Contains(t, out, "agentward_up 1\n")
	assert.Contains(t, out, "# TYPE agentward_messages_analyzed_total counter\n")
	assert.Contains(t, out, "agentward_messages_analyzed_total 1\n")
	assert.Contains(t, out, "agentward_rule_cache_hits_total 1\n")
	assert.Contains(t, out, "agentward_rule_cache_misses_total 0\n")
}
