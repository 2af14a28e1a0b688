// Package metrics provides a minimal Prometheus-compatible counter set for
// the guardrail engine. All methods are safe on a nil receiver so that
// components can treat the collector as optional.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"
)

// Collector counts guardrail engine activity.
type Collector struct {
	startedAt time.Time

	commandsChecked atomic.Uint64
	commandsBlocked atomic.Uint64

	messagesAnalyzed atomic.Uint64
	messagesBlocked  atomic.Uint64
	factsValidated   atomic.Uint64
	factsBlocked     atomic.Uint64

	llmEscalations        atomic.Uint64
	llmEscalationFailures atomic.Uint64

	exceptionHits atomic.Uint64

	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	cacheFallbacks atomic.Uint64

	bufferInjections atomic.Uint64
}

func New() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

// The nil check in each method must come before any field access: taking
// a counter's address through a nil receiver already dereferences it.

func (c *Collector) IncCommandChecked() {
	if c == nil {
		return
	}
	c.commandsChecked.Add(1)
}

func (c *Collector) IncCommandBlocked() {
	if c == nil {
		return
	}
	c.commandsBlocked.Add(1)
}

func (c *Collector) IncMessageAnalyzed() {
	if c == nil {
		return
	}
	c.messagesAnalyzed.Add(1)
}

func (c *Collector) IncMessageBlocked() {
	if c == nil {
		return
	}
	c.messagesBlocked.Add(1)
}

func (c *Collector) IncFactValidated() {
	if c == nil {
		return
	}
	c.factsValidated.Add(1)
}

func (c *Collector) IncFactBlocked() {
	if c == nil {
		return
	}
	c.factsBlocked.Add(1)
}

func (c *Collector) IncLLMEscalation() {
	if c == nil {
		return
	}
	c.llmEscalations.Add(1)
}

func (c *Collector) IncLLMEscalationFailure() {
	if c == nil {
		return
	}
	c.llmEscalationFailures.Add(1)
}

func (c *Collector) IncExceptionHit() {
	if c == nil {
		return
	}
	c.exceptionHits.Add(1)
}

func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Add(1)
}

func (c *Collector) IncCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Add(1)
}

func (c *Collector) IncCacheFallback() {
	if c == nil {
		return
	}
	c.cacheFallbacks.Add(1)
}

func (c *Collector) IncBufferInjection() {
	if c == nil {
		return
	}
	c.bufferInjections.Add(1)
}

// Snapshot returns the current counter values keyed by metric name.
func (c *Collector) Snapshot() map[string]uint64 {
	if c == nil {
		return nil
	}
	return map[string]uint64{
		"agentward_commands_checked_total":        c.commandsChecked.Load(),
		"agentward_commands_blocked_total":        c.commandsBlocked.Load(),
		"agentward_messages_analyzed_total":       c.messagesAnalyzed.Load(),
		"agentward_messages_blocked_total":        c.messagesBlocked.Load(),
		"agentward_facts_validated_total":         c.factsValidated.Load(),
		"agentward_facts_blocked_total":           c.factsBlocked.Load(),
		"agentward_llm_escalations_total":         c.llmEscalations.Load(),
		"agentward_llm_escalation_failures_total": c.llmEscalationFailures.Load(),
		"agentward_exception_hits_total":          c.exceptionHits.Load(),
		"agentward_rule_cache_hits_total":         c.cacheHits.Load(),
		"agentward_rule_cache_misses_total":       c.cacheMisses.Load(),
		"agentward_rule_cache_fallbacks_total":    c.cacheFallbacks.Load(),
		"agentward_buffer_injections_total":       c.bufferInjections.Load(),
	}
}

// Handler serves the counters in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, "# HELP agentward_up Whether the guardrail engine is running.\n")
		fmt.Fprint(w, "# TYPE agentward_up gauge\n")
		fmt.Fprint(w, "agentward_up 1\n")
		fmt.Fprint(w, "# HELP agentward_uptime_seconds Seconds since the collector was created.\n")
		fmt.Fprint(w, "# TYPE agentward_uptime_seconds gauge\n")
		fmt.Fprintf(w, "agentward_uptime_seconds %d\n", int64(time.Since(c.startedAt).Seconds()))

		snap := c.Snapshot()
		names := make([]string, 0, len(snap))
		for name := range snap {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n", name, snap[name])
		}
	})
}
