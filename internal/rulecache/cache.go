// Package rulecache resolves and caches merged guardrail rule sets per
// scope. Resolution unions the scope's own rules with every broader tier
// (agent -> tenant -> system), scoped entries first; it never fails and
// never returns an empty set for kinds that carry built-in defaults.
package rulecache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentward/agentward/internal/metrics"
	"github.com/agentward/agentward/internal/rulestore"
	"github.com/agentward/agentward/pkg/types"
)

// DefaultTTL is how long a resolved rule set is served before the
// authoritative store is consulted again.
const DefaultTTL = 5 * time.Minute

type cacheKey struct {
	tenant string
	agent  int64
	kind   types.RuleKind
}

type entry struct {
	rules     []types.PatternRule
	expiresAt time.Time
}

// Cache is a TTL-backed rule set cache. It is safe for concurrent use.
type Cache struct {
	store   rulestore.Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	entries map[cacheKey]*entry
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default 5 minute entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over the given rule store. A nil store is allowed;
// resolution then always serves built-in defaults.
func New(store rulestore.Store, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:   store,
		ttl:     DefaultTTL,
		logger:  logger,
		entries: make(map[cacheKey]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the merged, priority-ordered rule set for a scope and
// kind. It never returns an error: on backing-store failure it serves the
// last good rules if any, else the built-in defaults. Rule resolution must
// never block command or message processing on a broken store.
func (c *Cache) Resolve(ctx context.Context, scope types.ScopeKey, kind types.RuleKind) []types.PatternRule {
	key := cacheKey{tenant: scope.TenantID, agent: scope.AgentID, kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
		c.metrics.IncCacheHit()
		return copyRules(e.rules)
	}
	c.metrics.IncCacheMiss()

	merged, degraded := c.load(ctx, scope, kind)
	if degraded {
		c.metrics.IncCacheFallback()
		if e, ok := c.entries[key]; ok {
			// Serve the last good rules past their expiry rather than an
			// incomplete set; the next call retries the store.
			return copyRules(e.rules)
		}
		// Nothing good cached. Serve the partial merge but do not cache
		// it for the full TTL; the next call retries the store.
		return copyRules(merged)
	}

	c.entries[key] = &entry{rules: merged, expiresAt: c.now().Add(c.ttl)}
	return copyRules(merged)
}

// load fetches every tier of the scope hierarchy and unions them,
// narrowest tier first, each tier ordered by descending priority. An
// empty or failed system tier is replaced by the built-in defaults, so
// a tenant override never silently strips the baseline protections.
// degraded is true when any tier fetch failed.
func (c *Cache) load(ctx context.Context, scope types.ScopeKey, kind types.RuleKind) (rules []types.PatternRule, degraded bool) {
	tiers := []types.ScopeKey{}
	if !scope.IsSystem() && scope.AgentID != 0 {
		tiers = append(tiers, scope)
	}
	if !scope.IsSystem() {
		tiers = append(tiers, scope.TenantScope())
	}
	tiers = append(tiers, types.SystemScope())

	seen := make(map[string]struct{})
	for _, tier := range tiers {
		var fetched []types.PatternRule
		if c.store != nil {
			var err error
			fetched, err = c.store.FetchRules(ctx, tier, kind)
			if err != nil {
				c.logger.Warn("rule store fetch failed",
					"scope", tier.String(), "kind", string(kind), "error", err)
				degraded = true
				fetched = nil
			}
		}
		if tier.IsSystem() && len(fetched) == 0 {
			fetched = rulestore.BuiltinRules(kind)
		}
		sort.SliceStable(fetched, func(i, j int) bool {
			return fetched[i].Priority > fetched[j].Priority
		})
		for _, r := range fetched {
			dk := string(r.MatchMode) + "\x00" + r.Pattern
			if _, dup := seen[dk]; dup {
				continue
			}
			seen[dk] = struct{}{}
			rules = append(rules, r)
		}
	}
	return rules, degraded
}

// Invalidate drops cached entries for a scope. Mutating a tenant's rules
// also drops its agent-scoped entries, since those inherited the tenant
// tier; invalidating the system scope clears everything.
func (c *Cache) Invalidate(scope types.ScopeKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scope.IsSystem() {
		c.entries = make(map[cacheKey]*entry)
		return
	}
	for key := range c.entries {
		if key.tenant == scope.TenantID {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll clears the whole cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*entry)
}

// Len reports the number of live cache entries (tests, debugging).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func copyRules(in []types.PatternRule) []types.PatternRule {
	out := make([]types.PatternRule, len(in))
	copy(out, in)
	return out
}
