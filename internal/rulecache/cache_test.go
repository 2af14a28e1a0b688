package rulecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentward/agentward/internal/rulestore"
	"github.com/agentward/agentward/pkg/types"
)

// fakeStore serves canned rules per scope and can be flipped into a
// failing state.
type fakeStore struct {
	mu      sync.Mutex
	rules   map[types.ScopeKey][]types.PatternRule
	failing bool
	fetches int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rules: make(map[types.ScopeKey][]types.PatternRule)}
}

func (s *fakeStore) set(scope types.ScopeKey, rules ...types.PatternRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[scope] = rules
}

func (s *fakeStore) fail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *fakeStore) FetchRules(_ context.Context, scope types.ScopeKey, _ types.RuleKind) ([]types.PatternRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.failing {
		return nil, errors.New("store down")
	}
	out := make([]types.PatternRule, len(s.rules[scope]))
	copy(out, s.rules[scope])
	return out, nil
}

func rule(pattern, tenant string, agent int64, priority int) types.PatternRule {
	return types.PatternRule{
		Pattern:   pattern,
		MatchMode: types.MatchExact,
		TenantID:  tenant,
		AgentID:   agent,
		Priority:  priority,
		IsActive:  true,
	}
}

func TestResolveMergesTiersNarrowestFirst(t *testing.T) {
	store := newFakeStore()
	store.set(types.ScopeKey{TenantID: "acme", AgentID: 7}, rule("agent-rule", "acme", 7, 1))
	store.set(types.ScopeKey{TenantID: "acme"}, rule("tenant-rule", "acme", 0, 99))
	store.set(types.SystemScope(), rule("system-rule", "", 0, 50))

	c := New(store, nil)
	rules := c.Resolve(context.Background(), types.ScopeKey{TenantID: "acme", AgentID: 7}, types.KindException)

	require.Len(t, rules, 3)
	// Scoped entries come first even when a broader tier has higher priority.
	assert.Equal(t, "agent-rule", rules[0].Pattern)
	assert.Equal(t, "tenant-rule", rules[1].Pattern)
	assert.Equal(t, "system-rule", rules[2].Pattern)
}

func TestResolveOrdersWithinTierByPriority(t *testing.T) {
	store := newFakeStore()
	store.set(types.ScopeKey{TenantID: "acme"},
		rule("low", "acme", 0, 1),
		rule("high", "acme", 0, 9),
		rule("mid", "acme", 0, 5),
	)

	c := New(store, nil)
	rules := c.Resolve(context.Background(), types.ScopeKey{TenantID: "acme"}, types.KindException)

	// The empty system tier contributes the builtin pack after the tenant
	// tier; the tenant's own rules still lead, ordered by priority.
	require.GreaterOrEqual(t, len(rules), 3)
	assert.Equal(t, "high", rules[0].Pattern)
	assert.Equal(t, "mid", rules[1].Pattern)
	assert.Equal(t, "low", rules[2].Pattern)
}

func TestResolveDeduplicatesAcrossTiers(t *testing.T) {
	store := newFakeStore()
	store.set(types.ScopeKey{TenantID: "acme"}, rule("shared", "acme", 0, 9))
	store.set(types.SystemScope(), rule("shared", "", 0, 1), rule("system-only", "", 0, 1))

	c := New(store, nil)
	rules := c.Resolve(context.Background(), types.ScopeKey{TenantID: "acme"}, types.KindException)

	require.Len(t, rules, 2)
	// The narrower tier's copy wins.
	assert.Equal(t, "acme", rules[0].TenantID)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	store := newFakeStore()
	store.set(types.SystemScope(), rule("r", "", 0, 1))

	now := time.Now()
	c := New(store, nil, WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	scope := types.ScopeKey{TenantID: "acme"}
	c.Resolve(context.Background(), scope, types.KindException)
	fetchesAfterFirst := store.fetches
	c.Resolve(context.Background(), scope, types.KindException)
	assert.Equal(t, fetchesAfterFirst, store.fetches, "second resolve must be served from cache")

	now = now.Add(2 * time.Minute)
	c.Resolve(context.Background(), scope, types.KindException)
	assert.Greater(t, store.fetches, fetchesAfterFirst, "expired entry must hit the store again")
}

func TestResolveServesStaleOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.set(types.SystemScope(), rule("good", "", 0, 1))

	now := time.Now()
	c := New(store, nil, WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	scope := types.ScopeKey{TenantID: "acme"}
	first := c.Resolve(context.Background(), scope, types.KindException)
	require.Len(t, first, 1)

	store.fail(true)
	now = now.Add(2 * time.Minute)

	stale := c.Resolve(context.Background(), scope, types.KindException)
	require.Len(t, stale, 1)
	assert.Equal(t, "good", stale[0].Pattern)

	// Recovery is picked up on the next call because the stale serve did
	// not re-cache.
	store.fail(false)
	store.set(types.SystemScope(), rule("fresh", "", 0, 1))
	recovered := c.Resolve(context.Background(), scope, types.KindException)
	require.Len(t, recovered, 1)
	assert.Equal(t, "fresh", recovered[0].Pattern)
}

func TestResolveFallsBackToBuiltinsWhenStoreFailsCold(t *testing.T) {
	store := newFakeStore()
	store.fail(true)
	c := New(store, nil)

	rules := c.Resolve(context.Background(), types.ScopeKey{TenantID: "acme"}, types.KindBlocked)
	assert.NotEmpty(t, rules, "first resolve must never return an empty blocked set")
}

func TestResolveFallsBackToBuiltinsWhenStoreEmpty(t *testing.T) {
	c := New(newFakeStore(), nil)
	rules := c.Resolve(context.Background(), types.SystemScope(), types.KindHighRisk)
	assert.Equal(t, rulestore.BuiltinRules(types.KindHighRisk), rules)
}

func TestResolveEmptySystemTierStillCarriesBuiltins(t *testing.T) {
	// A tenant with its own rules over an empty system tier must still
	// resolve to the builtin baseline, not just the tenant override.
	store := newFakeStore()
	store.set(types.ScopeKey{TenantID: "acme"}, rule("tenant-only", "acme", 0, 1))

	c := New(store, nil)
	rules := c.Resolve(context.Background(), types.ScopeKey{TenantID: "acme"}, types.KindBlocked)

	require.Greater(t, len(rules), 1)
	assert.Equal(t, "tenant-only", rules[0].Pattern)

	builtins := rulestore.BuiltinRules(types.KindBlocked)
	require.NotEmpty(t, builtins)
	patterns := make(map[string]bool, len(rules))
	for _, r := range rules {
		patterns[r.Pattern] = true
	}
	for _, b := range builtins {
		assert.True(t, patterns[b.Pattern], "builtin %q must survive the merge", b.Pattern)
	}
}

func TestResolveDegradedResultIsNotCached(t *testing.T) {
	store := newFakeStore()
	store.fail(true)
	c := New(store, nil)
	scope := types.ScopeKey{TenantID: "acme"}

	first := c.Resolve(context.Background(), scope, types.KindBlocked)
	assert.NotEmpty(t, first)
	fetchesAfterFirst := store.fetches

	second := c.Resolve(context.Background(), scope, types.KindBlocked)
	assert.NotEmpty(t, second)
	assert.Greater(t, store.fetches, fetchesAfterFirst,
		"a degraded merge must not be cached for the full TTL")

	// Once the store recovers, its rules are picked up immediately.
	store.fail(false)
	store.set(types.SystemScope(), rule("recovered", "", 0, 1))
	recovered := c.Resolve(context.Background(), scope, types.KindBlocked)
	require.NotEmpty(t, recovered)
	assert.Equal(t, "recovered", recovered[0].Pattern)
}

func TestInvalidateTenantDropsAgentEntries(t *testing.T) {
	store := newFakeStore()
	store.set(types.SystemScope(), rule("r", "", 0, 1))
	c := New(store, nil)
	ctx := context.Background()

	c.Resolve(ctx, types.ScopeKey{TenantID: "acme"}, types.KindException)
	c.Resolve(ctx, types.ScopeKey{TenantID: "acme", AgentID: 7}, types.KindException)
	c.Resolve(ctx, types.ScopeKey{TenantID: "globex"}, types.KindException)
	require.Equal(t, 3, c.Len())

	c.Invalidate(types.ScopeKey{TenantID: "acme", AgentID: 7})
	assert.Equal(t, 1, c.Len(), "all acme entries should drop, globex should stay")
}

func TestInvalidateSystemClearsEverything(t *testing.T) {
	store := newFakeStore()
	store.set(types.SystemScope(), rule("r", "", 0, 1))
	c := New(store, nil)
	ctx := context.Background()

	c.Resolve(ctx, types.ScopeKey{TenantID: "acme"}, types.KindException)
	c.Resolve(ctx, types.ScopeKey{TenantID: "globex"}, types.KindException)

	c.Invalidate(types.SystemScope())
	assert.Zero(t, c.Len())
}

func TestResolveReturnsCopies(t *testing.T) {
	store := newFakeStore()
	store.set(types.SystemScope(), rule("r", "", 0, 1))
	c := New(store, nil)

	first := c.Resolve(context.Background(), types.SystemScope(), types.KindException)
	first[0].Pattern = "mutated"

	second := c.Resolve(context.Background(), types.SystemScope(), types.KindException)
	assert.Equal(t, "r", second[0].Pattern)
}
