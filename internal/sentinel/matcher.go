// Package sentinel evaluates whitelisted exception rules. A matched
// exception lets callers skip expensive downstream analysis (LLM calls)
// for content that a tenant or operator has explicitly vouched for.
package sentinel

import (
	"context"
	"log/slog"
	"strings"

	"github.com/agentward/agentward/internal/metrics"
	"github.com/agentward/agentward/internal/pattern"
	"github.com/agentward/agentward/internal/rulecache"
	"github.com/agentward/agentward/internal/rulestore"
	"github.com/agentward/agentward/pkg/types"
)

// Matcher checks content against the exception rule hierarchy.
type Matcher struct {
	cache   *rulecache.Cache
	store   rulestore.MutableStore
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a Matcher. store may be nil for read-only deployments; the
// CRUD surface then rejects every mutation.
func New(cache *rulecache.Cache, store rulestore.MutableStore, logger *slog.Logger, collector *metrics.Collector) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{cache: cache, store: store, logger: logger, metrics: collector}
}

// CheckException returns the first exception rule matching the content
// for the given detection type, or nil. Rules resolve through the full
// scope hierarchy (agent, tenant, system, unioned narrowest first, each
// tier ordered by descending priority).
func (m *Matcher) CheckException(ctx context.Context, content, detectionType string, scope types.ScopeKey, toolName, targetDomain string) *types.PatternRule {
	rules := m.cache.Resolve(ctx, scope, types.KindException)

	for _, rule := range rules {
		if !rule.IsActive || !rule.AppliesTo(detectionType) {
			continue
		}
		p, err := pattern.Compile(rule.Pattern, rule.MatchMode)
		if err != nil {
			m.logger.Warn("skipping invalid exception pattern",
				"pattern", rule.Pattern, "mode", string(rule.MatchMode), "error", err)
			continue
		}
		if m.ruleMatches(rule, p, content, toolName, targetDomain) {
			m.metrics.IncExceptionHit()
			matched := rule
			return &matched
		}
	}
	return nil
}

func (m *Matcher) ruleMatches(rule types.PatternRule, p *pattern.Pattern, content, toolName, targetDomain string) bool {
	switch rule.ExceptionKind {
	case types.ExceptionPattern, "":
		return p.Contains(content)

	case types.ExceptionDomain:
		if targetDomain != "" {
			return matchDomain(p, targetDomain)
		}
		for _, d := range ExtractDomains(content) {
			if matchDomain(p, d) {
				return true
			}
		}
		return false

	case types.ExceptionTool:
		return toolName != "" && p.Match(toolName)

	case types.ExceptionNetworkTarget:
		for _, t := range ExtractNetworkTargets(content) {
			if matchDomain(p, t) {
				return true
			}
		}
		return false

	default:
		return false
	}
}

// matchDomain matches a candidate host against a domain pattern. Exact
// patterns are anchored: the candidate must equal the pattern or be a
// subdomain of it, so an entry for evil.com never matches notevil.com.
func matchDomain(p *pattern.Pattern, candidate string) bool {
	candidate = strings.ToLower(strings.TrimSuffix(candidate, "."))
	if p.Mode == types.MatchExact {
		target := strings.ToLower(p.Raw)
		return candidate == target || strings.HasSuffix(candidate, "."+target)
	}
	return p.Match(candidate)
}
