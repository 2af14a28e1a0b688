// Package shellcheck classifies shell commands before an agent executes
// them: always-blocked patterns, command whitelists, path restrictions,
// and risk-tiered warning patterns with an approval gate.
package shellcheck

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/agentward/agentward/internal/metrics"
	"github.com/agentward/agentward/internal/pattern"
	"github.com/agentward/agentward/internal/rulecache"
	"github.com/agentward/agentward/internal/rulestore"
	"github.com/agentward/agentward/pkg/types"
)

// Checker evaluates shell commands against tenant-resolved rule sets.
type Checker struct {
	cache   *rulecache.Cache
	logger  *slog.Logger
	metrics *metrics.Collector
	limiter *RateLimiter
}

// CheckOptions carries the per-call restrictions an agent runtime applies.
type CheckOptions struct {
	// Scope selects the tenant/agent rule tier. Nil means no scope: the
	// built-in default rule packs are used directly.
	Scope *types.ScopeKey

	// AllowedCommands, when non-empty, is a glob whitelist the command's
	// base name must match.
	AllowedCommands []string

	// AllowedPaths, when non-empty, restricts every path-like token in
	// the command to the given prefixes.
	AllowedPaths []string

	// RequireApprovalForHighRisk gates high/critical findings behind an
	// operator approval instead of silently allowing them.
	RequireApprovalForHighRisk bool

	// IntegrationID and RateLimitPerMinute enforce a sliding-window call
	// ceiling per integration. A zero limit or empty ID disables it.
	IntegrationID      string
	RateLimitPerMinute int

	// SourceIP, when set, must pass the AllowedIPs allowlist (literal IPs
	// or CIDR ranges). An empty allowlist permits any source.
	SourceIP   string
	AllowedIPs []string
}

// New creates a Checker. cache may be nil when only the built-in rule
// packs are wanted.
func New(cache *rulecache.Cache, logger *slog.Logger, collector *metrics.Collector) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{cache: cache, logger: logger, metrics: collector, limiter: NewRateLimiter()}
}

// Check classifies a single command. Evaluation order short-circuits:
// empty command, always-blocked patterns (never approvable), whitelist,
// path restrictions; then all high-risk patterns are unioned into
// warnings and the maximum risk level.
func (c *Checker) Check(ctx context.Context, command string, opts CheckOptions) types.SecurityCheckResult {
	c.metrics.IncCommandChecked()

	if strings.TrimSpace(command) == "" {
		c.metrics.IncCommandBlocked()
		return types.SecurityCheckResult{
			Allowed:       false,
			RiskLevel:     types.RiskLow,
			BlockedReason: "empty command",
		}
	}

	if opts.SourceIP != "" {
		if ok, reason := CheckIPAllowlist(opts.SourceIP, opts.AllowedIPs); !ok {
			c.metrics.IncCommandBlocked()
			return types.SecurityCheckResult{
				Allowed:       false,
				RiskLevel:     types.RiskMedium,
				BlockedReason: reason,
			}
		}
	}

	if opts.IntegrationID != "" && opts.RateLimitPerMinute > 0 {
		if ok, reason := c.limiter.Allow(opts.IntegrationID, opts.RateLimitPerMinute); !ok {
			c.metrics.IncCommandBlocked()
			return types.SecurityCheckResult{
				Allowed:       false,
				RiskLevel:     types.RiskMedium,
				BlockedReason: reason,
			}
		}
	}

	blocked, highRisk := c.resolveRules(ctx, opts.Scope)

	if m := blocked.MatchAny(command); m != nil {
		c.metrics.IncCommandBlocked()
		reason := m.Rule.Description
		if reason == "" {
			reason = "matched blocked pattern"
		}
		// Always-blocked findings can never be approved.
		return types.SecurityCheckResult{
			Allowed:         false,
			RiskLevel:       types.RiskCritical,
			BlockedReason:   fmt.Sprintf("blocked command: %s", reason),
			MatchedPatterns: []string{m.Rule.Pattern},
		}
	}

	if len(opts.AllowedCommands) > 0 {
		base := baseCommand(command)
		if !matchWhitelist(base, opts.AllowedCommands) {
			c.metrics.IncCommandBlocked()
			return types.SecurityCheckResult{
				Allowed:       false,
				RiskLevel:     types.RiskMedium,
				BlockedReason: fmt.Sprintf("command %q not in whitelist", base),
			}
		}
	}

	if len(opts.AllowedPaths) > 0 {
		if bad, ok := checkPaths(command, opts.AllowedPaths); !ok {
			c.metrics.IncCommandBlocked()
			return types.SecurityCheckResult{
				Allowed:       false,
				RiskLevel:     types.RiskMedium,
				BlockedReason: fmt.Sprintf("path %q outside allowed paths", bad),
			}
		}
	}

	result := types.SecurityCheckResult{Allowed: true, RiskLevel: types.RiskLow}
	for _, cr := range highRisk.Rules() {
		if !cr.Pattern.Contains(command) {
			continue
		}
		result.MatchedPatterns = append(result.MatchedPatterns, cr.Rule.Pattern)
		result.RiskLevel = types.MaxRisk(result.RiskLevel, cr.Rule.RiskLevel)
		desc := cr.Rule.Description
		if desc == "" {
			desc = cr.Rule.Pattern
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s (%s risk)", desc, cr.Rule.RiskLevel))
	}

	result.RequiresApproval = opts.RequireApprovalForHighRisk && result.RiskLevel.AtLeast(types.RiskHigh)
	return result
}

// CheckMultiple evaluates commands in order, stopping at the first one
// that is not allowed; otherwise it unions matched patterns and warnings
// and keeps the maximum risk level.
func (c *Checker) CheckMultiple(ctx context.Context, commands []string, opts CheckOptions) (bool, types.SecurityCheckResult) {
	agg := types.SecurityCheckResult{Allowed: true, RiskLevel: types.RiskLow}
	for _, cmd := range commands {
		res := c.Check(ctx, cmd, opts)
		if !res.Allowed {
			return false, res
		}
		agg.RiskLevel = types.MaxRisk(agg.RiskLevel, res.RiskLevel)
		agg.MatchedPatterns = append(agg.MatchedPatterns, res.MatchedPatterns...)
		agg.Warnings = append(agg.Warnings, res.Warnings...)
		agg.RequiresApproval = agg.RequiresApproval || res.RequiresApproval
	}
	return true, agg
}

func (c *Checker) resolveRules(ctx context.Context, scope *types.ScopeKey) (blocked, highRisk *pattern.Set) {
	var blockedRules, highRiskRules []types.PatternRule
	if scope != nil && c.cache != nil {
		blockedRules = c.cache.Resolve(ctx, *scope, types.KindBlocked)
		highRiskRules = c.cache.Resolve(ctx, *scope, types.KindHighRisk)
	} else {
		blockedRules = rulestore.BuiltinRules(types.KindBlocked)
		highRiskRules = rulestore.BuiltinRules(types.KindHighRisk)
	}
	return pattern.NewSet(blockedRules, c.logger), pattern.NewSet(highRiskRules, c.logger)
}

// baseCommand extracts the command's base name: the first token, skipping
// a leading sudo.
func baseCommand(command string) string {
	fields := strings.Fields(command)
	for _, f := range fields {
		if f == "sudo" {
			continue
		}
		return filepath.Base(f)
	}
	return ""
}

func matchWhitelist(base string, allowed []string) bool {
	for _, entry := range allowed {
		g, err := glob.Compile(entry)
		if err != nil {
			if entry == base {
				return true
			}
			continue
		}
		if g.Match(base) {
			return true
		}
	}
	return false
}

// checkPaths extracts path-like tokens (absolute, home-relative, or
// dot-relative) and requires each to sit under one of the allowed
// prefixes. Returns the first offending token.
func checkPaths(command string, allowedPaths []string) (string, bool) {
	for _, tok := range strings.Fields(command) {
		if !isPathToken(tok) {
			continue
		}
		cleaned := filepath.Clean(tok)
		if !pathAllowed(cleaned, allowedPaths) {
			return tok, false
		}
	}
	return "", true
}

func isPathToken(tok string) bool {
	if strings.HasPrefix(tok, "-") || strings.Contains(tok, "://") {
		return false
	}
	return strings.HasPrefix(tok, "/") ||
		strings.HasPrefix(tok, "~") ||
		strings.HasPrefix(tok, "./") ||
		strings.HasPrefix(tok, "../")
}

func pathAllowed(p string, allowed []string) bool {
	for _, a := range allowed {
		a = filepath.Clean(a)
		if p == a || strings.HasPrefix(p, a+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
