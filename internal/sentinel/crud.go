package sentinel

import (
	"context"

	"github.com/agentward/agentward/pkg/types"
)

// Scope ownership for mutations: a caller identified by callerTenant may
// only mutate rules whose TenantID equals its own. System rules (empty
// TenantID) are readable by everyone but mutable only by the
// administrative (system) caller. Unauthorized attempts return false/nil,
// never an error; blocking a mutation is policy, not a fault.

func (m *Matcher) canMutate(callerTenant string, ruleTenant string) bool {
	return m.store != nil && callerTenant == ruleTenant
}

// CreateRule stores a new exception rule for the caller's own scope and
// invalidates the affected cache tier. Returns the stored rule, or nil if
// the caller may not create rules in that scope.
func (m *Matcher) CreateRule(ctx context.Context, callerTenant string, rule types.PatternRule) *types.PatternRule {
	if !m.canMutate(callerTenant, rule.TenantID) {
		m.logger.Warn("rejected exception rule create outside caller scope",
			"caller", callerTenant, "rule_tenant", rule.TenantID)
		return nil
	}
	id, err := m.store.InsertRule(ctx, types.KindException, rule)
	if err != nil {
		m.logger.Warn("exception rule create failed", "error", err)
		return nil
	}
	rule.ID = id
	m.cache.Invalidate(rule.Scope())
	return &rule
}

// UpdateRule rewrites an existing rule the caller owns.
func (m *Matcher) UpdateRule(ctx context.Context, callerTenant string, rule types.PatternRule) bool {
	if m.store == nil {
		return false
	}
	existing, err := m.store.GetRule(ctx, types.KindException, rule.ID)
	if err != nil {
		return false
	}
	if !m.canMutate(callerTenant, existing.TenantID) {
		m.logger.Warn("rejected exception rule update outside caller scope",
			"caller", callerTenant, "rule_tenant", existing.TenantID, "rule_id", rule.ID)
		return false
	}
	// Scope fields are immutable; keep the stored ownership.
	rule.TenantID = existing.TenantID
	rule.AgentID = existing.AgentID
	if err := m.store.UpdateRule(ctx, types.KindException, rule); err != nil {
		m.logger.Warn("exception rule update failed", "rule_id", rule.ID, "error", err)
		return false
	}
	m.cache.Invalidate(existing.Scope())
	return true
}

// DeleteRule removes a rule the caller owns.
func (m *Matcher) DeleteRule(ctx context.Context, callerTenant string, id int64) bool {
	if m.store == nil {
		return false
	}
	existing, err := m.store.GetRule(ctx, types.KindException, id)
	if err != nil {
		return false
	}
	if !m.canMutate(callerTenant, existing.TenantID) {
		m.logger.Warn("rejected exception rule delete outside caller scope",
			"caller", callerTenant, "rule_tenant", existing.TenantID, "rule_id", id)
		return false
	}
	if err := m.store.DeleteRule(ctx, types.KindException, id); err != nil {
		m.logger.Warn("exception rule delete failed", "rule_id", id, "error", err)
		return false
	}
	m.cache.Invalidate(existing.Scope())
	return true
}

// ToggleRule flips a rule's active flag and returns the updated rule, or
// nil when the rule is missing or owned by another scope.
func (m *Matcher) ToggleRule(ctx context.Context, callerTenant string, id int64) *types.PatternRule {
	if m.store == nil {
		return nil
	}
	existing, err := m.store.GetRule(ctx, types.KindException, id)
	if err != nil {
		return nil
	}
	if !m.canMutate(callerTenant, existing.TenantID) {
		m.logger.Warn("rejected exception rule toggle outside caller scope",
			"caller", callerTenant, "rule_tenant", existing.TenantID, "rule_id", id)
		return nil
	}
	existing.IsActive = !existing.IsActive
	if err := m.store.UpdateRule(ctx, types.KindException, *existing); err != nil {
		m.logger.Warn("exception rule toggle failed", "rule_id", id, "error", err)
		return nil
	}
	m.cache.Invalidate(existing.Scope())
	return existing
}
