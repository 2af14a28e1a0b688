// Package types defines the value types shared between the guardrail
// engine's components and its embedders.
package types

import (
	"fmt"
	"strings"
)

// ScopeKey identifies the resolution scope for a rule set.
// A zero TenantID denotes system-wide defaults; a zero AgentID denotes
// tenant-wide (not agent-specific) rules.
type ScopeKey struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	AgentID  int64  `json:"agent_id" yaml:"agent_id"`
}

// SystemScope returns the scope that holds system-wide default rules.
func SystemScope() ScopeKey { return ScopeKey{} }

// IsSystem reports whether the scope refers to system-wide defaults.
func (k ScopeKey) IsSystem() bool { return k.TenantID == "" }

// TenantScope strips the agent dimension, yielding the tenant-wide scope.
func (k ScopeKey) TenantScope() ScopeKey { return ScopeKey{TenantID: k.TenantID} }

func (k ScopeKey) String() string {
	if k.IsSystem() {
		return "system"
	}
	if k.AgentID == 0 {
		return k.TenantID
	}
	return fmt.Sprintf("%s/%d", k.TenantID, k.AgentID)
}

// RuleKind selects which rule family a store lookup or cache entry covers.
type RuleKind string

const (
	KindBlocked   RuleKind = "blocked"
	KindHighRisk  RuleKind = "high_risk"
	KindException RuleKind = "exception"
)

// MatchMode selects how a rule pattern is matched against content.
type MatchMode string

const (
	MatchExact MatchMode = "exact"
	MatchGlob  MatchMode = "glob"
	MatchRegex MatchMode = "regex"
)

// ExceptionKind selects what part of the input an exception rule inspects.
type ExceptionKind string

const (
	ExceptionPattern       ExceptionKind = "pattern"
	ExceptionDomain        ExceptionKind = "domain"
	ExceptionTool          ExceptionKind = "tool"
	ExceptionNetworkTarget ExceptionKind = "network_target"
)

// RiskLevel is the tier attached to a matched pattern.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Rank returns the ordering of a risk level; unknown levels rank as low.
func (r RiskLevel) Rank() int { return riskOrder[r] }

// MaxRisk returns the higher of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	if a == "" {
		return RiskLow
	}
	return a
}

// AtLeast reports whether r is at or above the given level.
func (r RiskLevel) AtLeast(min RiskLevel) bool { return r.Rank() >= min.Rank() }

// PatternRule is one entry of a resolved rule set. The same shape serves
// the shell classifier (RiskLevel) and the exception matcher
// (DetectionTypes, ExceptionKind); unused fields stay zero.
type PatternRule struct {
	ID          int64     `json:"id" yaml:"id"`
	Pattern     string    `json:"pattern" yaml:"pattern"`
	MatchMode   MatchMode `json:"match_mode" yaml:"match_mode"`
	RiskLevel   RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`

	// DetectionTypes is "*" or a comma-delimited list of detection types
	// the rule applies to (exception rules only).
	DetectionTypes string        `json:"detection_types,omitempty" yaml:"detection_types,omitempty"`
	ExceptionKind  ExceptionKind `json:"exception_kind,omitempty" yaml:"exception_kind,omitempty"`

	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	AgentID  int64  `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Priority int    `json:"priority" yaml:"priority"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}

// Scope returns the scope the rule belongs to.
func (r PatternRule) Scope() ScopeKey {
	return ScopeKey{TenantID: r.TenantID, AgentID: r.AgentID}
}

// AppliesTo reports whether the rule covers the given detection type.
func (r PatternRule) AppliesTo(detectionType string) bool {
	if r.DetectionTypes == "" || r.DetectionTypes == "*" {
		return r.DetectionTypes == "*"
	}
	for _, t := range strings.Split(r.DetectionTypes, ",") {
		t = strings.TrimSpace(t)
		if t == "*" || t == detectionType {
			return true
		}
	}
	return false
}
