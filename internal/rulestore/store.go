// Package rulestore provides the authoritative rule storage the guardrail
// engine resolves pattern rules from: embedded built-in defaults, a YAML
// file store for file-based deployments, and a SQLite store for persistent
// multi-tenant rule management.
package rulestore

import (
	"context"
	"errors"

	"github.com/agentward/agentward/pkg/types"
)

// ErrNotFound is returned by mutation operations targeting unknown rules.
var ErrNotFound = errors.New("rule not found")

// Store is the read side the pattern cache resolves rules through.
// FetchRules returns the rules stored for exactly the given scope and
// kind; tier merging and fallback live in the cache, not here.
type Store interface {
	FetchRules(ctx context.Context, scope types.ScopeKey, kind types.RuleKind) ([]types.PatternRule, error)
}

// MutableStore is the administrative write surface. Every mutation must be
// followed by a cache invalidation for the affected scope; the sentinel
// CRUD path does this automatically.
type MutableStore interface {
	Store
	GetRule(ctx context.Context, kind types.RuleKind, id int64) (*types.PatternRule, error)
	InsertRule(ctx context.Context, kind types.RuleKind, rule types.PatternRule) (int64, error)
	UpdateRule(ctx context.Context, kind types.RuleKind, rule types.PatternRule) error
	DeleteRule(ctx context.Context, kind types.RuleKind, id int64) error
}
