package rulestore

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/agentward/agentward/pkg/types"
)

//go:embed builtin/blocked.yaml
var builtinBlockedYAML []byte

//go:embed builtin/highrisk.yaml
var builtinHighRiskYAML []byte

//go:embed builtin/exceptions.yaml
var builtinExceptionsYAML []byte

type rulePack struct {
	Rules []types.PatternRule `yaml:"rules"`
}

var (
	builtinOnce  sync.Once
	builtinPacks map[types.RuleKind][]types.PatternRule
)

// BuiltinRules returns the embedded default rules for a kind. The packs
// guarantee the engine is never left with zero blocked/high-risk rules,
// e.g. on a fresh install with an empty or unreachable rule store.
func BuiltinRules(kind types.RuleKind) []types.PatternRule {
	builtinOnce.Do(func() {
		builtinPacks = map[types.RuleKind][]types.PatternRule{
			types.KindBlocked:   mustParsePack(builtinBlockedYAML, "blocked"),
			types.KindHighRisk:  mustParsePack(builtinHighRiskYAML, "highrisk"),
			types.KindException: mustParsePack(builtinExceptionsYAML, "exceptions"),
		}
	})
	rules := builtinPacks[kind]
	out := make([]types.PatternRule, len(rules))
	copy(out, rules)
	return out
}

// BuiltinStore serves only the embedded packs. It is the Store used when
// no external rule source is configured.
type BuiltinStore struct{}

func (BuiltinStore) FetchRules(_ context.Context, scope types.ScopeKey, kind types.RuleKind) ([]types.PatternRule, error) {
	if !scope.IsSystem() {
		return nil, nil
	}
	return BuiltinRules(kind), nil
}

func mustParsePack(data []byte, name string) []types.PatternRule {
	var pack rulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		// Embedded packs are compiled into the binary; a parse failure is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("rulestore: invalid embedded pack %s: %v", name, err))
	}
	return pack.Rules
}
