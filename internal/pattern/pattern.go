// Package pattern provides compiled pattern matching for guardrail rules.
// A rule's match mode selects exact (case-insensitive equality), glob
// (gobwas/glob), or regex (case-insensitive search) semantics.
package pattern

import (
	"fmt"
	"log/slog"
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/gobwas/glob"

	"github.com/agentward/agentward/pkg/types"
)

// DefaultMaxRegexComplexity bounds regex backtracking potential to keep
// rule evaluation safe against ReDoS in tenant-supplied patterns.
const DefaultMaxRegexComplexity = 1000

// Pattern is a compiled guardrail pattern.
type Pattern struct {
	Raw      string
	Mode     types.MatchMode
	compiled any // *regexp.Regexp, glob.Glob, or lowered string
}

// Compile compiles a pattern string under the given match mode.
// Matching is case-insensitive for exact and regex modes; glob patterns
// are lowered at compile time and matched against lowered input.
func Compile(raw string, mode types.MatchMode) (*Pattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	switch mode {
	case types.MatchExact, "":
		return &Pattern{Raw: raw, Mode: types.MatchExact, compiled: strings.ToLower(raw)}, nil

	case types.MatchGlob:
		g, err := glob.Compile(strings.ToLower(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		return &Pattern{Raw: raw, Mode: mode, compiled: g}, nil

	case types.MatchRegex:
		if err := checkRegexComplexity(raw, DefaultMaxRegexComplexity); err != nil {
			return nil, fmt.Errorf("regex complexity check failed: %w", err)
		}
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return &Pattern{Raw: raw, Mode: mode, compiled: re}, nil

	default:
		return nil, fmt.Errorf("unknown match mode %q", mode)
	}
}

// Match reports whether s matches the pattern.
func (p *Pattern) Match(s string) bool {
	switch p.Mode {
	case types.MatchExact:
		return strings.ToLower(s) == p.compiled.(string)
	case types.MatchGlob:
		return p.compiled.(glob.Glob).Match(strings.ToLower(s))
	case types.MatchRegex:
		return p.compiled.(*regexp.Regexp).MatchString(s)
	default:
		return false
	}
}

// Contains reports whether the pattern is found anywhere in s. Exact mode
// degrades to a substring search; glob and regex behave like Match (regex
// already has search semantics, globs anchor by construction).
func (p *Pattern) Contains(s string) bool {
	if p.Mode == types.MatchExact {
		return strings.Contains(strings.ToLower(s), p.compiled.(string))
	}
	return p.Match(s)
}

func (p *Pattern) String() string { return p.Raw }

// Compiled pairs a rule with its compiled pattern.
type Compiled struct {
	Rule    types.PatternRule
	Pattern *Pattern
}

// Set is an immutable, order-preserving collection of compiled rules.
type Set struct {
	rules []Compiled
}

// NewSet compiles the active rules of a resolved rule set, preserving
// order. Rules that fail to compile are skipped with a warning; a bad
// tenant pattern must never take rule evaluation down.
func NewSet(rules []types.PatternRule, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{rules: make([]Compiled, 0, len(rules))}
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		p, err := Compile(r.Pattern, r.MatchMode)
		if err != nil {
			logger.Warn("skipping uncompilable rule pattern",
				"pattern", r.Pattern, "mode", string(r.MatchMode), "error", err)
			continue
		}
		s.rules = append(s.rules, Compiled{Rule: r, Pattern: p})
	}
	return s
}

// MatchAny returns the first rule whose pattern is found in s, or nil.
func (s *Set) MatchAny(in string) *Compiled {
	for i := range s.rules {
		if s.rules[i].Pattern.Contains(in) {
			return &s.rules[i]
		}
	}
	return nil
}

// Rules returns the compiled rules in evaluation order.
func (s *Set) Rules() []Compiled { return s.rules }

// Len returns the number of compiled rules.
func (s *Set) Len() int { return len(s.rules) }

// checkRegexComplexity analyzes a regex for potential ReDoS vulnerabilities
// by scoring its syntax tree for backtracking potential.
func checkRegexComplexity(pattern string, maxComplexity int) error {
	if maxComplexity == 0 {
		maxComplexity = DefaultMaxRegexComplexity
	}
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return fmt.Errorf("failed to parse regex: %w", err)
	}
	complexity := calculateComplexity(re)
	if complexity > maxComplexity {
		return fmt.Errorf("regex complexity %d exceeds maximum %d (potential ReDoS)", complexity, maxComplexity)
	}
	return nil
}

func calculateComplexity(re *syntax.Regexp) int {
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus:
		sub := 0
		for _, s := range re.Sub {
			sub += calculateComplexity(s)
		}
		// Nested quantifiers are especially dangerous.
		if sub > 1 {
			return sub * 100
		}
		return sub + 10

	case syntax.OpQuest:
		sub := 0
		for _, s := range re.Sub {
			sub += calculateComplexity(s)
		}
		return sub + 2

	case syntax.OpRepeat:
		sub := 0
		for _, s := range re.Sub {
			sub += calculateComplexity(s)
		}
		maxRep := re.Max
		if maxRep < 0 {
			maxRep = 100
		}
		return sub * maxRep / 10

	case syntax.OpConcat:
		total := 0
		for _, s := range re.Sub {
			total += calculateComplexity(s)
		}
		return total

	case syntax.OpAlternate:
		total := 0
		for _, s := range re.Sub {
			total += calculateComplexity(s)
		}
		return total * 2

	case syntax.OpCapture:
		total := 0
		for _, s := range re.Sub {
			total += calculateComplexity(s)
		}
		return total + 1

	default:
		return 1
	}
}
