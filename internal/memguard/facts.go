package memguard

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentward/agentward/pkg/types"
)

// Fact topics reserved for standing guidance. Facts under these topics
// are held to a stricter bar because they steer future behavior.
var instructionTopics = map[string]bool{
	"instructions": true,
	"instruções":   true,
	"instrucoes":   true,
}

// highConfidenceFact is the threshold above which an existing fact is
// considered established for overwrite-suspicion purposes.
const highConfidenceFact = 0.8

// ValidateFact runs the pre-storage checks on a single extracted fact
// (Layer B). existingFacts is what is currently stored for the same
// agent; only the entry sharing the fact's (topic, key) participates in
// the overwrite check. Like Analyze, it never returns an error.
func (g *Guard) ValidateFact(ctx context.Context, fact types.Fact, existingFacts []types.Fact, scope types.ScopeKey, senderKey string, cfg Config) types.FactValidationResult {
	cfg = cfg.withDefaults()
	g.metrics.IncFactValidated()

	if reason, detection := rejectFact(fact, existingFacts); reason != "" {
		blocked := cfg.DetectionMode == ModeBlock
		if blocked {
			g.metrics.IncFactBlocked()
		}
		g.record(ctx, scope, senderKey, factPreview(fact), "fact_validation", detection, types.GuardResult{
			IsPoisoning: true,
			Score:       1.0,
			Reason:      reason,
			Blocked:     blocked,
		})
		return types.FactValidationResult{Reason: reason, Blocked: blocked}
	}

	return types.FactValidationResult{IsValid: true}
}

// rejectFact returns a non-empty reason and detection type when the fact
// must not be stored. Checks run in order; the first hit wins.
func rejectFact(fact types.Fact, existingFacts []types.Fact) (reason, detection string) {
	if looksLikeCredential(fact.Value) {
		return "fact value is credential-shaped", "credential_fact"
	}

	topic := strings.ToLower(strings.TrimSpace(fact.Topic))
	if instructionTopics[topic] && looksLikeImperative(fact.Value) {
		return "imperative value under instructions topic", "planted_instruction"
	}

	existing := findFact(existingFacts, fact)
	if existing != nil && existing.Confidence >= highConfidenceFact && existing.Value != fact.Value {
		if suspiciousOverwrite(fact, *existing, topic) {
			return fmt.Sprintf("suspicious overwrite of established fact %q/%q", fact.Topic, fact.Key),
				"fact_overwrite"
		}
	}
	return "", ""
}

// findFact returns the stored fact sharing the candidate's (topic, key).
func findFact(existingFacts []types.Fact, fact types.Fact) *types.Fact {
	for i := range existingFacts {
		if strings.EqualFold(existingFacts[i].Topic, fact.Topic) && existingFacts[i].Key == fact.Key {
			return &existingFacts[i]
		}
	}
	return nil
}

// suspiciousOverwrite judges a replacement value for an established
// fact. Legitimate updates (an address change, a renamed project) pass;
// replacements that smuggle in commands or secrets do not, and standing
// guidance cannot be rewritten by a lower-confidence extraction.
func suspiciousOverwrite(fact, existing types.Fact, topic string) bool {
	if looksLikeImperative(fact.Value) || looksLikeCredential(fact.Value) {
		return true
	}
	if instructionTopics[topic] && fact.Confidence < existing.Confidence {
		return true
	}
	return false
}

func factPreview(fact types.Fact) string {
	return fmt.Sprintf("%s/%s=%s", fact.Topic, fact.Key, fact.Value)
}
