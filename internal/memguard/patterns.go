package memguard

import "regexp"

// Detection confidence bands. Scores at or above HighConfidence decide
// locally; scores in [LowConfidence, HighConfidence) escalate to the LLM
// classifier; anything below LowConfidence is allowed outright.
const (
	HighConfidence = 0.70
	LowConfidence  = 0.30
)

// Category is a weighted set of poisoning patterns. The single
// highest-weight matching category determines the raw score.
type Category struct {
	Name     string
	Weight   float64
	patterns []*regexp.Regexp
}

// Match reports whether any pattern in the category matches the content.
func (c Category) Match(content string) bool {
	for _, re := range c.patterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func mustCategory(name string, weight float64, exprs ...string) Category {
	c := Category{Name: name, Weight: weight}
	for _, e := range exprs {
		c.patterns = append(c.patterns, regexp.MustCompile(e))
	}
	return c
}

// builtinCategories returns the four fixed bilingual (English/Portuguese)
// pattern categories used by the Layer A pre-storage screen.
func builtinCategories() []Category {
	return []Category{
		mustCategory("credential_injection", 0.90,
			`(?i)(api[_ -]?key|secret|token|password|senha|credencial)\s*[:=]\s*\S{8,}`,
			`\b(sk-|ghp_|gho_|github_pat_|xox[bap]-|AKIA|AIza)[A-Za-z0-9_\-]{10,}`,
			`(?i)(my|the|use this) (password|api[ -]?key|token|secret) is\b`,
			// \b is ASCII-only in Go regexps and never fires after an
			// accented rune, so the Portuguese patterns end on \s instead.
			`(?i)(minha|a) senha (é|e)\s`,
			`(?i)(use|guarde|salve) (esta|essa) (senha|chave|token)`,
		),
		mustCategory("identity_override", 0.75,
			`(?i)\byou are (now|no longer|actually)\b`,
			`(?i)\b(act|behave|pretend) as (if you (are|were)|a different)`,
			`(?i)\byour (new )?(name|identity|role) is\b`,
			`(?i)(você|voce) agora (é|e)\s`,
			`(?i)(finja|aja|comporte-se) como (se|um|uma)\b`,
			`(?i)\bseu (novo )?(nome|papel) (é|e)\s`,
		),
		mustCategory("instruction_planting", 0.70,
			`(?i)\b(from now on|starting now|for all future (replies|responses|messages))\b`,
			`(?i)\b(ignore|disregard|forget) (all |any )?(previous|prior|earlier) (instructions|rules|prompts)`,
			`(?i)\bremember (this|that) (for|in) (all|every|future)\b`,
			`(?i)(a partir de agora|de agora em diante)\b`,
			`(?i)(ignore|esqueça|esqueca) (todas? )?(as )?(instruções|instrucoes|regras) (anteriores|prévias|previas)`,
			`(?i)lembre(-se)? disso (para sempre|em todas)`,
		),
		mustCategory("persistent_override", 0.70,
			`(?i)\b(always|never) (respond|reply|answer|say|do|act)\b`,
			`(?i)\b(don'?t|do not|never) (verify|check|mention|tell|reveal|confirm)\b`,
			`(?i)\b(whenever|every time) .{0,40}\b(say|respond|reply|answer)\b`,
			`(?i)\b(sempre|nunca) (responda|diga|fale|faça|faca|aja)\b`,
			`(?i)\b(não|nao) (verifique|confirme|mencione|conte|revele)\b`,
			`(?i)\b(sempre que|toda vez que) .{0,40}(diga|responda|fale)\b`,
		),
	}
}

// Credential-shaped value patterns for Layer B fact validation.
var (
	credentialAssignRe = regexp.MustCompile(`(?i)(api[_ -]?key|secret|token|password|passwd|senha|chave|credencial)\s*[:=]\s*\S+`)
	credentialPrefixRe = regexp.MustCompile(`\b(sk-|ghp_|gho_|github_pat_|xox[bap]-|AKIA|AIza|eyJ)[A-Za-z0-9_\-.]{8,}`)
	bearerRe           = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.]{12,}`)
	opaqueTokenRe      = regexp.MustCompile(`^[A-Za-z0-9+/=_\-]{20,}$`)
	digitRe            = regexp.MustCompile(`[0-9]`)
	letterRe           = regexp.MustCompile(`[A-Za-z]`)
)

// looksLikeCredential reports whether a fact value is credential-shaped:
// explicit key=value credential syntax, a recognized key-prefix
// convention, a bearer token, or a long opaque token mixing letters and
// digits.
func looksLikeCredential(value string) bool {
	if credentialAssignRe.MatchString(value) ||
		credentialPrefixRe.MatchString(value) ||
		bearerRe.MatchString(value) {
		return true
	}
	return opaqueTokenRe.MatchString(value) &&
		digitRe.MatchString(value) &&
		letterRe.MatchString(value)
}

// Command-imperative patterns for the reserved "instructions" topic.
var imperativeRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(always|never)\b`),
	regexp.MustCompile(`(?i)\b(don'?t|do not|never) (verify|check|mention|tell|reveal|confirm)\b`),
	regexp.MustCompile(`(?i)\bwhen .{0,60}\b(say|reply|respond|answer)\b`),
	regexp.MustCompile(`(?i)^\s*(sempre|nunca)\b`),
	regexp.MustCompile(`(?i)\b(não|nao) (verifique|confirme|mencione|conte|revele)\b`),
	regexp.MustCompile(`(?i)\bquando .{0,60}\b(diga|responda|fale)\b`),
}

// looksLikeImperative reports whether a value reads as a planted command.
func looksLikeImperative(value string) bool {
	for _, re := range imperativeRes {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
