package types

import "time"

// SecurityCheckResult is the verdict of a shell command risk check.
type SecurityCheckResult struct {
	Allowed          bool      `json:"allowed"`
	RiskLevel        RiskLevel `json:"risk_level"`
	RequiresApproval bool      `json:"requires_approval"`
	BlockedReason    string    `json:"blocked_reason,omitempty"`
	MatchedPatterns  []string  `json:"matched_patterns,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// GuardResult is the verdict of a memory-poisoning analysis (Layer A).
// It is produced fresh per call and never stored by the engine.
type GuardResult struct {
	IsPoisoning    bool    `json:"is_poisoning"`
	Score          float64 `json:"score"`
	Reason         string  `json:"reason,omitempty"`
	Blocked        bool    `json:"blocked"`
	EscalatedToLLM bool    `json:"escalated_to_llm"`
}

// FactValidationResult is the verdict of a fact validation (Layer B).
type FactValidationResult struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
	Blocked bool   `json:"blocked"`
}

// Fact is a structured long-term memory entry awaiting durable write.
type Fact struct {
	Topic      string  `json:"topic"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// AuditRecord is what the engine hands to the audit-log collaborator when
// a block decision is made. Recording is fire-and-forget: a failed write
// never changes the returned verdict.
type AuditRecord struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id,omitempty"`
	AgentID       int64     `json:"agent_id,omitempty"`
	AnalysisType  string    `json:"analysis_type"`
	DetectionType string    `json:"detection_type,omitempty"`
	InputPreview  string    `json:"input_preview,omitempty"`
	InputHash     string    `json:"input_hash,omitempty"`
	IsThreat      bool      `json:"is_threat"`
	Score         float64   `json:"score"`
	Reason        string    `json:"reason,omitempty"`
	Action        string    `json:"action"`
	SenderKey     string    `json:"sender_key,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
