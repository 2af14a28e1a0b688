// Package auditlog provides the audit-record collaborator contract and
// its backends. Recording is fire-and-forget from the guard's
// perspective: a failed write never changes a verdict.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"

	"github.com/agentward/agentward/pkg/types"
)

// PreviewLimit caps the content excerpt stored with an audit record.
const PreviewLimit = 256

// Recorder persists audit records for blocked content and commands.
type Recorder interface {
	Record(ctx context.Context, rec types.AuditRecord) error
}

// NopRecorder drops every record.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, types.AuditRecord) error { return nil }

// Preview returns a bounded excerpt of content suitable for storage. The
// cut backs off to a rune boundary so the excerpt stays valid UTF-8.
func Preview(content string) string {
	if len(content) <= PreviewLimit {
		return content
	}
	cut := PreviewLimit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

// Hash returns the hex SHA-256 of the full content, so blocked input can
// be matched later without retaining it verbatim.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
