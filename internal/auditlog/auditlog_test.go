package auditlog

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/agentward/agentward/pkg/types"
)

func TestPreview(t *testing.T) {
	short := "a short message"
	assert.Equal(t, short, Preview(short))

	long := strings.Repeat("x", PreviewLimit*2)
	assert.Len(t, Preview(long), PreviewLimit)
}

func TestPreviewKeepsValidUTF8(t *testing.T) {
	// Place a multibyte rune across the byte cap; the excerpt must not
	// end in a split rune.
	long := strings.Repeat("x", PreviewLimit-1) + strings.Repeat("é", 10)
	p := Preview(long)
	assert.True(t, utf8.ValidString(p))
	assert.LessOrEqual(t, len(p), PreviewLimit)
}

func TestHash(t *testing.T) {
	a := Hash("the same content")
	b := Hash("the same content")
	c := Hash("different content")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64, "hex sha256")
}

func TestNopRecorder(t *testing.T) {
	assert.NoError(t, NopRecorder{}.Record(context.Background(), types.AuditRecord{Action: "blocked"}))
}
