package toolbuffer

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	agentID   = int64(1)
	senderKey = "slack:U123"
)

func TestAddAndGetByID(t *testing.T) {
	b := New(nil, nil)

	id := b.AddToolOutput(agentID, senderKey, "nmap", "scan", "22/tcp open ssh", "10.0.0.5")
	assert.Equal(t, int64(1), id)

	exec, ok := b.GetExecutionByID(agentID, senderKey, id)
	require.True(t, ok)
	assert.Equal(t, "nmap", exec.ToolName)
	assert.Equal(t, "scan", exec.CommandName)
	assert.Equal(t, "10.0.0.5", exec.Target)
	assert.Equal(t, "22/tcp open ssh", exec.Output)
	assert.False(t, exec.Truncated)

	_, ok = b.GetExecutionByID(agentID, senderKey, 99)
	assert.False(t, ok)
}

func TestIDsAreMonotonicPerConversation(t *testing.T) {
	b := New(nil, nil)

	assert.Equal(t, int64(1), b.AddToolOutput(agentID, senderKey, "a", "", "x", ""))
	assert.Equal(t, int64(2), b.AddToolOutput(agentID, senderKey, "b", "", "y", ""))

	// Another conversation starts from 1 again.
	assert.Equal(t, int64(1), b.AddToolOutput(agentID, "slack:U999", "a", "", "x", ""))
	assert.Equal(t, int64(1), b.AddToolOutput(2, senderKey, "a", "", "x", ""))
}

func TestFIFOEvictionAtCapacity(t *testing.T) {
	b := New(nil, nil)

	for i := 1; i <= MaxExecutions+1; i++ {
		b.AddToolOutput(agentID, senderKey, fmt.Sprintf("tool-%d", i), "", "out", "")
	}

	_, ok := b.GetExecutionByID(agentID, senderKey, 1)
	assert.False(t, ok, "the 11th store evicts the oldest execution")

	exec, ok := b.GetExecutionByID(agentID, senderKey, 2)
	require.True(t, ok)
	assert.Equal(t, "tool-2", exec.ToolName)

	assert.Len(t, b.ListAvailableExecutions(agentID, senderKey), MaxExecutions)
}

func TestOutputTruncation(t *testing.T) {
	b := New(nil, nil)

	long := strings.Repeat("x", MaxOutputChars+500) + "\ntail"
	id := b.AddToolOutput(agentID, senderKey, "cat", "", long, "")

	exec, ok := b.GetExecutionByID(agentID, senderKey, id)
	require.True(t, ok)
	assert.True(t, exec.Truncated)
	assert.True(t, strings.HasSuffix(exec.Output, truncationMarker))
	assert.Len(t, exec.Output, MaxOutputChars+len(truncationMarker))

	// The pre-truncation shape is preserved for digests.
	assert.Equal(t, len(long), exec.FullChars)
	assert.Equal(t, 2, exec.FullLines)
}

func TestOutputTruncationKeepsValidUTF8(t *testing.T) {
	b := New(nil, nil)

	// Fill so the byte cap lands inside a multibyte rune.
	long := strings.Repeat("x", MaxOutputChars-1) + strings.Repeat("é", 20)
	id := b.AddToolOutput(agentID, senderKey, "cat", "", long, "")

	exec, ok := b.GetExecutionByID(agentID, senderKey, id)
	require.True(t, ok)
	assert.True(t, exec.Truncated)
	assert.True(t, utf8.ValidString(exec.Output))
	assert.LessOrEqual(t, len(exec.Output), MaxOutputChars+len(truncationMarker))
}

func TestExecutionCarriesMessageIndex(t *testing.T) {
	b := New(nil, nil)

	first := b.AddToolOutput(agentID, senderKey, "nmap", "", "a", "")
	b.IncrementMessageCount(agentID, senderKey)
	b.IncrementMessageCount(agentID, senderKey)
	second := b.AddToolOutput(agentID, senderKey, "curl", "", "b", "")

	e1, ok := b.GetExecutionByID(agentID, senderKey, first)
	require.True(t, ok)
	assert.Equal(t, 0, e1.MessageIndex)

	e2, ok := b.GetExecutionByID(agentID, senderKey, second)
	require.True(t, ok)
	assert.Equal(t, 2, e2.MessageIndex)
}

func TestGetLatestExecutionToolFilter(t *testing.T) {
	b := New(nil, nil)
	b.AddToolOutput(agentID, senderKey, "nmap", "", "scan output", "")
	b.AddToolOutput(agentID, senderKey, "curl", "", "fetch output", "")

	exec, ok := b.GetLatestExecution(agentID, senderKey, "")
	require.True(t, ok)
	assert.Equal(t, "curl", exec.ToolName)

	exec, ok = b.GetLatestExecution(agentID, senderKey, "nmap")
	require.True(t, ok)
	assert.Equal(t, "scan output", exec.Output)

	_, ok = b.GetLatestExecution(agentID, senderKey, "dig")
	assert.False(t, ok)
}

func TestExpirationAfterQuietMessages(t *testing.T) {
	b := New(nil, nil)
	b.AddToolOutput(agentID, senderKey, "nmap", "", "scan output", "")

	for i := 0; i < ExpirationMessages; i++ {
		b.IncrementMessageCount(agentID, senderKey)
	}
	_, ok := b.GetLatestExecution(agentID, senderKey, "")
	assert.True(t, ok, "buffer survives up to the threshold")

	// GetLatestExecution counted as a reference and reset the counter.
	for i := 0; i < ExpirationMessages+1; i++ {
		b.IncrementMessageCount(agentID, senderKey)
	}
	_, ok = b.GetLatestExecution(agentID, senderKey, "")
	assert.False(t, ok, "buffer expires after enough quiet messages")
}

func TestReferenceResetsExpirationCounter(t *testing.T) {
	b := New(nil, nil)
	id := b.AddToolOutput(agentID, senderKey, "nmap", "", "scan output", "")

	for i := 0; i < ExpirationMessages; i++ {
		b.IncrementMessageCount(agentID, senderKey)
	}
	_, ok := b.GetExecutionByID(agentID, senderKey, id)
	require.True(t, ok)

	for i := 0; i < ExpirationMessages; i++ {
		b.IncrementMessageCount(agentID, senderKey)
	}
	_, ok = b.GetExecutionByID(agentID, senderKey, id)
	assert.True(t, ok, "the reference reset the quiet-message counter")
}

func TestIDCounterSurvivesExpiration(t *testing.T) {
	b := New(nil, nil)
	b.AddToolOutput(agentID, senderKey, "a", "", "x", "")
	b.AddToolOutput(agentID, senderKey, "b", "", "y", "")

	for i := 0; i < ExpirationMessages+1; i++ {
		b.IncrementMessageCount(agentID, senderKey)
	}
	assert.Empty(t, b.ListAvailableExecutions(agentID, senderKey))

	id := b.AddToolOutput(agentID, senderKey, "c", "", "z", "")
	assert.Equal(t, int64(3), id, "IDs stay unambiguous across expiration")
}

func TestGetContextForInjectionByExplicitID(t *testing.T) {
	b := New(nil, nil)
	b.AddToolOutput(agentID, senderKey, "nmap", "scan", "scan result A", "10.0.0.5")
	b.AddToolOutput(agentID, senderKey, "curl", "", "fetch result B", "")

	ctx, ok := b.GetContextForInjection(agentID, senderKey, "what did the scan find? #1")
	require.True(t, ok)
	assert.Contains(t, ctx, "scan result A")
	assert.Contains(t, ctx, "#1")
	assert.Contains(t, ctx, "10.0.0.5")
}

func TestGetContextForInjectionLatest(t *testing.T) {
	b := New(nil, nil)
	b.AddToolOutput(agentID, senderKey, "dirb", "", "old output", "")
	b.AddToolOutput(agentID, senderKey, "feroxbuster", "", "new output", "")

	ctx, ok := b.GetContextForInjection(agentID, senderKey, "show me the output please")
	require.True(t, ok)
	assert.Contains(t, ctx, "new output")
}

func TestGetContextForInjectionNamedTool(t *testing.T) {
	b := New(nil, nil)
	b.AddToolOutput(agentID, senderKey, "nmap", "", "scan output", "")
	b.AddToolOutput(agentID, senderKey, "curl", "", "fetch output", "")

	ctx, ok := b.GetContextForInjection(agentID, senderKey, "what did nmap find?")
	require.True(t, ok)
	assert.Contains(t, ctx, "scan output")
	assert.NotContains(t, ctx, "fetch output")

	// A named tool that is not buffered falls back to the digest.
	ctx, ok = b.GetContextForInjection(agentID, senderKey, "what did dig find?")
	require.True(t, ok)
	assert.Contains(t, ctx, "buffered tool outputs")
}

func TestGetContextForInjectionNoIntentYieldsDigest(t *testing.T) {
	b := New(nil, nil)
	b.AddToolOutput(agentID, senderKey, "nmap", "", "scan output", "")

	ctx, ok := b.GetContextForInjection(agentID, senderKey, "how is the weather today")
	require.True(t, ok)
	assert.Contains(t, ctx, "buffered tool outputs")
	assert.Contains(t, ctx, "#1 nmap")
	assert.NotContains(t, ctx, "scan output", "the digest must stay lightweight")
}

func TestGetContextForInjectionEvictedIDYieldsDigest(t *testing.T) {
	b := New(nil, nil)
	for i := 1; i <= MaxExecutions+1; i++ {
		b.AddToolOutput(agentID, senderKey, "tool", "", "out", "")
	}

	ctx, ok := b.GetContextForInjection(agentID, senderKey, "show me the output of #1")
	require.True(t, ok)
	assert.Contains(t, ctx, "no longer available")
	assert.Contains(t, ctx, "buffered tool outputs")
}

func TestMarkPendingInjection(t *testing.T) {
	b := New(nil, nil)
	id := b.AddToolOutput(agentID, senderKey, "nmap", "", "scan output", "")
	b.AddToolOutput(agentID, senderKey, "curl", "", "fetch output", "")

	require.True(t, b.MarkPendingInjection(agentID, senderKey, id))
	assert.False(t, b.MarkPendingInjection(agentID, senderKey, 99))

	// A pending mark wins even when the message shows no intent, and is
	// consumed by the injection.
	ctx, ok := b.GetContextForInjection(agentID, senderKey, "unrelated message")
	require.True(t, ok)
	assert.Contains(t, ctx, "scan output")

	ctx, ok = b.GetContextForInjection(agentID, senderKey, "unrelated message")
	require.True(t, ok)
	assert.NotContains(t, ctx, "scan output", "pending mark is one-shot")
	assert.Contains(t, ctx, "buffered tool outputs")
}

func TestListAvailableExecutions(t *testing.T) {
	b := New(nil, nil)
	assert.Empty(t, b.ListAvailableExecutions(agentID, senderKey))

	b.AddToolOutput(agentID, senderKey, "nmap", "", "abc", "")
	b.AddToolOutput(agentID, senderKey, "curl", "", strings.Repeat("x", MaxOutputChars+1), "")

	lines := b.ListAvailableExecutions(agentID, senderKey)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "#1 nmap")
	assert.Contains(t, lines[1], "#2 curl")
	assert.Contains(t, lines[1], "truncated")
}

func TestDigest(t *testing.T) {
	b := New(nil, nil)
	assert.Equal(t, "no tool outputs buffered", b.Digest(agentID, senderKey))

	b.AddToolOutput(agentID, senderKey, "nmap", "", "abc", "")
	b.AddToolOutput(agentID, senderKey, "curl", "", strings.Repeat("x", MaxOutputChars+1), "")

	d := b.Digest(agentID, senderKey)
	assert.Contains(t, d, "#1 nmap")
	assert.Contains(t, d, "#2 curl")
	assert.Contains(t, d, "truncated")
}

func TestEmptyConversation(t *testing.T) {
	b := New(nil, nil)

	_, ok := b.GetLatestExecution(agentID, senderKey, "")
	assert.False(t, ok)
	assert.Empty(t, b.ListAvailableExecutions(agentID, senderKey))

	_, ok = b.GetContextForInjection(agentID, senderKey, "show me the tool output")
	assert.False(t, ok)
}
