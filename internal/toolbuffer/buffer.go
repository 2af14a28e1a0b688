// Package toolbuffer holds recent tool-execution outputs per
// conversation so they can be selectively re-injected into later model
// prompts instead of being glued onto every turn.
package toolbuffer

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/agentward/agentward/internal/metrics"
)

// Retention limits.
const (
	MaxExecutions      = 10    // per conversation, FIFO beyond this
	MaxOutputChars     = 10000 // output is truncated beyond this
	ExpirationMessages = 20    // messages without a tool reference before the buffer drops
)

const truncationMarker = "... [output truncated]"

// Execution is one stored tool run.
type Execution struct {
	ID           int64 // conversation-local, monotonic from 1
	ToolName     string
	CommandName  string
	Target       string
	Output       string
	Truncated    bool
	FullChars    int // pre-truncation output size
	FullLines    int // pre-truncation line count
	MessageIndex int // conversation message count when stored
	StoredAt     time.Time
}

// conversation is the per-(agent, sender) state.
type conversation struct {
	mu sync.Mutex

	nextID     int64
	executions []Execution

	// messageCount increments once per inbound message; lastToolRef is
	// the messageCount value at the last execution access. When the gap
	// reaches ExpirationMessages the stored outputs are dropped on the
	// next increment. Neither counter is reset by expiration, so IDs
	// and indices stay unambiguous for the conversation's lifetime.
	messageCount int
	lastToolRef  int

	// pendingID is an execution explicitly marked for injection into
	// the next prompt. Zero means none.
	pendingID int64
}

// touchLocked records an execution access, deferring expiration.
func (c *conversation) touchLocked() {
	c.lastToolRef = c.messageCount
}

type convKey struct {
	agentID   int64
	senderKey string
}

// Buffer is the process-wide registry of conversation buffers.
type Buffer struct {
	logger  *slog.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	convs map[convKey]*conversation

	now func() time.Time
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// New creates an empty Buffer.
func New(logger *slog.Logger, collector *metrics.Collector, opts ...Option) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Buffer{
		logger:  logger,
		metrics: collector,
		convs:   make(map[convKey]*conversation),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Buffer) conv(agentID int64, senderKey string) *conversation {
	key := convKey{agentID: agentID, senderKey: senderKey}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.convs[key]
	if !ok {
		c = &conversation{nextID: 1}
		b.convs[key] = c
	}
	return c
}

// AddToolOutput stores one tool run and returns its conversation-local
// ID. Output beyond MaxOutputChars is truncated with a visible marker;
// the pre-truncation size and line count are kept for digests. Storing
// counts as a tool reference and refreshes the expiration watermark.
func (b *Buffer) AddToolOutput(agentID int64, senderKey, toolName, commandName, output, target string) int64 {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()

	fullChars := len(output)
	fullLines := strings.Count(output, "\n") + 1
	truncated := false
	if len(output) > MaxOutputChars {
		// Back off to a rune boundary so the kept prefix stays valid
		// UTF-8 when the cap lands inside a multibyte character.
		cut := MaxOutputChars
		for cut > 0 && !utf8.RuneStart(output[cut]) {
			cut--
		}
		output = output[:cut] + truncationMarker
		truncated = true
	}

	exec := Execution{
		ID:           c.nextID,
		ToolName:     toolName,
		CommandName:  commandName,
		Target:       target,
		Output:       output,
		Truncated:    truncated,
		FullChars:    fullChars,
		FullLines:    fullLines,
		MessageIndex: c.messageCount,
		StoredAt:     b.now(),
	}
	c.nextID++
	c.executions = append(c.executions, exec)
	if len(c.executions) > MaxExecutions {
		c.executions = c.executions[len(c.executions)-MaxExecutions:]
	}
	c.touchLocked()
	return exec.ID
}

// IncrementMessageCount notes that a message was handled in the
// conversation. Once ExpirationMessages have passed without any tool
// reference, the next increment drops the stored outputs; the counters
// are never reset. Expiration is evaluated here, never by timer.
func (b *Buffer) IncrementMessageCount(agentID int64, senderKey string) {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.executions) != 0 && c.messageCount-c.lastToolRef >= ExpirationMessages {
		b.logger.Debug("tool output buffer expired",
			"agent_id", agentID, "dropped", len(c.executions))
		c.executions = nil
		c.pendingID = 0
	}
	c.messageCount++
}

// GetExecutionByID returns the stored execution with the given ID.
// A hit counts as a tool reference.
func (b *Buffer) GetExecutionByID(agentID int64, senderKey string, id int64) (Execution, bool) {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.executions {
		if e.ID == id {
			c.touchLocked()
			return e, true
		}
	}
	return Execution{}, false
}

// GetLatestExecution returns the most recently stored execution,
// optionally restricted to a tool name. A hit counts as a reference.
func (b *Buffer) GetLatestExecution(agentID int64, senderKey, toolName string) (Execution, bool) {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.latestLocked(toolName); ok {
		c.touchLocked()
		return e, true
	}
	return Execution{}, false
}

func (c *conversation) latestLocked(toolName string) (Execution, bool) {
	for i := len(c.executions) - 1; i >= 0; i-- {
		if toolName == "" || c.executions[i].ToolName == toolName {
			return c.executions[i], true
		}
	}
	return Execution{}, false
}

// ListAvailableExecutions returns a one-line reference string per
// buffered execution, oldest first. Listing does not count as a
// reference.
func (b *Buffer) ListAvailableExecutions(agentID int64, senderKey string) []string {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.executions))
	for _, e := range c.executions {
		out = append(out, digestLine(e))
	}
	return out
}

// MarkPendingInjection flags an execution for injection into the next
// prompt regardless of intent detection. Returns false when the ID is
// not buffered.
func (b *Buffer) MarkPendingInjection(agentID int64, senderKey string, id int64) bool {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.executions {
		if e.ID == id {
			c.pendingID = id
			return true
		}
	}
	return false
}

// GetContextForInjection decides what to inject into the prompt for a
// new user message. Priority: a pending mark (consumed even if its
// execution has since been evicted), then explicit intent in the
// message (an unknown #id yields a not-found note plus the digest, a
// detected tool name selects the newest matching execution), then the
// latest execution. Without any intent the lightweight digest is
// returned so the prompt-builder's token cost stays bounded.
func (b *Buffer) GetContextForInjection(agentID int64, senderKey, message string) (string, bool) {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.executions) == 0 {
		c.pendingID = 0
		return "", false
	}

	if c.pendingID != 0 {
		id := c.pendingID
		c.pendingID = 0
		for _, e := range c.executions {
			if e.ID == id {
				c.touchLocked()
				b.metrics.IncBufferInjection()
				return formatInjection(e), true
			}
		}
		// Marked execution was evicted; fall through to intent.
	}

	wantsOutput, refID, toolName := DetectInjectionIntent(message)
	if !wantsOutput {
		return c.digestLocked(), true
	}
	c.touchLocked()

	if refID != 0 {
		for _, e := range c.executions {
			if e.ID == refID {
				b.metrics.IncBufferInjection()
				return formatInjection(e), true
			}
		}
		return fmt.Sprintf("[tool output #%d is no longer available]\n%s", refID, c.digestLocked()), true
	}

	latest, ok := c.latestLocked(toolName)
	if !ok {
		return c.digestLocked(), true
	}
	b.metrics.IncBufferInjection()
	return formatInjection(latest), true
}

// Digest returns a one-line-per-execution summary of the buffer.
func (b *Buffer) Digest(agentID int64, senderKey string) string {
	c := b.conv(agentID, senderKey)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.digestLocked()
}

func (c *conversation) digestLocked() string {
	if len(c.executions) == 0 {
		return "no tool outputs buffered"
	}
	var sb strings.Builder
	sb.WriteString("buffered tool outputs:\n")
	for _, e := range c.executions {
		sb.WriteString("  ")
		sb.WriteString(digestLine(e))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func digestLine(e Execution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s (%d chars, %d lines", e.ID, e.ToolName, e.FullChars, e.FullLines)
	if e.Truncated {
		sb.WriteString(", truncated")
	}
	sb.WriteString(")")
	return sb.String()
}

func formatInjection(e Execution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[tool output #%d: %s", e.ID, e.ToolName)
	if e.CommandName != "" {
		fmt.Fprintf(&sb, " %s", e.CommandName)
	}
	if e.Target != "" {
		fmt.Fprintf(&sb, " @ %s", e.Target)
	}
	sb.WriteString("]\n")
	sb.WriteString(e.Output)
	return sb.String()
}
