// Package llm provides the classifier collaborator the memory guard
// escalates ambiguous content to, plus tolerant parsing of its verdict.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ClassifyRequest carries the tenant-configurable escalation parameters.
type ClassifyRequest struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Prompt      string
}

// Classifier is the LLM collaborator contract. Implementations must honor
// the context deadline; the guard treats any error as escalation failure
// and fails open to its pattern-only verdict.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (string, error)
}

// Verdict is the JSON object the classifier is prompted to return.
type Verdict struct {
	Threat bool    `json:"threat"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ParseVerdict decodes a classifier response. Models routinely wrap JSON
// in Markdown code fences or prepend prose, so the first JSON object in
// the text is extracted before decoding. Anything undecodable is an
// error, which upstream treats as escalation failure.
func ParseVerdict(raw string) (Verdict, error) {
	var v Verdict

	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return v, fmt.Errorf("no JSON object in classifier response")
	}

	if err := json.Unmarshal([]byte(s[start:end+1]), &v); err != nil {
		return v, fmt.Errorf("decode classifier verdict: %w", err)
	}
	return v, nil
}

// HTTPClassifier calls an OpenAI-compatible chat-completions endpoint.
type HTTPClassifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClassifier creates a classifier against the given base URL
// (e.g. "https://api.openai.com/v1" or a local inference server).
func NewHTTPClassifier(baseURL, apiKey string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Per-call deadlines come from the caller's context; the client
		// timeout is only a backstop.
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Classify sends the prompt and returns the raw model text.
func (c *HTTPClassifier) Classify(ctx context.Context, req ClassifyRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal classify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build classify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("classify call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read classify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classify call failed: status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode classify response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("classify response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
