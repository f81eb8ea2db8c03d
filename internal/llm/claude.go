// Package llm talks to the Claude Messages API to turn natural-language test
// steps into Playwright code and back.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmptyResponse is returned when the API answers without any text block
var ErrEmptyResponse = errors.New("empty response")

// ClaudeClient is a rate-limited client for the Claude Messages API
type ClaudeClient struct {
	apiKey     string
	url        string
	model      string
	maxTokens  int
	maxRetries int
	httpClient *http.Client

	rateLimiter *rate.Limiter
}

// Config for Claude client
type Config struct {
	APIKey string
	// URL is the full messages endpoint
	URL          string
	Model        string
	MaxTokens    int
	Timeout      time.Duration
	RateLimitRPM int // Requests per minute
	MaxRetries   int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		URL:          "https://api.anthropic.com/v1/messages",
		Model:        "claude-sonnet-4-20250514",
		MaxTokens:    2048,
		Timeout:      60 * time.Second,
		RateLimitRPM: 50,
		MaxRetries:   3,
	}
}

// NewClaudeClient creates a new Claude API client
func NewClaudeClient(cfg Config) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimitRPM <= 0 {
		cfg.RateLimitRPM = def.RateLimitRPM
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	// tokens per second = RPM / 60
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1)

	return &ClaudeClient{
		apiKey:      cfg.APIKey,
		url:         cfg.URL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: limiter,
	}, nil
}

// Request represents a Claude API request
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Message represents a conversation message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response represents a Claude API response
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock represents a content block in the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage contains token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *Usage) add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// Model returns the model being used
func (c *ClaudeClient) Model() string {
	return c.model
}

// Complete sends a completion request to Claude
func (c *ClaudeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", Usage{}, fmt.Errorf("rate limit: %w", err)
	}

	resp, err := c.doRequest(ctx, Request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []Message{
			{Role: "user", Content: userPrompt},
		},
		// code should come out the same for the same step
		Temperature: 0.2,
	})
	if err != nil {
		return "", Usage{}, err
	}

	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, resp.Usage, nil
		}
	}
	return "", resp.Usage, ErrEmptyResponse
}

// CompleteJSON sends a completion request and decodes the JSON found in the
// answer into result. Unparseable answers are retried; transport errors are
// returned immediately.
func (c *ClaudeClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, result any) (Usage, error) {
	jsonSystemPrompt := systemPrompt + "\n\nIMPORTANT: Return ONLY valid JSON. No markdown, no code blocks, no explanations."

	var total Usage
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		text, usage, err := c.Complete(ctx, jsonSystemPrompt, userPrompt)
		total.add(usage)
		if err != nil {
			return total, err
		}

		raw := extractJSON(text)
		if raw == "" {
			lastErr = fmt.Errorf("no JSON found in response")
			continue
		}
		if err := json.Unmarshal([]byte(raw), result); err != nil {
			lastErr = fmt.Errorf("invalid JSON: %w", err)
			continue
		}
		return total, nil
	}

	return total, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

// APIError is a non-2xx answer from the API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (c *ClaudeClient) doRequest(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &apiResp, nil
}

var codeFence = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// extractJSON pulls the first JSON object or array out of text that may be
// wrapped in a markdown fence or surrounded by prose.
func extractJSON(text string) string {
	if m := codeFence.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	text = text[start:]

	open, closing := text[0], byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == closing:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
