// Package llm abstracts the structured-extraction backend behind a small
// client interface with interchangeable providers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is a single completion request to the backend.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response holds the raw response text and token usage.
type Response struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// Client is the interface every backend adapter satisfies.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Ping verifies the backend is reachable. Called once at startup.
	Ping(ctx context.Context) error
}

// Config selects and configures a backend provider.
type Config struct {
	Provider string // "openai", "ollama", "anthropic", "mock"
	Model    string
	APIKey   string
	BaseURL  string
}

// New creates the client for the configured provider. "ollama" and any
// other OpenAI-compatible endpoint go through the OpenAI adapter with a
// custom base URL.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai", "ollama", "together":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

// ParseError reports a backend response that did not conform to the
// expected structured schema. Callers may retry once on it; it is never
// silently coerced into a partial result.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed structured response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Decode strictly parses a backend response into v. Markdown code fences
// around the JSON body are tolerated; unknown fields are not.
func Decode(raw string, v any) error {
	cleaned := stripCodeFences(raw)
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```json"))
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
