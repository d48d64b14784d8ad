// Package llmadapter implements the LLM Reasoning Adapter (C5): a single
// execute() primitv routed across providers by tag, with prompt trimming,
// JSON repair, retry/backoff, per-call caching, and token accounting.
// Provider/message shape is grounded on internal/llm/provider.go; context
// budgeting on internal/llm/context.go; the per-call cache on
// internal/llm/token_cache.go, generalized from token counts to full
// execute() results.
package llmadapter

import "time"

// ExpectedFormat tells execute whether the caller wants free text or a
// JSON-mode response (spec.md §4.5 point 3).
type ExpectedFormat string

const (
	FormatText ExpectedFormat = "text"
	FormatJSON ExpectedFormat = "json"
)

// ModelInfo describes the model/provider execute should route to.
type ModelInfo struct {
	Name          string
	Provider      string // "xai" | "local" | "google" | other
	Temperature   float64
	ContextWindow int
}

// Credentials carries whatever auth execute needs for the resolved
// provider (API key, base URL).
type Credentials struct {
	APIKey  string
	BaseURL string
}

// Usage mirrors spec.md §4.5's {prompt_tokens, completion_tokens, total_tokens}.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is execute's return shape: {output, usage, error?}.
type Result struct {
	Output string
	Usage  Usage
	Error  string
}

// Request bundles execute's parameters for cache-keying purposes.
type Request struct {
	RequestType    string
	Prompt         string
	ModelInfo      ModelInfo
	Credentials    Credentials
	RequestID      string
	ExpectedFormat ExpectedFormat
}

// Config tunes execute's cross-cutting behavior.
type Config struct {
	MaxRetries          int
	SafetyBufferTokens  int
	MinCompletionTokens int
	InitialBackoff      time.Duration
}

func defaultConfig() Config {
	return Config{
		MaxRetries:          2,
		SafetyBufferTokens:  200,
		MinCompletionTokens: 1024,
		InitialBackoff:      1 * time.Second,
	}
}
