// Package config assembles the orchestrator's effective settings from
// environment variables, an optional .env overlay, and two database-backed
// exceptions (preferred embedding model, per-provider credentials).
package config

import "time"

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// ProviderCredential is a merged {api_key, endpoints} view for a single
// search or LLM provider, resolved from env vars and the api_providers/
// api_keys tables (env takes precedence).
type ProviderCredential struct {
	APIKey    string
	Endpoint  string
	ExtraKeys map[string]string
}

// ProvidersConfig holds per-search-provider and per-LLM-provider credentials.
type ProvidersConfig struct {
	Google        ProviderCredential
	Bing          ProviderCredential
	Brave         ProviderCredential
	CourtListener ProviderCredential

	// DefaultSearchProviders is the ordered fallback list used when a
	// request supplies none, or when every requested provider is rate
	// limited.
	DefaultSearchProviders []string
}

// LLMConfig controls the reasoning adapter's default models and local
// streaming endpoint.
type LLMConfig struct {
	XAI struct {
		BaseURL string
		APIKey  string
		Model   string
	}
	Google struct {
		BaseURL string
		APIKey  string
		Model   string
	}
	Local struct {
		// BaseURL points at the internal streaming completion endpoint,
		// e.g. http://localhost:8088, with Path appended.
		BaseURL string
		Path    string
	}

	DefaultReasoningModel  ModelInfo
	DefaultSynthesisModel  ModelInfo
	MaxRetries             int
	SafetyBufferTokens     int
	MinCompletionTokens    int
	RerankBatchTokenBudget int
}

// ModelInfo mirrors spec.md's reasoning/synthesis model descriptor.
type ModelInfo struct {
	Name          string
	Provider      string
	Temperature   float64
	ContextWindow int
	ID            string
}

// VectorConfig controls the embedding client and chunking defaults.
type VectorConfig struct {
	EmbeddingHost      string
	EmbeddingAPIKey    string
	EmbeddingModel     string
	EmbeddingDimension int
	DBPath             string
	ChunkSize          int
	ChunkOverlap       int
	TopK               int
}

// RateLimitConfig controls the ignore-list file and default duration.
type RateLimitConfig struct {
	FilePath        string
	DefaultDuration time.Duration
}

// TrustConfig controls the domain trust store and its provisional formula.
type TrustConfig struct {
	DBPath          string
	WeightFactor    float64
	WHOISCacheTTL   time.Duration
	PrivilegedTLDs  []string
}

// ResearchConfig carries the single-hop tunables enumerated in spec.md §4.8
// and the expanded Settings fields from original_source.
type ResearchConfig struct {
	MaxQueriesPerHop            int
	URLsPerHopInitial           int
	URLsPerHopSubsequent        int
	ScrapeConcurrency           int
	ScrapeSubprocessTimeout     time.Duration
	ScrapeCommand               string
	EmbeddingBatchSize          int
	SSEHeartbeatInterval        time.Duration
	TaskCleanupDelay            time.Duration
	DomainBlocklist             []string
	TokenBudgetWarningThreshold int
	SearchProviderTimeout       time.Duration
}

// Config is the top-level, fully-resolved configuration object.
type Config struct {
	Server     ServerConfig
	Providers  ProvidersConfig
	LLM        LLMConfig
	Vector     VectorConfig
	RateLimit  RateLimitConfig
	Trust      TrustConfig
	Research   ResearchConfig
	LogLevel   string
	LogPath    string
	SettingsDB string // sqlite path backing preferred-embedding-model/credential resolution
}
