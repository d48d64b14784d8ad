package config

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env),
// applying defaults for anything left unset. It does not touch the
// database; call ResolveFromDB afterward once the settings store is open.
func Load() (Config, error) {
	// Load fills values from a repository-local .env only where the real
	// environment has not already set them.
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Server.Host = firstNonEmpty(os.Getenv("LIVE_SEARCH_SERVER_HOST"), "0.0.0.0")
	cfg.Server.Port = envInt("LIVE_SEARCH_SERVER_PORT", 8080)

	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.LogPath = os.Getenv("LOG_PATH")

	cfg.SettingsDB = firstNonEmpty(os.Getenv("LIVE_SEARCH_SQLITE_DB_PATH"), "data/community.db")

	cfg.Providers.Google = credentialFromEnv("GOOGLE_CSE_API_KEY", "GOOGLE_CSE_ENDPOINT", map[string]string{"cx": os.Getenv("GOOGLE_CSE_CX")})
	cfg.Providers.Bing = credentialFromEnv("BING_API_KEY", "BING_ENDPOINT", nil)
	cfg.Providers.Brave = credentialFromEnv("BRAVE_API_KEY", "BRAVE_ENDPOINT", nil)
	cfg.Providers.CourtListener = credentialFromEnv("COURTLISTENER_API_TOKEN", "COURTLISTENER_ENDPOINT", nil)
	cfg.Providers.DefaultSearchProviders = splitCSV(os.Getenv("LIVE_SEARCH_DEFAULT_PROVIDERS"),
		[]string{"duckduckgo", "wikipedia", "brave"})

	cfg.LLM.XAI.BaseURL = firstNonEmpty(os.Getenv("XAI_BASE_URL"), "https://api.x.ai/v1")
	cfg.LLM.XAI.APIKey = os.Getenv("XAI_API_KEY")
	cfg.LLM.XAI.Model = firstNonEmpty(os.Getenv("XAI_MODEL"), "grok-beta")
	cfg.LLM.Google.BaseURL = os.Getenv("GOOGLE_LLM_BASE_URL")
	cfg.LLM.Google.APIKey = os.Getenv("GOOGLE_LLM_API_KEY")
	cfg.LLM.Google.Model = firstNonEmpty(os.Getenv("GOOGLE_LLM_MODEL"), "gemini-2.5-flash")
	cfg.LLM.Local.BaseURL = firstNonEmpty(os.Getenv("INTERNAL_NODE_API_BASE_URL"), "http://localhost:8088")
	cfg.LLM.Local.Path = firstNonEmpty(os.Getenv("INTERNAL_NODE_API_ENDPOINT_PATH"), "/local_completion")
	cfg.LLM.MaxRetries = envInt("LIVE_SEARCH_LLM_MAX_RETRIES", 3)
	cfg.LLM.SafetyBufferTokens = envInt("LIVE_SEARCH_LLM_SAFETY_BUFFER_TOKENS", 200)
	cfg.LLM.MinCompletionTokens = envInt("LIVE_SEARCH_LLM_MIN_COMPLETION_TOKENS", 1024)
	cfg.LLM.RerankBatchTokenBudget = envInt("LIVE_SEARCH_RERANK_LLM_BATCH_SIZE", 10)
	cfg.LLM.DefaultReasoningModel = ModelInfo{
		Name:          firstNonEmpty(os.Getenv("LIVE_SEARCH_REASONING_MODEL"), cfg.LLM.XAI.Model),
		Provider:      firstNonEmpty(os.Getenv("LIVE_SEARCH_REASONING_PROVIDER"), "xai"),
		Temperature:   envFloat("LIVE_SEARCH_REASONING_TEMPERATURE", 0.3),
		ContextWindow: envInt("LIVE_SEARCH_REASONING_CONTEXT_WINDOW", 0),
	}
	cfg.LLM.DefaultSynthesisModel = ModelInfo{
		Name:          firstNonEmpty(os.Getenv("LIVE_SEARCH_SYNTHESIS_MODEL"), cfg.LLM.XAI.Model),
		Provider:      firstNonEmpty(os.Getenv("LIVE_SEARCH_SYNTHESIS_PROVIDER"), "xai"),
		Temperature:   envFloat("LIVE_SEARCH_SYNTHESIS_TEMPERATURE", 0.5),
		ContextWindow: envInt("LIVE_SEARCH_SYNTHESIS_CONTEXT_WINDOW", 0),
	}

	cfg.Vector.EmbeddingHost = os.Getenv("LIVE_SEARCH_EMBEDDING_HOST")
	cfg.Vector.EmbeddingAPIKey = os.Getenv("LIVE_SEARCH_EMBEDDING_API_KEY")
	cfg.Vector.EmbeddingModel = firstNonEmpty(os.Getenv("LIVE_SEARCH_EMBEDDING_MODEL"), "nomic-embed-text-v1.5")
	cfg.Vector.EmbeddingDimension = envInt("LIVE_SEARCH_EMBEDDING_DIMENSION", 768)
	cfg.Vector.DBPath = firstNonEmpty(os.Getenv("LIVE_SEARCH_VECTOR_DB_PATH"), "data/vector_store.db")
	cfg.Vector.ChunkSize = envInt("LIVE_SEARCH_CHUNK_SIZE_WORDS", 400)
	cfg.Vector.ChunkOverlap = envInt("LIVE_SEARCH_CHUNK_OVERLAP_WORDS", 50)
	cfg.Vector.TopK = envInt("LIVE_SEARCH_TOP_K", 8)

	cfg.RateLimit.FilePath = firstNonEmpty(os.Getenv("LIVE_SEARCH_RATE_LIMIT_FILE"), "data/rate_limit_ignore_list.json")
	cfg.RateLimit.DefaultDuration = envDuration("LIVE_SEARCH_RATE_LIMIT_DEFAULT_SECONDS", 30*time.Minute)

	cfg.Trust.DBPath = firstNonEmpty(os.Getenv("LIVE_SEARCH_TRUST_DB_PATH"), cfg.SettingsDB)
	cfg.Trust.WeightFactor = envFloat("LIVE_SEARCH_TRUST_WEIGHT_FACTOR", 0.3)
	cfg.Trust.WHOISCacheTTL = time.Duration(envInt("LIVE_SEARCH_TRUST_WHOIS_CACHE_HOURS", 24)) * time.Hour
	cfg.Trust.PrivilegedTLDs = splitCSV(os.Getenv("LIVE_SEARCH_TRUST_PRIVILEGED_TLDS"),
		[]string{"gov", "edu", "mil"})

	cfg.Research.MaxQueriesPerHop = envInt("LIVE_SEARCH_MAX_QUERIES_PER_HOP", 5)
	cfg.Research.URLsPerHopInitial = envInt("LIVE_SEARCH_URLS_PER_HOP_INITIAL", 8)
	cfg.Research.URLsPerHopSubsequent = envInt("LIVE_SEARCH_URLS_PER_HOP_SUBSEQUENT", 5)
	cfg.Research.ScrapeConcurrency = envInt("PYTHON_LIVE_SEARCH_SCRAPE_CONCURRENCY", 10)
	cfg.Research.ScrapeSubprocessTimeout = envDuration("LIVE_SEARCH_SCRAPY_SUBPROCESS_TIMEOUT", 25*time.Second)
	cfg.Research.ScrapeCommand = os.Getenv("LIVE_SEARCH_SCRAPE_COMMAND")
	cfg.Research.EmbeddingBatchSize = envInt("LIVE_SEARCH_EMBEDDING_BATCH_SIZE", 64)
	cfg.Research.SSEHeartbeatInterval = envDuration("LIVE_SEARCH_SSE_HEARTBEAT_INTERVAL_SECONDS", 2*time.Second)
	cfg.Research.TaskCleanupDelay = envDuration("LIVE_SEARCH_TASK_CLEANUP_DELAY_SECONDS", 5*time.Second)
	cfg.Research.DomainBlocklist = splitCSV(os.Getenv("LIVE_SEARCH_DOMAIN_BLOCKLIST"), nil)
	cfg.Research.TokenBudgetWarningThreshold = envInt("LIVE_SEARCH_TOKEN_BUDGET_WARNING_THRESHOLD_PER_TASK", 50_000)
	cfg.Research.SearchProviderTimeout = envDuration("LIVE_SEARCH_PROVIDER_TIMEOUT_SECONDS", 20*time.Second)

	yamlPath := firstNonEmpty(os.Getenv("LIVE_SEARCH_CONFIG_FILE"), "config.yaml")
	yamlCfg, err := loadYAMLDefaults(yamlPath)
	if err != nil {
		return cfg, err
	}
	applyYAMLDefaults(&cfg, yamlCfg)

	return cfg, nil
}

// ResolveFromDB fills in the two settings the spec resolves from the
// application database rather than the environment: the active embedding
// model and merged per-provider credentials. Env values already set take
// precedence; this only fills gaps. db may be nil, in which case this is a
// no-op (matching "on database unavailability ... never raises").
func ResolveFromDB(ctx context.Context, cfg *Config, db *sql.DB) {
	if db == nil {
		return
	}
	if cfg.Vector.EmbeddingModel == "" || cfg.Vector.EmbeddingModel == "nomic-embed-text-v1.5" {
		if model, ok := activeEmbeddingModel(ctx, db); ok {
			cfg.Vector.EmbeddingModel = model
		}
	}
	mergeProviderCredential(ctx, db, "google", &cfg.Providers.Google)
	mergeProviderCredential(ctx, db, "bing", &cfg.Providers.Bing)
	mergeProviderCredential(ctx, db, "brave", &cfg.Providers.Brave)
	mergeProviderCredential(ctx, db, "courtlistener", &cfg.Providers.CourtListener)
}

// activeEmbeddingModel reimplements _get_active_embedding_model_from_db:
// preferred id from system_settings first, then the models table ordered by
// is_default desc, id desc.
func activeEmbeddingModel(ctx context.Context, db *sql.DB) (string, bool) {
	var preferred sql.NullString
	row := db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = 'preferred_local_embedding_model_id'`)
	_ = row.Scan(&preferred)
	if preferred.Valid && preferred.String != "" {
		if id, err := strconv.ParseInt(preferred.String, 10, 64); err == nil {
			var identifier string
			var active, isEmbedding bool
			r := db.QueryRowContext(ctx,
				`SELECT identifier, is_active, is_embedding_model FROM models WHERE id = ?`, id)
			if err := r.Scan(&identifier, &active, &isEmbedding); err == nil && active && isEmbedding {
				return identifier, true
			}
		} else {
			// Preferred value is itself a repository identifier or local path.
			return preferred.String, true
		}
	}
	var identifier string
	r := db.QueryRowContext(ctx,
		`SELECT identifier FROM models WHERE is_active = 1 AND is_embedding_model = 1
		 ORDER BY is_default DESC, id DESC LIMIT 1`)
	if err := r.Scan(&identifier); err == nil && identifier != "" {
		return identifier, true
	}
	return "", false
}

// mergeProviderCredential fills api_key/extra keys from api_providers +
// api_keys when the environment did not already supply them.
func mergeProviderCredential(ctx context.Context, db *sql.DB, provider string, cred *ProviderCredential) {
	if cred.APIKey != "" {
		return
	}
	var apiKey, endpoint sql.NullString
	row := db.QueryRowContext(ctx, `
		SELECT k.api_key, p.endpoint
		FROM api_providers p
		JOIN api_keys k ON k.provider_id = p.id
		WHERE p.name = ? AND k.is_active = 1
		ORDER BY k.id DESC LIMIT 1`, provider)
	if err := row.Scan(&apiKey, &endpoint); err != nil {
		return
	}
	if apiKey.Valid {
		cred.APIKey = apiKey.String
	}
	if endpoint.Valid && cred.Endpoint == "" {
		cred.Endpoint = endpoint.String
	}
}

func credentialFromEnv(keyEnv, endpointEnv string, extra map[string]string) ProviderCredential {
	c := ProviderCredential{
		APIKey:    os.Getenv(keyEnv),
		Endpoint:  os.Getenv(endpointEnv),
		ExtraKeys: map[string]string{},
	}
	for k, v := range extra {
		if v != "" {
			c.ExtraKeys[k] = v
		}
	}
	return c
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func splitCSV(v string, def []string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
