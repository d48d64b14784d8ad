// Command server is the Live Search Orchestrator's HTTP entrypoint: it
// assembles configuration, the C1-C7 subsystems, and the echo router, then
// serves until SIGINT/SIGTERM, per spec.md §7.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"github.com/livesearch/orchestrator/internal/config"
	"github.com/livesearch/orchestrator/internal/graph"
	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/observability"
	"github.com/livesearch/orchestrator/internal/ratelimit"
	"github.com/livesearch/orchestrator/internal/scrape"
	"github.com/livesearch/orchestrator/internal/search"
	"github.com/livesearch/orchestrator/internal/tasks"
	"github.com/livesearch/orchestrator/internal/trust"
	"github.com/livesearch/orchestrator/internal/vectorstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	if db, err := sql.Open("sqlite", cfg.SettingsDB); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		config.ResolveFromDB(ctx, &cfg, db)
		cancel()
		db.Close()
	} else {
		log.Warn().Err(err).Str("path", cfg.SettingsDB).Msg("server: settings db unavailable, using env-only config")
	}

	svc, err := buildServices(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("server: failed to build services")
	}

	reg := tasks.NewRegistry()
	tasks.TaskCleanupDelay = cfg.Research.TaskCleanupDelay
	h := &tasks.Handlers{Registry: reg, Services: svc, HeartbeatInterval: cfg.Research.SSEHeartbeatInterval}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	registerRoutes(e, h)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	go func() {
		log.Info().Str("addr", addr).Msg("server: listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server: listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server: graceful shutdown failed")
	} else {
		log.Info().Msg("server: stopped")
	}
}

// registerRoutes wires spec.md §6's HTTP surface onto h.
func registerRoutes(e *echo.Echo, h *tasks.Handlers) {
	e.GET("/health", h.HealthHandler)

	e.POST("/research_tasks", h.CreateTaskHandler)
	e.GET("/research_tasks/:id/stream", h.StreamHandler)
	e.POST("/research_tasks/:id/cancel", h.CancelTaskHandler)
	e.GET("/research_tasks/:id/status", h.StatusHandler)

	e.POST("/tasks/:task_id/ingest_documents", h.IngestDocumentsHandler)

	e.POST("/vector/documents", h.VectorAddHandler)
	e.POST("/vector/search", h.VectorSearchHandler)
	e.POST("/vector/delete_by_group", h.VectorDeleteByGroupHandler)
	e.POST("/vector/embed-texts", h.VectorEmbedTextsHandler)
}

// buildServices constructs the process-scoped collaborators shared by
// every task's graph instance: search fan-out (C3), scrape subprocess
// (C3), vector store + embedder (C4), and the LLM reasoning adapter (C5).
func buildServices(cfg config.Config) (*graph.Services, error) {
	rl := ratelimit.New(cfg.RateLimit.FilePath, cfg.RateLimit.DefaultDuration)

	// No WHOIS client exists anywhere in the corpus; trust scoring still
	// runs (HTTPS + TLD signals), just without the age component. See
	// DESIGN.md for the justification.
	noAgeLookup := func(ctx context.Context, domain string) (int, bool) { return 0, false }
	ts, err := trust.Open(cfg.Trust.DBPath, cfg.Trust.PrivilegedTLDs, noAgeLookup, cfg.Trust.WHOISCacheTTL)
	if err != nil {
		return nil, err
	}

	providers := buildSearchProviders(cfg.Providers.DefaultSearchProviders)
	searchReg := search.NewRegistry(providers, rl, ts)

	scrapeCmd := cfg.Research.ScrapeCommand
	if scrapeCmd == "" {
		if exe, err := os.Executable(); err == nil {
			scrapeCmd = exe + "-scrapeworker"
		}
	}
	scraper := scrape.NewSubprocess(scrapeCmd, cfg.Research.ScrapeSubprocessTimeout)

	vec, err := vectorstore.Open(cfg.Vector.DBPath, cfg.Vector.EmbeddingDimension)
	if err != nil {
		return nil, err
	}
	embedder := vectorstore.NewEmbedder(cfg.Vector.EmbeddingHost, cfg.Vector.EmbeddingAPIKey,
		cfg.Vector.EmbeddingModel, cfg.Vector.EmbeddingDimension)

	llm := llmadapter.New(llmadapter.Config{
		MaxRetries:          cfg.LLM.MaxRetries,
		SafetyBufferTokens:  cfg.LLM.SafetyBufferTokens,
		MinCompletionTokens: cfg.LLM.MinCompletionTokens,
		InitialBackoff:      1 * time.Second,
	})

	return &graph.Services{
		LLM: llm, Search: searchReg, Scrape: scraper, Vector: vec, Embedder: embedder, Config: cfg,
	}, nil
}

// buildSearchProviders resolves the configured provider name list into
// search.Provider instances, skipping unknown names with a warning rather
// than failing startup, per spec.md §4.3's provider-tag dispatch.
func buildSearchProviders(names []string) []search.Provider {
	providers := make([]search.Provider, 0, len(names))
	for _, name := range names {
		switch name {
		case "google":
			providers = append(providers, search.NewGoogleCSE())
		case "bing":
			providers = append(providers, search.NewBing())
		case "brave":
			providers = append(providers, search.NewBrave())
		case "duckduckgo":
			providers = append(providers, search.NewDuckDuckGo())
		case "wikipedia":
			providers = append(providers, search.NewWikipedia())
		case "openalex":
			providers = append(providers, search.NewOpenAlex())
		case "courtlistener":
			providers = append(providers, search.NewCourtListener())
		default:
			log.Warn().Str("provider", name).Msg("server: unknown search provider name, skipping")
		}
	}
	return providers
}
