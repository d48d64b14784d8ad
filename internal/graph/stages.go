package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/scrape"
	"github.com/livesearch/orchestrator/internal/search"
	"github.com/livesearch/orchestrator/internal/vectorstore"
)

// Stage is one function in the linear pipeline: it mutates state in
// place and enqueues whatever events are appropriate. Stages never
// return a Go error; a fatal condition is represented by fatalError
// setting state.terminalEmitted, per spec.md §4.6 ("Stages never raise").
type Stage func(ctx context.Context, state *OverallState, svc *Services, events *EventQueue)

// DefaultStages returns spec.md §4.6's executed pipeline in order.
func DefaultStages() []Stage {
	return []Stage{
		InitializeTask,
		GenerateSearchQueries,
		WebSearch,
		ProcessContent,
		SynthesizeReport,
		FinalizeTask,
	}
}

// InitializeTask fills start time, derives the date context, verifies the
// vector store is reachable with one lazy attempt, and emits the opening
// progress event, per spec.md §4.6.
func InitializeTask(ctx context.Context, state *OverallState, svc *Services, events *EventQueue) {
	state.StartTime = time.Now()

	if state.Params.DateContextOverride != "" {
		state.DateContext = state.Params.DateContextOverride
	} else {
		state.DateContext = state.StartTime.UTC().Format("Monday, January 2, 2006")
	}

	if svc.Vector != nil {
		if _, err := svc.Vector.Search(ctx, vectorstore.SearchOptions{GroupID: state.TaskID, FTSQuery: "health check", TopK: 1}); err != nil {
			fatalError(state, events, "initialize_task", "vector store unavailable: "+err.Error())
			return
		}
	}

	progress(events, "graph_initialization", "task initialized", map[string]any{"task_id": state.TaskID})
}

// queryGenSchema is the JSON shape the reasoning model is instructed to
// produce for generate_search_queries.
type queryGenSchema struct {
	Queries []string `json:"queries"`
}

// GenerateSearchQueries asks the reasoning model for up to
// MaxQueriesPerHop search queries, per spec.md §4.6.
func GenerateSearchQueries(ctx context.Context, state *OverallState, svc *Services, events *EventQueue) {
	if state.Cancel.IsSet() {
		return
	}

	limit := state.Params.MaxQueriesPerHop
	if limit <= 0 {
		limit = 3
	}
	prompt := fmt.Sprintf(
		"You are a research assistant. Given the user's research request, produce up to %d distinct web search queries that would help answer it.\n"+
			"Respond with a JSON object of the form {\"queries\": [\"...\", ...]}.\n\nRequest: %s\nDate context: %s",
		limit, state.OriginalQuery, state.DateContext,
	)

	res := svc.LLM.Execute(ctx, llmadapter.Request{
		RequestType:    "generate_search_queries",
		Prompt:         prompt,
		ModelInfo:      state.Params.ReasoningModel,
		Credentials:    svc.CredentialsFor(state.Params.ReasoningModel.Provider),
		RequestID:      state.TaskID,
		ExpectedFormat: llmadapter.FormatJSON,
	})
	state.addUsage("generate_search_queries", res.Usage)

	if res.Error != "" {
		fatalError(state, events, "generate_search_queries", res.Error)
		return
	}

	var parsed queryGenSchema
	if err := json.Unmarshal([]byte(res.Output), &parsed); err != nil || len(parsed.Queries) == 0 {
		// Degrade to the original query rather than aborting the task: a
		// malformed query list is recoverable, unlike an LLM call failure.
		state.CurrentHopQueries = []string{state.OriginalQuery}
		progress(events, "query_generation", "falling back to the original query", nil)
		return
	}

	if len(parsed.Queries) > limit {
		parsed.Queries = parsed.Queries[:limit]
	}
	state.CurrentHopQueries = parsed.Queries
	progress(events, "query_generation", "generated search queries", map[string]any{"count": len(parsed.Queries)})
}

// WebSearch runs the search pass for every generated query not already
// executed, per spec.md §4.6.
func WebSearch(ctx context.Context, state *OverallState, svc *Services, events *EventQueue) {
	if state.Cancel.IsSet() || svc.Search == nil {
		return
	}

	limit := state.Params.MaxURLsPerHop
	if limit <= 0 {
		limit = 5
	}

	for _, q := range state.CurrentHopQueries {
		if state.Cancel.IsSet() {
			return
		}
		if state.ExecutedQueries[q] {
			continue
		}

		result := svc.Search.Pass(ctx, q, limit, state.SearchCreds)
		state.mu.Lock()
		state.SearchResultsThisHop = append(state.SearchResultsThisHop, result.Items...)
		state.ExecutedQueries[q] = true
		state.mu.Unlock()

		byProvider := make(map[string]int)
		for _, item := range result.Items {
			byProvider[item.Provider]++
		}
		for provider, count := range byProvider {
			progress(events, "web_search_"+provider, fmt.Sprintf("%d results for %q", count, q), nil)
		}
		for provider, err := range result.ProviderErrs {
			progress(events, "web_search_provider_error_"+provider, err.Error(), nil)
		}
		for _, provider := range result.SkippedByRate {
			progress(events, "web_search_provider_skipped_"+provider, "provider ignored (rate limited)", nil)
		}
	}
}

// ProcessContent deduplicates the hop's results by URL, scrapes up to
// ScrapeConcurrency URLs in parallel, chunks successful pages, and indexes
// them into the vector store, per spec.md §4.6.
func ProcessContent(ctx context.Context, state *OverallState, svc *Services, events *EventQueue) {
	if state.Cancel.IsSet() {
		return
	}

	type candidate struct {
		url     string
		title   string
		snippet string
		trust   float64
		provider string
	}

	seen := make(map[string]bool)
	var candidates []candidate
	for _, item := range state.SearchResultsThisHop {
		if item.URL == "" || seen[item.URL] {
			continue
		}
		seen[item.URL] = true
		if state.VisitedURLs[item.URL] {
			continue
		}
		candidates = append(candidates, candidate{
			url: item.URL, title: item.Title, snippet: item.Snippet,
			trust: item.TrustScore, provider: item.Provider,
		})
	}

	concurrency := svc.Config.Research.ScrapeConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	chunkSize := state.Params.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	chunkOverlap := state.Params.ChunkOverlap

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, c := range candidates {
		if state.Cancel.IsSet() {
			break
		}
		if !state.MarkVisited(c.url) {
			continue
		}

		c := c
		g.Go(func() error {
			processOneURL(ctx, state, svc, events, c.url, c.title, c.snippet, c.trust, c.provider, chunkSize, chunkOverlap)
			return nil
		})
	}
	_ = g.Wait()
}

func processOneURL(ctx context.Context, state *OverallState, svc *Services, events *EventQueue,
	rawURL, title, snippet string, trust float64, provider string, chunkSize, chunkOverlap int) {

	if state.Cancel.IsSet() {
		return
	}

	var (
		result *scrape.Result
		err    error
	)

	host := ""
	if u, perr := url.Parse(rawURL); perr == nil {
		host = u.Hostname()
	}

	if search.IsAcademicDomain(host) {
		result, err = scrape.ScrapeAcademicAware(ctx, rawURL, snippet)
	} else if svc.Scrape != nil {
		result, err = svc.Scrape.ScrapeURL(ctx, rawURL, map[string]any{"query_provider": provider})
	}

	if err != nil || result == nil || strings.TrimSpace(result.Content) == "" {
		return
	}

	pageTitle := result.Title
	if pageTitle == "" {
		pageTitle = title
	}
	state.recordSource(rawURL, SourceMeta{Title: pageTitle, TrustScore: trust, Provider: provider})

	pieces := vectorstore.Chunk(result.Content, chunkSize, chunkOverlap)
	for i, piece := range pieces {
		if piece == "" {
			continue
		}
		chunk := &ContentChunk{
			ID:    uuid.NewString(),
			URL:   rawURL,
			Title: pageTitle,
			Text:  piece,
			Index: i,
			Depth: 0,
			Metadata: map[string]any{
				"original_url": rawURL,
				"page_title":   pageTitle,
				"trust_score":  trust,
			},
		}
		state.addChunk(chunk)
	}

	if svc.Vector != nil && svc.Embedder != nil && len(pieces) > 0 {
		docs := make([]vectorstore.Document, 0, len(pieces))
		for _, piece := range pieces {
			if piece == "" {
				continue
			}
			docs = append(docs, vectorstore.Document{
				Text: piece,
				Metadata: map[string]any{
					"original_url": rawURL,
					"page_title":   pageTitle,
					"trust_score":  trust,
				},
			})
		}
		// Pass a chunk size larger than any individual piece so Add's
		// internal chunker is a no-op splitter here; the splitting decision
		// was already made above against the caller's configured size.
		if _, addErr := svc.Vector.Add(ctx, state.TaskID, docs, svc.Embedder, chunkSize*4, 0); addErr != nil {
			log.Warn().Err(addErr).Str("url", rawURL).Msg("graph: vector index failed for scraped page")
		}
	}
}

// SynthesizeReport calls the LLM with the accumulated chunks, rewrites
// citation markers, appends a sources section, and emits the final
// markdown_chunk event, per spec.md §4.6 and §4.6.1.
func SynthesizeReport(ctx context.Context, state *OverallState, svc *Services, events *EventQueue) {
	if state.Cancel.IsSet() {
		return
	}

	if len(state.TaskChunks) == 0 {
		state.FinalReportMarkdown = "No information could be found for this request.\n"
		events.Push(&Event{Type: EventMarkdownChunk, ChunkID: uuid.NewString(), Content: state.FinalReportMarkdown, IsFinalChunk: true})
		return
	}

	var b strings.Builder
	for _, c := range state.ProcessedChunksThisHop {
		fmt.Fprintf(&b, "Source: %s\nTitle: %s\n%s\n\n", c.URL, c.Title, c.Text)
	}

	prompt := fmt.Sprintf(
		"You are a research analyst. Using only the sources below, write a well-organized markdown report "+
			"answering the request. Cite every factual claim inline as [ref: FULL_URL] using the exact URL of the "+
			"source it came from.\n\nRequest: %s\nDate context: %s\n\n--- SOURCES ---\n%s",
		state.OriginalQuery, state.DateContext, b.String(),
	)

	res := svc.LLM.Execute(ctx, llmadapter.Request{
		RequestType: "synthesize_report",
		Prompt:      prompt,
		ModelInfo:   state.Params.SynthesisModel,
		Credentials: svc.CredentialsFor(state.Params.SynthesisModel.Provider),
		RequestID:   state.TaskID,
	})
	state.addUsage("synthesize_report", res.Usage)

	if res.Error != "" {
		fatalError(state, events, "synthesize_report", res.Error)
		return
	}

	rewritten, order := rewriteCitations(res.Output)

	sources := make([]ReportSource, 0, len(order))
	for i, u := range order {
		meta := state.SourceInfo[u]
		sources = append(sources, ReportSource{
			URL: u, Title: meta.Title, Marker: fmt.Sprintf("S%d", i+1),
			TrustScore: meta.TrustScore, Provider: meta.Provider,
		})
	}

	final := rewritten + "\n\n" + buildSourcesSection(sources) + dateContextFooter(state.DateContext)

	state.FinalReportMarkdown = final
	state.FinalSources = sources

	events.Push(&Event{Type: EventMarkdownChunk, ChunkID: uuid.NewString(), Content: final, IsFinalChunk: true})
}

// FinalizeTask computes the duration display and emits the terminal
// complete event, per spec.md §4.6.
func FinalizeTask(ctx context.Context, state *OverallState, svc *Services, events *EventQueue) {
	if state.Cancel.IsSet() || state.terminalEmitted {
		return
	}

	duration := time.Since(state.StartTime)
	events.Push(&Event{
		Type:            EventComplete,
		Message:         "research complete",
		TokenUsage:      sortedUsage(state.TokenUsage),
		ReportSources:   state.FinalSources,
		DurationDisplay: formatDuration(duration),
	})
	state.terminalEmitted = true
}

func sortedUsage(usage []TokenUsageEntry) []TokenUsageEntry {
	out := make([]TokenUsageEntry, len(usage))
	copy(out, usage)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// formatDuration renders d as "Hh Mm Ss", per spec.md §4.6's finalize_task.
func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
