// Package graph implements the Research Graph (C6): a linear pipeline of
// stages — initialize_task, generate_search_queries, web_search,
// process_content, synthesize_report, finalize_task — operating on a
// shared per-task OverallState, per spec.md §4.6. The executed graph is
// intentionally linear (the fuller multi-hop/comptroller/fact-check flow
// described in original_source is an open question left for a future
// extension, per spec.md §9). Staged-pipeline shape (each stage a
// function over shared state) is grounded on
// internal/rag/service/service.go's Ingest method.
package graph

import (
	"context"
	"sync"
	"time"

	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/search"
)

// RequestParams mirrors spec.md §3's RequestParams: all optional overrides
// except InitialQuery.
type RequestParams struct {
	InitialQuery        string
	SearchProviders      []string
	ReasoningModel       llmadapter.ModelInfo
	SynthesisModel       llmadapter.ModelInfo
	MaxHops              int
	MaxQueriesPerHop     int
	MaxURLsPerHop        int
	URLExplorationDepth  int
	ChunkSize            int
	ChunkOverlap         int
	TopK                 int
	DocumentFocused      bool
	DateContextOverride  string
}

// ContentChunk mirrors spec.md §3's ContentChunk.
type ContentChunk struct {
	ID       string
	URL      string
	Title    string
	Text     string
	Index    int
	Depth    int
	Metadata map[string]any
}

// ReportSource mirrors spec.md §3's ReportSource.
type ReportSource struct {
	URL        string
	Title      string
	Marker     string
	TrustScore float64
	Provider   string
}

// SourceMeta tracks the title/trust/provider of a URL first seen during
// process_content, consulted when the sources section is built.
type SourceMeta struct {
	Title      string
	TrustScore float64
	Provider   string
}

// TokenUsageEntry attributes one LLM call's usage to the stage that made it.
type TokenUsageEntry struct {
	Stage string
	Usage llmadapter.Usage
}

// CancelSignal is the task's cancellation signal (spec.md §3 and §5):
// idempotent to set, observable via IsSet/Done. Wraps a context.Context
// rather than the original's asyncio.Event, the idiomatic Go equivalent.
type CancelSignal struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelSignal derives a cancellable signal from parent.
func NewCancelSignal(parent context.Context) *CancelSignal {
	ctx, cancel := context.WithCancel(parent)
	return &CancelSignal{ctx: ctx, cancel: cancel}
}

// Set requests cancellation. Safe to call more than once.
func (c *CancelSignal) Set() { c.cancel() }

// IsSet reports whether cancellation has been requested.
func (c *CancelSignal) IsSet() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Done returns a channel closed once cancellation is requested.
func (c *CancelSignal) Done() <-chan struct{} { return c.ctx.Done() }

// Ctx returns a context that is cancelled when the signal is set, suitable
// for passing to suspension points (HTTP calls, subprocess calls, sleeps).
func (c *CancelSignal) Ctx() context.Context { return c.ctx }

// OverallState is the graph's per-task working memory (spec.md §3). It is
// mutated only by its own graph instance (sequentially, stage by stage)
// except for the maps touched by process_content's internal scrape
// fan-out, which is guarded by mu.
type OverallState struct {
	TaskID        string
	UserID        string
	OriginalQuery string
	Params        RequestParams
	SearchCreds   search.Credentials
	StartTime     time.Time
	DateContext   string

	Cancel *CancelSignal

	mu                     sync.Mutex
	TokenUsage             []TokenUsageEntry
	CurrentHopQueries      []string
	ExecutedQueries        map[string]bool
	SearchResultsThisHop   []search.ResultItem
	ProcessedChunksThisHop []*ContentChunk
	TaskChunks             map[string]*ContentChunk
	VisitedURLs            map[string]bool
	SourceInfo             map[string]SourceMeta

	FinalReportMarkdown string
	FinalSources         []ReportSource

	// terminalEmitted marks that a terminal (error, cancelled or complete) event has already
	// been enqueued by a stage; Run stops advancing once set.
	terminalEmitted bool
}

// NewOverallState builds the zero-value working memory for one task.
func NewOverallState(taskID, userID string, params RequestParams, creds search.Credentials, cancel *CancelSignal) *OverallState {
	return &OverallState{
		TaskID:          taskID,
		UserID:          userID,
		OriginalQuery:   params.InitialQuery,
		Params:          params,
		SearchCreds:     creds,
		Cancel:          cancel,
		ExecutedQueries: make(map[string]bool),
		TaskChunks:      make(map[string]*ContentChunk),
		VisitedURLs:     make(map[string]bool),
		SourceInfo:      make(map[string]SourceMeta),
	}
}

// MarkVisited adds url to the visited set, returning false if it was
// already present (idempotent insert, spec.md §3 invariant).
func (s *OverallState) MarkVisited(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.VisitedURLs[url] {
		return false
	}
	s.VisitedURLs[url] = true
	return true
}

func (s *OverallState) addChunk(c *ContentChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessedChunksThisHop = append(s.ProcessedChunksThisHop, c)
	s.TaskChunks[c.ID] = c
}

func (s *OverallState) recordSource(url string, meta SourceMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.SourceInfo[url]; !ok {
		s.SourceInfo[url] = meta
	}
}

func (s *OverallState) addUsage(stage string, u llmadapter.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenUsage = append(s.TokenUsage, TokenUsageEntry{Stage: stage, Usage: u})
}

func (s *OverallState) totalUsage() llmadapter.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total llmadapter.Usage
	for _, e := range s.TokenUsage {
		total.PromptTokens += e.Usage.PromptTokens
		total.CompletionTokens += e.Usage.CompletionTokens
		total.TotalTokens += e.Usage.TotalTokens
	}
	return total
}
