package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/livesearch/orchestrator/internal/config"
	"github.com/livesearch/orchestrator/internal/graph"
	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/search"
	"github.com/livesearch/orchestrator/internal/vectorstore"
)

// errInvalidTaskID indicates a path-parameter task id is malformed or
// attempts path traversal.
var errInvalidTaskID = errors.New("invalid task id")

// taskIDFromPath checks that a path-parameter task id is safe to use as a
// single path segment. Task ids never touch the filesystem directly, but
// every one that reaches the registry map or a log line originated as an
// untrusted URL segment, so the same single-segment/no-traversal check
// applies.
func taskIDFromPath(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if raw == "." || raw == ".." || strings.ContainsAny(raw, `/\`) {
		return "", errInvalidTaskID
	}
	clean := filepath.Clean(raw)
	if clean != raw || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errInvalidTaskID
	}
	return clean, nil
}

// Handlers wires the HTTP surface (spec.md §6) to the task registry and
// the process-scoped services every task's graph needs. Thin-handler-
// delegates-to-service is the same layering internal/httpapi/handlers.go
// uses over its own domain services.
type Handlers struct {
	Registry          *Registry
	Services          *graph.Services
	HeartbeatInterval time.Duration
}

type modelInfoRequest struct {
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	Temperature   float64 `json:"temperature"`
	ContextWindow int     `json:"context_window"`
	ID            string  `json:"id"`
}

func (m modelInfoRequest) toModelInfo(fallback llmadapter.ModelInfo) llmadapter.ModelInfo {
	if m.Name == "" {
		return fallback
	}
	mi := llmadapter.ModelInfo{Name: m.Name, Provider: m.Provider, Temperature: m.Temperature, ContextWindow: m.ContextWindow}
	if mi.Provider == "" {
		mi.Provider = fallback.Provider
	}
	if mi.ContextWindow == 0 {
		mi.ContextWindow = fallback.ContextWindow
	}
	return mi
}

type requestParamsBody struct {
	InitialQuery        string            `json:"initial_query"`
	SearchProviders     []string          `json:"search_providers"`
	ReasoningModelInfo  modelInfoRequest  `json:"reasoning_model_info"`
	SynthesisModelInfo  modelInfoRequest  `json:"synthesis_model_info"`
	MaxHops             int               `json:"max_hops"`
	MaxQueriesPerHop    int               `json:"max_queries_per_hop"`
	MaxURLsPerHop       int               `json:"max_urls_per_hop"`
	ChunkSize           int               `json:"chunk_size"`
	ChunkOverlap        int               `json:"chunk_overlap"`
	TopK                int               `json:"top_k"`
	URLExplorationDepth int               `json:"url_exploration_depth"`
	DocumentFocused     bool              `json:"document_focused"`
	DateContextOverride string            `json:"date_context_override"`
}

type createTaskRequest struct {
	UserID        string            `json:"user_id"`
	RequestParams requestParamsBody `json:"request_params"`
	// APIConfig is a per-request override of the search-provider
	// credentials C8 resolves from env/DB, keyed the way the original
	// passes them through (GOOGLE_API_KEY, GOOGLE_CX, BING_API_KEY,
	// BRAVE_SEARCH_API_KEY, COURTLISTENER_API_KEY). Unset keys fall back
	// to the server's resolved defaults.
	APIConfig map[string]string `json:"api_config"`
}

// resolveSearchCredentials merges a request's api_config override onto the
// server's C8-resolved provider credentials. Override wins per key; a
// missing or empty override key keeps the resolved default.
func resolveSearchCredentials(p config.ProvidersConfig, override map[string]string) search.Credentials {
	creds := search.Credentials{
		GoogleAPIKey:       p.Google.APIKey,
		GoogleCX:           p.Google.ExtraKeys["cx"],
		BingAPIKey:         p.Bing.APIKey,
		BraveAPIKey:        p.Brave.APIKey,
		CourtListenerToken: p.CourtListener.APIKey,
	}
	if v := override["GOOGLE_API_KEY"]; v != "" {
		creds.GoogleAPIKey = v
	}
	if v := override["GOOGLE_CX"]; v != "" {
		creds.GoogleCX = v
	}
	if v := override["BING_API_KEY"]; v != "" {
		creds.BingAPIKey = v
	}
	if v := override["BRAVE_SEARCH_API_KEY"]; v != "" {
		creds.BraveAPIKey = v
	}
	if v := override["COURTLISTENER_API_KEY"]; v != "" {
		creds.CourtListenerToken = v
	}
	return creds
}

// validationIssue is one field-level problem, per spec.md §4.7.1's
// "standard issue list". No validation library appears anywhere in the
// corpus, so this small struct-and-slice shape is hand-rolled rather than
// adopting a third-party schema validator; see DESIGN.md.
type validationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validateCreateTaskRequest(req createTaskRequest) []validationIssue {
	var issues []validationIssue
	if strings.TrimSpace(req.RequestParams.InitialQuery) == "" {
		issues = append(issues, validationIssue{Field: "request_params.initial_query", Message: "required"})
	}
	if req.RequestParams.MaxHops < 0 {
		issues = append(issues, validationIssue{Field: "request_params.max_hops", Message: "must be >= 0"})
	}
	if req.RequestParams.ChunkOverlap < 0 {
		issues = append(issues, validationIssue{Field: "request_params.chunk_overlap", Message: "must be >= 0"})
	}
	return issues
}

// CreateTaskHandler implements POST /research_tasks, per spec.md §4.7/§6.
func (h *Handlers) CreateTaskHandler(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	if issues := validateCreateTaskRequest(req); len(issues) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"issues": issues})
	}

	defaultReasoning := llmadapter.ModelInfo{
		Name: h.Services.Config.LLM.DefaultReasoningModel.Name, Provider: h.Services.Config.LLM.DefaultReasoningModel.Provider,
		Temperature: h.Services.Config.LLM.DefaultReasoningModel.Temperature, ContextWindow: h.Services.Config.LLM.DefaultReasoningModel.ContextWindow,
	}
	defaultSynthesis := llmadapter.ModelInfo{
		Name: h.Services.Config.LLM.DefaultSynthesisModel.Name, Provider: h.Services.Config.LLM.DefaultSynthesisModel.Provider,
		Temperature: h.Services.Config.LLM.DefaultSynthesisModel.Temperature, ContextWindow: h.Services.Config.LLM.DefaultSynthesisModel.ContextWindow,
	}

	params := graph.RequestParams{
		InitialQuery:        req.RequestParams.InitialQuery,
		SearchProviders:     req.RequestParams.SearchProviders,
		ReasoningModel:      req.RequestParams.ReasoningModelInfo.toModelInfo(defaultReasoning),
		SynthesisModel:      req.RequestParams.SynthesisModelInfo.toModelInfo(defaultSynthesis),
		MaxHops:             req.RequestParams.MaxHops,
		MaxQueriesPerHop:    req.RequestParams.MaxQueriesPerHop,
		MaxURLsPerHop:       req.RequestParams.MaxURLsPerHop,
		URLExplorationDepth: req.RequestParams.URLExplorationDepth,
		ChunkSize:           req.RequestParams.ChunkSize,
		ChunkOverlap:        req.RequestParams.ChunkOverlap,
		TopK:                req.RequestParams.TopK,
		DocumentFocused:     req.RequestParams.DocumentFocused,
		DateContextOverride: req.RequestParams.DateContextOverride,
	}

	creds := resolveSearchCredentials(h.Services.Config.Providers, req.APIConfig)

	taskID := uuid.NewString()
	cancel := graph.NewCancelSignal(context.Background())
	state := graph.NewOverallState(taskID, req.UserID, params, creds, cancel)
	events := graph.NewEventQueue(64)

	rec := h.Registry.Create(taskID, req.UserID, state, events)

	g := graph.New(nil)
	go Run(cancel.Ctx(), h.Registry, rec, g, h.Services)

	return c.JSON(http.StatusAccepted, map[string]any{
		"task_id":    taskID,
		"status":     "pending",
		"stream_url": fmt.Sprintf("/research_tasks/%s/stream", taskID),
		"cancel_url": fmt.Sprintf("/research_tasks/%s/cancel", taskID),
	})
}

// CancelTaskHandler implements POST /research_tasks/{id}/cancel.
func (h *Handlers) CancelTaskHandler(c echo.Context) error {
	id, err := taskIDFromPath(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task id"})
	}
	rec := h.Registry.Get(id)
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown task"})
	}
	if rec.Status == StatusComplete || rec.Status == StatusError || rec.Status == StatusCancelled {
		return c.JSON(http.StatusOK, map[string]string{"task_id": id, "status": "already_completed"})
	}
	rec.State.Cancel.Set()
	return c.JSON(http.StatusOK, map[string]string{"task_id": id, "status": "cancellation_requested"})
}

// StatusHandler implements GET /research_tasks/{id}/status.
func (h *Handlers) StatusHandler(c echo.Context) error {
	id, err := taskIDFromPath(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task id"})
	}
	rec := h.Registry.Get(id)
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown task"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"task_id":          id,
		"status":           rec.Status,
		"progress_message": rec.Message,
	})
}

// HealthHandler implements GET /health.
func (h *Handlers) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type ingestDocumentsRequest struct {
	Documents []struct {
		Text     string         `json:"text"`
		Metadata map[string]any `json:"metadata"`
	} `json:"documents"`
}

// IngestDocumentsHandler implements POST /tasks/{task_id}/ingest_documents.
// Document parsing (PDF/DOCX/XLSX) is explicitly out of scope (spec.md
// §1); the handler only accepts already-parsed text and stores it under
// the task id as group, per spec.md §6.
func (h *Handlers) IngestDocumentsHandler(c echo.Context) error {
	taskID, err := taskIDFromPath(c.Param("task_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task id"})
	}
	var req ingestDocumentsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}

	docs := make([]vectorstore.Document, 0, len(req.Documents))
	docID := uuid.NewString()
	for _, d := range req.Documents {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		docs = append(docs, vectorstore.Document{
			Text: d.Text, Metadata: d.Metadata,
			IsFromUploadedDoc: true, OriginalDocumentID: docID,
		})
	}

	count, err := h.Services.Vector.Add(c.Request().Context(), taskID, docs, h.Services.Embedder, 1200, 200)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"chunks_added": count})
}

type vectorAddRequest struct {
	GroupID   string `json:"group_id"`
	Documents []struct {
		Text     string         `json:"text"`
		Metadata map[string]any `json:"metadata"`
	} `json:"documents"`
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// VectorAddHandler implements POST /vector/documents.
func (h *Handlers) VectorAddHandler(c echo.Context) error {
	var req vectorAddRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	size, overlap := req.ChunkSize, req.ChunkOverlap
	if size <= 0 {
		size = 1200
	}

	docs := make([]vectorstore.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, vectorstore.Document{Text: d.Text, Metadata: d.Metadata})
	}

	count, err := h.Services.Vector.Add(c.Request().Context(), req.GroupID, docs, h.Services.Embedder, size, overlap)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"chunks_added": count})
}

type vectorSearchRequest struct {
	GroupID        string         `json:"group_id"`
	Query          string         `json:"query"`
	FTSQuery       string         `json:"fts_query"`
	TopK           int            `json:"top_k"`
	MetadataFilter map[string]any `json:"metadata_filter"`
}

// VectorSearchHandler implements POST /vector/search.
func (h *Handlers) VectorSearchHandler(c echo.Context) error {
	var req vectorSearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}

	opts := vectorstore.SearchOptions{GroupID: req.GroupID, FTSQuery: req.FTSQuery, TopK: req.TopK, MetadataFilter: req.MetadataFilter}
	if req.Query != "" {
		vecs, err := h.Services.Embedder.Embed(c.Request().Context(), []string{req.Query})
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if len(vecs) > 0 {
			opts.Vector = vecs[0]
		}
	}

	results, err := h.Services.Vector.Search(c.Request().Context(), opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

type vectorDeleteRequest struct {
	GroupID string `json:"group_id"`
}

// VectorDeleteByGroupHandler implements POST /vector/delete_by_group.
func (h *Handlers) VectorDeleteByGroupHandler(c echo.Context) error {
	var req vectorDeleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	if err := h.Services.Vector.DeleteByGroup(c.Request().Context(), req.GroupID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

type embedTextsRequest struct {
	Texts []string `json:"texts"`
}

// VectorEmbedTextsHandler implements POST /vector/embed-texts.
func (h *Handlers) VectorEmbedTextsHandler(c echo.Context) error {
	var req embedTextsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	vecs, err := h.Services.Embedder.Embed(c.Request().Context(), req.Texts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"embeddings": vecs})
}
