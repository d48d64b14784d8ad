package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/search"
)

func fakeLLMServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "x", "object": "chat.completion", "created": 1, "model": "grok-4",
			"choices": []map[string]any{{
				"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateSearchQueriesParsesJSONArray(t *testing.T) {
	srv := fakeLLMServer(t, `{"queries": ["quantum supremacy definition", "quantum supremacy 2019 google"]}`)

	state := newTestState(t)
	state.Params.ReasoningModel = llmadapter.ModelInfo{Name: "grok-4", Provider: "xai"}
	state.Params.MaxQueriesPerHop = 2
	svc := &Services{LLM: llmadapter.New(llmadapter.Config{})}
	svc.Config.LLM.XAI.BaseURL = srv.URL

	GenerateSearchQueries(context.Background(), state, svc, NewEventQueue(8))

	if len(state.CurrentHopQueries) != 2 {
		t.Fatalf("expected 2 queries, got %v", state.CurrentHopQueries)
	}
	if len(state.TokenUsage) != 1 || state.TokenUsage[0].Usage.TotalTokens != 7 {
		t.Fatalf("expected usage recorded, got %+v", state.TokenUsage)
	}
}

func TestGenerateSearchQueriesFallsBackOnMalformedJSON(t *testing.T) {
	srv := fakeLLMServer(t, `{"queries": "not a list"}`)

	state := newTestState(t)
	state.Params.ReasoningModel = llmadapter.ModelInfo{Name: "grok-4", Provider: "xai"}
	svc := &Services{LLM: llmadapter.New(llmadapter.Config{})}
	svc.Config.LLM.XAI.BaseURL = srv.URL

	GenerateSearchQueries(context.Background(), state, svc, NewEventQueue(8))

	if len(state.CurrentHopQueries) != 1 || state.CurrentHopQueries[0] != state.OriginalQuery {
		t.Fatalf("expected fallback to original query, got %v", state.CurrentHopQueries)
	}
}

type fakeSearchProvider struct {
	name  string
	items []search.ResultItem
}

func (f fakeSearchProvider) Name() string { return f.name }
func (f fakeSearchProvider) Search(ctx context.Context, query string, limit int, creds search.Credentials) ([]search.ResultItem, error) {
	return f.items, nil
}

func TestWebSearchAppendsResultsAndMarksExecuted(t *testing.T) {
	state := newTestState(t)
	state.CurrentHopQueries = []string{"quantum supremacy"}

	provider := fakeSearchProvider{name: "duckduckgo", items: []search.ResultItem{
		{URL: "https://example.com/a", Title: "A", Provider: "duckduckgo"},
	}}
	svc := &Services{Search: search.NewRegistry([]search.Provider{provider}, nil, nil)}

	WebSearch(context.Background(), state, svc, NewEventQueue(8))

	if len(state.SearchResultsThisHop) != 1 {
		t.Fatalf("expected 1 result, got %d", len(state.SearchResultsThisHop))
	}
	if !state.ExecutedQueries["quantum supremacy"] {
		t.Fatalf("expected query marked executed")
	}
}
