package graph

import (
	"context"
	"testing"

	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/search"
)

func TestMarkVisitedIsIdempotent(t *testing.T) {
	state := NewOverallState("task-1", "user-1", RequestParams{InitialQuery: "q"}, search.Credentials{}, NewCancelSignal(context.Background()))

	if !state.MarkVisited("https://a.example") {
		t.Fatalf("expected first mark to succeed")
	}
	if state.MarkVisited("https://a.example") {
		t.Fatalf("expected second mark of same url to report already-visited")
	}
}

func TestCancelSignalIsIdempotent(t *testing.T) {
	c := NewCancelSignal(context.Background())
	if c.IsSet() {
		t.Fatalf("expected unset initially")
	}
	c.Set()
	c.Set()
	if !c.IsSet() {
		t.Fatalf("expected set after Set()")
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("expected Done() channel closed")
	}
}

func TestAddUsageAccumulatesTotals(t *testing.T) {
	state := NewOverallState("task-1", "user-1", RequestParams{}, search.Credentials{}, NewCancelSignal(context.Background()))
	state.addUsage("stage_a", llmadapter.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	state.addUsage("stage_b", llmadapter.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})

	total := state.totalUsage()
	if total.PromptTokens != 13 || total.CompletionTokens != 7 || total.TotalTokens != 20 {
		t.Fatalf("unexpected total: %+v", total)
	}
}
