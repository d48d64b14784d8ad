package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/livesearch/orchestrator/internal/graph"
	"github.com/livesearch/orchestrator/internal/search"
)

// a single stage that immediately marks the state terminal via a fatal
// error, so Run's driven graph finishes in one step.
func failingStage(ctx context.Context, state *graph.OverallState, svc *graph.Services, events *graph.EventQueue) {
	events.Push(&graph.Event{Type: graph.EventError, Stage: "test", ErrorMessage: "boom", IsFatal: true})
	state.Cancel.Set()
}

func TestRunMirrorsTerminalStatusAndCleansUp(t *testing.T) {
	orig := TaskCleanupDelay
	TaskCleanupDelay = 10 * time.Millisecond
	defer func() { TaskCleanupDelay = orig }()

	reg := NewRegistry()
	cancel := graph.NewCancelSignal(context.Background())
	state := graph.NewOverallState("task-x", "user-1", graph.RequestParams{InitialQuery: "q"}, search.Credentials{}, cancel)
	events := graph.NewEventQueue(8)
	rec := reg.Create("task-x", "user-1", state, events)

	g := graph.New([]graph.Stage{failingStage})

	Run(context.Background(), reg, rec, g, &graph.Services{})

	var sawError bool
	for e := range rec.Events.C() {
		if e.Type == graph.EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected an error event to be forwarded to rec.Events")
	}
	if rec.Status != StatusError {
		t.Fatalf("status = %v, want StatusError", rec.Status)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if reg.Get("task-x") == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task was not removed from registry after cleanup delay")
}
