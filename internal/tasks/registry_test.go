package tasks

import (
	"context"
	"testing"

	"github.com/livesearch/orchestrator/internal/graph"
	"github.com/livesearch/orchestrator/internal/search"
)

func newTestRecord(t *testing.T, reg *Registry, id string) *Record {
	t.Helper()
	cancel := graph.NewCancelSignal(context.Background())
	state := graph.NewOverallState(id, "user-1", graph.RequestParams{InitialQuery: "q"}, search.Credentials{}, cancel)
	events := graph.NewEventQueue(4)
	return reg.Create(id, "user-1", state, events)
}

func TestRegistryCreateGet(t *testing.T) {
	reg := NewRegistry()
	rec := newTestRecord(t, reg, "task-1")
	if rec.Status != StatusPending {
		t.Fatalf("new record status = %v, want pending", rec.Status)
	}
	got := reg.Get("task-1")
	if got != rec {
		t.Fatalf("Get returned a different record")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry()
	if reg.Get("missing") != nil {
		t.Fatalf("Get(missing) should return nil")
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	newTestRecord(t, reg, "task-2")
	reg.Remove("task-2")
	if reg.Get("task-2") != nil {
		t.Fatalf("record should be gone after Remove")
	}
}

func TestRegistrySetStatus(t *testing.T) {
	reg := NewRegistry()
	rec := newTestRecord(t, reg, "task-3")
	reg.setStatus("task-3", StatusRunning, "working")
	if rec.Status != StatusRunning || rec.Message != "working" {
		t.Fatalf("setStatus did not update record: %+v", rec)
	}
}

func TestRegistrySetStatusUnknown(t *testing.T) {
	reg := NewRegistry()
	// Must not panic when the id is unknown.
	reg.setStatus("nope", StatusError, "boom")
}
