// Package tasks implements the Task Lifecycle / SSE Gateway (C7):
// creating, streaming, cancelling, and querying research tasks, and the
// thin HTTP surface over the vector store (C4) and document ingestion.
// The registry/handler split and the handler-struct-with-shared-state
// idiom are grounded on internal/httpapi/server.go and
// internal/httpapi/handlers.go; the SSE writer on internal/agents/stream.go
// and internal/a2a/sse/sse.go.
package tasks

import (
	"sync"
	"time"

	"github.com/livesearch/orchestrator/internal/graph"
)

// Status is a task's lifecycle state, per spec.md §3.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleting Status = "completing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Record is one task's registry entry: its state, event queue, and
// cancellation handle, plus the bookkeeping the done-callback needs.
type Record struct {
	ID        string
	UserID    string
	State     *graph.OverallState
	Events    *graph.EventQueue
	Status    Status
	Message   string
	CreatedAt time.Time
	done      chan struct{}
}

// Registry is the process-wide map of active tasks, replacing the
// source's module-level task dict with an explicit, constructor-built
// object per the transformation's "global mutable state → per-task state
// + process-scoped services" redesign (spec.md §9).
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Record
}

// NewRegistry builds an empty task registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Record)}
}

// Create registers a new pending task record.
func (r *Registry) Create(id, userID string, state *graph.OverallState, events *graph.EventQueue) *Record {
	rec := &Record{
		ID: id, UserID: userID, State: state, Events: events,
		Status: StatusPending, CreatedAt: time.Now(), done: make(chan struct{}),
	}
	r.mu.Lock()
	r.tasks[id] = rec
	r.mu.Unlock()
	return rec
}

// Get returns the record for id, or nil if unknown.
func (r *Registry) Get(id string) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[id]
}

// Remove deletes id from the registry, regardless of its status.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

// setStatus updates a record's status/message under the registry lock
// (Record itself isn't separately locked; status transitions only ever
// happen from the task's own driving goroutine or the cancel handler).
func (r *Registry) setStatus(id string, status Status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.tasks[id]; ok {
		rec.Status = status
		rec.Message = message
	}
}
