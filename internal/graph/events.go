package graph

import (
	"sync"
	"time"
)

// EventType is the SSE event discriminator (spec.md §6).
type EventType string

const (
	EventHeartbeat     EventType = "heartbeat"
	EventProgress      EventType = "progress"
	EventMarkdownChunk EventType = "markdown_chunk"
	EventError         EventType = "error"
	EventCancelled     EventType = "cancelled"
	EventComplete      EventType = "complete"
)

// Event is the discriminated union the graph enqueues and the SSE gateway
// (C7) serializes. Field population follows spec.md §6's per-type shapes;
// unused fields for a given Type are left zero.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// progress
	Stage        string
	Message      string
	Details      map[string]any
	IsKeySummary bool

	// markdown_chunk
	ChunkID      string
	Content      string
	IsFinalChunk bool

	// error
	ErrorMessage string
	IsFatal      bool

	// complete
	TokenUsage      []TokenUsageEntry
	ReportSources   []ReportSource
	DurationDisplay string
}

// EventQueue is a task's single-producer (the graph), single-consumer
// (the SSE generator) event channel. Closing the channel is the idiomatic
// Go substitute for the original's "None sentinel" read from the queue:
// the SSE generator's range/receive sees the channel close and exits.
type EventQueue struct {
	mu     sync.Mutex
	ch     chan *Event
	closed bool
}

// NewEventQueue allocates a queue with the given buffer depth.
func NewEventQueue(buffer int) *EventQueue {
	if buffer <= 0 {
		buffer = 32
	}
	return &EventQueue{ch: make(chan *Event, buffer)}
}

// Push enqueues e, stamping its timestamp if unset. A push after Close is
// a silent no-op: stages must not block or panic once the consumer has
// gone away.
func (q *EventQueue) Push(e *Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.ch <- e
}

// Close closes the underlying channel exactly once.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// C returns the receive side of the queue for the SSE generator to range
// over.
func (q *EventQueue) C() <-chan *Event { return q.ch }

// progress is a small helper so stages read uniformly.
func progress(events *EventQueue, stage, message string, details map[string]any) {
	events.Push(&Event{Type: EventProgress, Stage: stage, Message: message, Details: details})
}

// fatalError enqueues a fatal error event and sets cancellation, per
// spec.md's "Stages never raise; they either produce a delta or enqueue a
// terminal error event and set cancelled."
func fatalError(state *OverallState, events *EventQueue, stage, message string) {
	events.Push(&Event{Type: EventError, Stage: stage, ErrorMessage: message, IsFatal: true})
	state.Cancel.Set()
	state.terminalEmitted = true
}
