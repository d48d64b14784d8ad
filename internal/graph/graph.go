package graph

import "context"

// Graph runs DefaultStages (or a caller-supplied override, mainly for
// tests) in order against one task's OverallState, stopping early once a
// stage marks the state terminal or the task is cancelled.
type Graph struct {
	stages []Stage
}

// New builds a Graph over stages. A nil/empty slice uses DefaultStages.
func New(stages []Stage) *Graph {
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &Graph{stages: stages}
}

// Run drives state through every stage, closing events when done. Per
// spec.md §5, each stage is a suspension point: Run checks cancellation
// before every stage and stops if it was requested mid-run, emitting a
// cancelled event if no terminal event has been enqueued yet.
func (g *Graph) Run(ctx context.Context, state *OverallState, svc *Services, events *EventQueue) {
	defer events.Close()

	for _, stage := range g.stages {
		if state.Cancel.IsSet() {
			if !state.terminalEmitted {
				events.Push(&Event{Type: EventCancelled, Message: "task cancelled"})
				state.terminalEmitted = true
			}
			return
		}

		stage(ctx, state, svc, events)

		if state.terminalEmitted {
			return
		}
	}
}
