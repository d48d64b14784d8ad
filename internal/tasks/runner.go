package tasks

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/livesearch/orchestrator/internal/graph"
)

// TaskCleanupDelay is the grace period the done-callback waits before
// removing a finished task from the registry, giving any in-flight SSE
// reader time to drain the queue, per spec.md §4.7 ("TASK_CLEANUP_DELAY_SECONDS").
var TaskCleanupDelay = 30 * time.Second

// Run drives rec's graph to completion in the background, updates its
// status from the terminal event it observes, and schedules cleanup.
// Intended to be launched with `go Run(...)` by the /research_tasks
// handler.
func Run(ctx context.Context, reg *Registry, rec *Record, g *graph.Graph, svc *graph.Services) {
	reg.setStatus(rec.ID, StatusRunning, "")

	// A second, local subscriber mirrors terminal events into the
	// registry's status field without consuming them: the real consumer
	// is the SSE generator reading rec.Events. Since Go channels have a
	// single logical consumer, the graph is run with a duplicating tap
	// instead of two independent readers of rec.Events.
	tapped := graph.NewEventQueue(32)
	go func() {
		for e := range tapped.C() {
			rec.Events.Push(e)
			switch e.Type {
			case graph.EventComplete:
				reg.setStatus(rec.ID, StatusComplete, e.Message)
			case graph.EventError:
				reg.setStatus(rec.ID, StatusError, e.ErrorMessage)
			case graph.EventCancelled:
				reg.setStatus(rec.ID, StatusCancelled, e.Message)
			}
		}
		rec.Events.Close()
		close(rec.done)
	}()

	g.Run(ctx, rec.State, svc, tapped)

	go func() {
		<-rec.done
		time.Sleep(TaskCleanupDelay)
		reg.Remove(rec.ID)
		log.Debug().Str("task_id", rec.ID).Msg("tasks: removed finished task from registry")
	}()
}
