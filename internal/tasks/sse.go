package tasks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/livesearch/orchestrator/internal/graph"
)

// DefaultHeartbeatInterval is used when config doesn't override it.
var DefaultHeartbeatInterval = 15 * time.Second

// writeSSEFrame writes one "event: TYPE\ndata: JSON\n\n" frame and
// flushes, following internal/agents/stream.go's per-line "data: "
// writer and internal/a2a/sse/sse.go's SSEWriter header setup.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("tasks: failed to marshal SSE payload")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
}

func eventPayload(e *graph.Event) (string, any) {
	switch e.Type {
	case graph.EventProgress:
		return "progress", map[string]any{
			"stage": e.Stage, "message": e.Message, "details": e.Details, "is_key_summary": e.IsKeySummary,
		}
	case graph.EventMarkdownChunk:
		return "markdown_chunk", map[string]any{
			"chunk_id": e.ChunkID, "content": e.Content, "is_final_chunk": e.IsFinalChunk,
		}
	case graph.EventError:
		return "error", map[string]any{"error_message": e.ErrorMessage, "stage": e.Stage, "is_fatal": e.IsFatal}
	case graph.EventCancelled:
		return "cancelled", map[string]any{"message": e.Message}
	case graph.EventComplete:
		return "complete", map[string]any{
			"message": e.Message, "detailed_token_usage": e.TokenUsage,
			"report_sources": e.ReportSources, "stat_duration_display": e.DurationDisplay,
		}
	default:
		return "heartbeat", map[string]any{"timestamp": e.Timestamp}
	}
}

func isTerminal(t graph.EventType) bool {
	return t == graph.EventComplete || t == graph.EventError || t == graph.EventCancelled
}

// StreamHandler implements GET /research_tasks/{id}/stream, per spec.md
// §4.7's wait-on-{queue, heartbeat} loop.
func (h *Handlers) StreamHandler(c echo.Context) error {
	id, err := taskIDFromPath(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid task id"})
	}
	rec := h.Registry.Get(id)
	if rec == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown task"})
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "streaming unsupported")
	}

	interval := h.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	writeSSEFrame(w, flusher, "heartbeat", map[string]any{"timestamp": time.Now()})
	writeSSEFrame(w, flusher, "progress", map[string]any{"stage": "stream_start", "message": "stream opened"})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-rec.Events.C():
			if !ok {
				return nil
			}
			typ, payload := eventPayload(e)
			writeSSEFrame(w, flusher, typ, payload)
			if isTerminal(e.Type) {
				return nil
			}
		case <-ticker.C:
			writeSSEFrame(w, flusher, "heartbeat", map[string]any{"timestamp": time.Now()})
		}
	}
}
