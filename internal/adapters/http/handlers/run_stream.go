package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

// RunStreamHandler handles SSE streaming for evolution progress
type RunStreamHandler struct {
	runs      RunReader
	progress  ports.ProgressSubscriber
	logger    *slog.Logger
	keepalive time.Duration
}

// NewRunStreamHandler creates a new run stream handler
func NewRunStreamHandler(runs RunReader, progress ports.ProgressSubscriber, logger *slog.Logger) *RunStreamHandler {
	return &RunStreamHandler{
		runs:      runs,
		progress:  progress,
		logger:    logger,
		keepalive: 30 * time.Second,
	}
}

// Stream handles GET /api/v1/runs/{id}/stream
// Establishes SSE connection for real-time evolution progress
func (h *RunStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	runID, ok := validateURLParam(r, w, "id", "Run ID")
	if !ok {
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		respondLookupError(w, err, "Run not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "internal_error", "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the connected event so nothing published in between is lost
	progressChan := h.progress.Subscribe(runID)
	defer h.progress.Unsubscribe(runID, progressChan)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.sendEvent(w, flusher, ports.EvolutionProgressEvent{
		Type:          "connected",
		RunID:         runID,
		State:         run.State,
		Iteration:     run.Iterations,
		MaxIterations: run.MaxIterations,
		BestAccuracy:  run.BestAccuracy,
		Status:        run.Status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})

	// A finished run never publishes again
	if run.Status != models.RunStatusRunning {
		return
	}

	h.logger.Info("progress stream established", "run_id", runID)

	keepaliveTicker := time.NewTicker(h.keepalive)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("progress stream client disconnected", "run_id", runID)
			return

		case event, ok := <-progressChan:
			if !ok {
				h.logger.Info("progress channel closed", "run_id", runID)
				return
			}

			h.sendEvent(w, flusher, event)

			if event.Type == ports.EventCompleted || event.Type == ports.EventFailed {
				h.logger.Info("progress stream finished", "run_id", runID, "status", event.Status)
				return
			}

		case <-keepaliveTicker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// sendEvent sends an SSE event to the client
func (h *RunStreamHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event ports.EvolutionProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal progress event", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	flusher.Flush()
}
