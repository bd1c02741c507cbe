package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/dto"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// RunReader is the read side of the evolution service.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*models.EvolutionRun, error)
	ListRuns() []*models.EvolutionRun
}

// TraceReader loads persisted traces.
type TraceReader interface {
	GetTrace(ctx context.Context, runID string) (*models.RunTrace, error)
}

type RunsHandler struct {
	runs   RunReader
	traces TraceReader
}

// NewRunsHandler creates a runs handler. traces may be nil when no
// database is configured.
func NewRunsHandler(runs RunReader, traces TraceReader) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		traces: traces,
	}
}

// List handles GET /api/v1/runs?status=&limit=&offset=
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.RunStatusRunning, models.RunStatusCompleted, models.RunStatusFailed:
	default:
		respondError(w, "validation_error", "status must be running, completed or failed", http.StatusBadRequest)
		return
	}

	limit := parseIntQuery(r, "limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	filtered := make([]*models.EvolutionRun, 0)
	for _, run := range h.runs.ListRuns() {
		if status == "" || run.Status == status {
			filtered = append(filtered, run)
		}
	}

	page := []*models.EvolutionRun{}
	if offset < len(filtered) {
		end := min(offset+limit, len(filtered))
		page = filtered[offset:end]
	}

	respond(w, r, &dto.RunListResponse{
		Runs:   page,
		Total:  len(filtered),
		Limit:  limit,
		Offset: offset,
	}, http.StatusOK)
}

// Get handles GET /api/v1/runs/{id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID, ok := validateURLParam(r, w, "id", "Run ID")
	if !ok {
		return
	}

	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		respondLookupError(w, err, "Run not found")
		return
	}

	respond(w, r, run, http.StatusOK)
}

// Trace handles GET /api/v1/runs/{id}/trace
func (h *RunsHandler) Trace(w http.ResponseWriter, r *http.Request) {
	runID, ok := validateURLParam(r, w, "id", "Run ID")
	if !ok {
		return
	}

	if h.traces == nil {
		respondError(w, "not_configured", "Trace storage is not configured", http.StatusNotImplemented)
		return
	}

	trace, err := h.traces.GetTrace(r.Context(), runID)
	if err != nil {
		respondLookupError(w, err, "Trace not found")
		return
	}

	respond(w, r, dto.NewTraceResponse(trace), http.StatusOK)
}

func respondLookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, domain.ErrRunNotFound) || errors.Is(err, domain.ErrNotFound) {
		respondError(w, "not_found", notFound, http.StatusNotFound)
		return
	}
	respondError(w, "internal_error", "Failed to load run", http.StatusInternalServerError)
}
