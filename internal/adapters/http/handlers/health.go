package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/encoding"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	version string
	db      Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(version string, db Pinger) *HealthHandler {
	return &HealthHandler{
		version: version,
		db:      db,
		timeout: 5 * time.Second,
	}
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services,omitempty"`
}

// Handle reports liveness plus database reachability when one is configured
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		response.Services = map[string]string{"database": "healthy"}
		if err := h.db.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Services["database"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	_ = encoding.WriteJSON(w, status, response)
}
