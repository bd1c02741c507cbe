package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/dto"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/application/services"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/config"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

type staticRuns struct {
	runs []*models.EvolutionRun
}

func (s *staticRuns) GetRun(ctx context.Context, id string) (*models.EvolutionRun, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.NewDomainError(domain.ErrRunNotFound, id)
}

func (s *staticRuns) ListRuns() []*models.EvolutionRun {
	return s.runs
}

func newTestServer(t *testing.T, runs *staticRuns) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, "test", runs, nil, services.NewEvolutionProgressPublisher(), nil, logger)
}

func TestServer_Routes(t *testing.T) {
	done := models.NewEvolutionRun("evo_done", "nightly", "reviews", models.StrategyStandard, 5)
	done.MarkCompleted()
	srv := newTestServer(t, &staticRuns{runs: []*models.EvolutionRun{done}})

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "health", path: "/health", wantCode: http.StatusOK, wantBody: `"status":"ok"`},
		{name: "metrics", path: "/metrics", wantCode: http.StatusOK, wantBody: "promptevo_http_requests_total"},
		{name: "list runs", path: "/api/v1/runs", wantCode: http.StatusOK, wantBody: `"evo_done"`},
		{name: "get run", path: "/api/v1/runs/evo_done", wantCode: http.StatusOK, wantBody: `"status":"completed"`},
		{name: "missing run", path: "/api/v1/runs/evo_nope", wantCode: http.StatusNotFound, wantBody: "not_found"},
		{name: "trace without database", path: "/api/v1/runs/evo_done/trace", wantCode: http.StatusNotImplemented},
		{name: "stream of finished run", path: "/api/v1/runs/evo_done/stream", wantCode: http.StatusOK, wantBody: "event: connected"},
		{name: "unknown route", path: "/api/v2/runs", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// metrics are registered lazily, so make sure one request has been counted
			srv.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", tt.path, nil))

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_ListRunsShape(t *testing.T) {
	srv := newTestServer(t, &staticRuns{})

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/runs", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.RunListResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.NotNil(t, resp.Runs)
	assert.Empty(t, resp.Runs)
	assert.Equal(t, 0, resp.Total)
}

func TestServer_CORS(t *testing.T) {
	srv := newTestServer(t, &staticRuns{})

	req := httptest.NewRequest("OPTIONS", "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "GET"))
}
