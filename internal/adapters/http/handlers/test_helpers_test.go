package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

// setURLParam adds a URL parameter to the request context (chi router style)
func setURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type mockRunReader struct {
	runs []*models.EvolutionRun
	err  error
}

func (m *mockRunReader) GetRun(ctx context.Context, id string) (*models.EvolutionRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.NewDomainError(domain.ErrRunNotFound, id)
}

func (m *mockRunReader) ListRuns() []*models.EvolutionRun {
	return m.runs
}

type mockTraceReader struct {
	traces map[string]*models.RunTrace
	err    error
}

func (m *mockTraceReader) GetTrace(ctx context.Context, runID string) (*models.RunTrace, error) {
	if m.err != nil {
		return nil, m.err
	}
	if t, ok := m.traces[runID]; ok {
		return t, nil
	}
	return nil, domain.NewDomainError(domain.ErrRunNotFound, runID)
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

var errDatabaseDown = errors.New("connection refused")

// mockSubscriber hands out one pre-filled channel per Subscribe call.
type mockSubscriber struct {
	mu           sync.Mutex
	events       []ports.EvolutionProgressEvent
	closeAfter   bool
	subscribed   []string
	unsubscribed []string
}

func (m *mockSubscriber) Subscribe(runID string) <-chan ports.EvolutionProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, runID)

	ch := make(chan ports.EvolutionProgressEvent, len(m.events)+1)
	for _, e := range m.events {
		ch <- e
	}
	if m.closeAfter {
		close(ch)
	}
	return ch
}

func (m *mockSubscriber) Unsubscribe(runID string, ch <-chan ports.EvolutionProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, runID)
}

func (m *mockSubscriber) Unsubscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unsubscribed...)
}

func newRun(id, status string, createdAt time.Time) *models.EvolutionRun {
	run := models.NewEvolutionRun(id, "run "+id, "reviews", models.StrategyStandard, 5)
	run.Status = status
	run.CreatedAt = createdAt
	return run
}
