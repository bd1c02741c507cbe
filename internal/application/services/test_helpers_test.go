package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/retry"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt/baselines"
)

// Shared mock implementations for testing

type mockIDGenerator struct {
	runCounter int
}

func (m *mockIDGenerator) GenerateRunID() string {
	m.runCounter++
	return fmt.Sprintf("evo_test%d", m.runCounter)
}

// call kinds recognised by mockLLM
const (
	callClassify = "classify"
	callAnalyze  = "analyze"
	callRevise   = "revise"
	callHybrid   = "hybrid"
)

type mockLLM struct {
	mu    sync.Mutex
	calls map[string]int
	last  map[string]ports.LLMRequest

	classify func(ctx context.Context, content string) (string, error)
	analyze  func(user string) (string, error)
	revise   func(user string) (string, error)
	hybrid   func(user string) (string, error)
}

func newMockLLM() *mockLLM {
	return &mockLLM{
		calls: make(map[string]int),
		last:  make(map[string]ports.LLMRequest),
		analyze: func(string) (string, error) {
			return "The prompt confuses the two labels.", nil
		},
	}
}

func (m *mockLLM) Chat(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
	kind := callClassify
	if len(req.Messages) > 1 {
		switch req.Messages[0].Content {
		case baselines.AnalysisSystemPrompt:
			kind = callAnalyze
		case baselines.RevisionSystemPrompt:
			kind = callRevise
		case baselines.HybridSystemPrompt:
			kind = callHybrid
		}
	}
	user := req.Messages[len(req.Messages)-1].Content

	m.mu.Lock()
	m.calls[kind]++
	m.last[kind] = req
	m.mu.Unlock()

	var fn func(string) (string, error)
	switch kind {
	case callClassify:
		if m.classify == nil {
			return nil, errors.New("classify not configured")
		}
		content, err := m.classify(ctx, user)
		if err != nil {
			return nil, err
		}
		return &ports.LLMResponse{Content: content}, nil
	case callAnalyze:
		fn = m.analyze
	case callRevise:
		fn = m.revise
	case callHybrid:
		fn = m.hybrid
	}
	if fn == nil {
		return nil, fmt.Errorf("%s not configured", kind)
	}
	content, err := fn(user)
	if err != nil {
		return nil, err
	}
	return &ports.LLMResponse{Content: content}, nil
}

func (m *mockLLM) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func (m *mockLLM) LastRequest(kind string) ports.LLMRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[kind]
}

func fastRetry(maxRetries int) retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetries:      maxRetries,
		Multiplier:      2,
	}
}

func sentimentVocab() models.Vocabulary {
	return models.Vocabulary{"positive", "negative"}
}

// sentimentDataset returns rows "row0".."row<n-1>" alternating positive and
// negative.
func sentimentDataset(n int) *models.Dataset {
	rows := make([]models.Row, n)
	for i := range rows {
		label := "positive"
		if i%2 == 1 {
			label = "negative"
		}
		rows[i] = models.Row{Text: fmt.Sprintf("row%d", i), Label: label}
	}
	return models.NewDataset("sentiment", rows)
}

// rowIndex finds the "rowN" token a formatted prompt was built from.
func rowIndex(content string) int {
	i := strings.LastIndex(content, "row")
	if i < 0 {
		return -1
	}
	var n int
	if _, err := fmt.Sscanf(content[i:], "row%d", &n); err != nil {
		return -1
	}
	return n
}

func labelFor(index int) string {
	if index%2 == 1 {
		return "negative"
	}
	return "positive"
}

func otherLabel(label string) string {
	if label == "positive" {
		return "negative"
	}
	return "positive"
}

// zeroSource makes every random draw return 0: Select always explores and
// picks index 0 while the pool size is a power of two.
type zeroSource struct{}

func (zeroSource) Uint64() uint64 { return 0 }

type recordingPublisher struct {
	mu     sync.Mutex
	events []ports.EvolutionProgressEvent
	closed []string
}

func (p *recordingPublisher) Publish(event ports.EvolutionProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Close(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, runID)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

type mockTraceStore struct {
	runs   []*models.EvolutionRun
	traces []*models.RunTrace
	err    error
}

func (m *mockTraceStore) SaveTrace(_ context.Context, run *models.EvolutionRun, trace *models.RunTrace) error {
	m.runs = append(m.runs, run)
	m.traces = append(m.traces, trace)
	return m.err
}

type mockExporter struct {
	prompts []string
}

func (m *mockExporter) ExportBestPrompt(_ context.Context, p string) error {
	m.prompts = append(m.prompts, p)
	return nil
}

type mockEvolutionRepo struct {
	mu         sync.Mutex
	created    []string
	updated    []*models.EvolutionRun
	iterations []models.IterationRecord
	stored     map[string]*models.EvolutionRun
}

func newMockEvolutionRepo() *mockEvolutionRepo {
	return &mockEvolutionRepo{stored: make(map[string]*models.EvolutionRun)}
}

func (m *mockEvolutionRepo) CreateRun(_ context.Context, run *models.EvolutionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, run.ID)
	return nil
}

func (m *mockEvolutionRepo) UpdateRun(_ context.Context, run *models.EvolutionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.updated = append(m.updated, &cp)
	return nil
}

func (m *mockEvolutionRepo) GetRun(_ context.Context, id string) (*models.EvolutionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.stored[id]; ok {
		return run, nil
	}
	return nil, errors.New("not found")
}

func (m *mockEvolutionRepo) ListRuns(context.Context, string, int, int) ([]*models.EvolutionRun, error) {
	return nil, nil
}

func (m *mockEvolutionRepo) SaveIteration(_ context.Context, _ string, record models.IterationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterations = append(m.iterations, record)
	return nil
}

func (m *mockEvolutionRepo) GetIterations(context.Context, string) ([]models.IterationRecord, error) {
	return nil, nil
}
