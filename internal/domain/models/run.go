package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
)

// EvolutionRun status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Revision strategies
const (
	StrategyStandard = "standard"
	StrategyHybrid   = "hybrid"
)

// EvolutionRun is the bookkeeping for one evolution of one prompt lineage
// over one dataset.
type EvolutionRun struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Dataset            string         `json:"dataset"`
	Strategy           string         `json:"strategy"`
	Status             string         `json:"status"`
	State              RunState       `json:"state"`
	Labels             []string       `json:"labels"`
	BaselineAccuracy   float64        `json:"baseline_accuracy"`
	BestAccuracy       float64        `json:"best_accuracy"`
	BestF1             float64        `json:"best_f1"`
	BestPrompt         string         `json:"best_prompt,omitempty"`
	Iterations         int            `json:"iterations"`
	MaxIterations      int            `json:"max_iterations"`
	Converged          bool           `json:"converged"`
	ValidationAccuracy *float64       `json:"validation_accuracy,omitempty"`
	ValidationF1       *float64       `json:"validation_f1,omitempty"`
	Error              string         `json:"error,omitempty"`
	Config             map[string]any `json:"config,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func NewEvolutionRun(id, name, dataset, strategy string, maxIterations int) *EvolutionRun {
	now := time.Now().UTC()
	return &EvolutionRun{
		ID:            id,
		Name:          name,
		Dataset:       dataset,
		Strategy:      strategy,
		Status:        RunStatusRunning,
		State:         RunStateInit,
		MaxIterations: maxIterations,
		Config:        make(map[string]any),
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TransitionTo moves the run to the next state if the transition is allowed.
func (r *EvolutionRun) TransitionTo(state RunState) error {
	if err := ValidateRunTransition(r.State, state); err != nil {
		return err
	}
	r.State = state
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *EvolutionRun) MarkCompleted() {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.State = RunStateDone
	r.CompletedAt = &now
	r.UpdatedAt = now
}

func (r *EvolutionRun) MarkFailed(err error) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.State = RunStateFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// IterationRecord is one entry of the persisted run trace.
type IterationRecord struct {
	Iteration int     `json:"iteration" msgpack:"iteration"`
	Prompt    string  `json:"prompt" msgpack:"prompt"`
	Accuracy  float64 `json:"accuracy" msgpack:"accuracy"`
	Precision float64 `json:"precision" msgpack:"precision"`
	Recall    float64 `json:"recall" msgpack:"recall"`
	F1        float64 `json:"f1" msgpack:"f1"`
}

func NewIterationRecord(iteration int, prompt string, m Metrics) IterationRecord {
	return IterationRecord{
		Iteration: iteration,
		Prompt:    prompt,
		Accuracy:  m.Accuracy,
		Precision: m.Precision,
		Recall:    m.Recall,
		F1:        m.F1,
	}
}

// BestPromptMarkerKey is the key of the trailing object of a serialized trace.
const BestPromptMarkerKey = "BestPromptByF1"

// RunTrace is the persisted history of a run. It serializes as a JSON list
// of iteration records followed by a {"BestPromptByF1": ...} marker.
type RunTrace struct {
	RunID          string            `json:"-" msgpack:"run_id"`
	Records        []IterationRecord `json:"-" msgpack:"records"`
	BestPromptByF1 string            `json:"-" msgpack:"best_prompt_by_f1"`
}

// BestByF1 returns the record with the highest F1, the earliest on ties.
func (t *RunTrace) BestByF1() (IterationRecord, error) {
	if len(t.Records) == 0 {
		return IterationRecord{}, domain.ErrNoIterations
	}
	best := t.Records[0]
	for _, rec := range t.Records[1:] {
		if rec.F1 > best.F1 {
			best = rec
		}
	}
	return best, nil
}

func (t RunTrace) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, len(t.Records)+1)
	for _, rec := range t.Records {
		items = append(items, rec)
	}
	items = append(items, map[string]string{BestPromptMarkerKey: t.BestPromptByF1})
	return json.Marshal(items)
}

func (t *RunTrace) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("trace is not a JSON list: %w", err)
	}
	t.Records = t.Records[:0]
	for i, item := range items {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(item, &probe); err != nil {
			return fmt.Errorf("trace item %d: %w", i, err)
		}
		if marker, ok := probe[BestPromptMarkerKey]; ok {
			if err := json.Unmarshal(marker, &t.BestPromptByF1); err != nil {
				return fmt.Errorf("trace marker: %w", err)
			}
			continue
		}
		var rec IterationRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return fmt.Errorf("trace item %d: %w", i, err)
		}
		t.Records = append(t.Records, rec)
	}
	return nil
}
