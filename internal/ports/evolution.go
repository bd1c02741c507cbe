package ports

import (
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

// Progress event types
const (
	EventStarted    = "started"
	EventEvaluated  = "evaluated"
	EventRevised    = "revised"
	EventIteration  = "iteration"
	EventValidation = "validation"
	EventCompleted  = "completed"
	EventFailed     = "failed"
)

// EvolutionProgressEvent represents a progress update during an evolution run.
// This is the canonical event type for pub/sub progress notifications.
type EvolutionProgressEvent struct {
	Type          string          `json:"type"`
	RunID         string          `json:"run_id"`
	State         models.RunState `json:"state"`
	Iteration     int             `json:"iteration"`
	MaxIterations int             `json:"max_iterations"`
	Accuracy      float64         `json:"accuracy"`
	F1            float64         `json:"f1"`
	BestAccuracy  float64         `json:"best_accuracy"`
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
	Timestamp     string          `json:"timestamp"`
}

// ProgressPublisher fans progress events out to subscribers.
type ProgressPublisher interface {
	Publish(event EvolutionProgressEvent)
}

// ProgressSubscriber receives progress events for a run.
type ProgressSubscriber interface {
	Subscribe(runID string) <-chan EvolutionProgressEvent
	Unsubscribe(runID string, ch <-chan EvolutionProgressEvent)
}
