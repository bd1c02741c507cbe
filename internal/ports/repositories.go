package ports

import (
	"context"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

// EvolutionRepository persists evolution runs and their iteration records.
type EvolutionRepository interface {
	CreateRun(ctx context.Context, run *models.EvolutionRun) error
	UpdateRun(ctx context.Context, run *models.EvolutionRun) error
	GetRun(ctx context.Context, id string) (*models.EvolutionRun, error)
	ListRuns(ctx context.Context, status string, limit, offset int) ([]*models.EvolutionRun, error)

	SaveIteration(ctx context.Context, runID string, record models.IterationRecord) error
	GetIterations(ctx context.Context, runID string) ([]models.IterationRecord, error)
}

// TraceStore persists the finished trace of a run.
type TraceStore interface {
	SaveTrace(ctx context.Context, run *models.EvolutionRun, trace *models.RunTrace) error
}

// BestPromptExporter writes the chosen prompt text for reuse outside the engine.
type BestPromptExporter interface {
	ExportBestPrompt(ctx context.Context, prompt string) error
}

// DatasetProvider yields the training and held-out validation splits.
// Validation may be empty.
type DatasetProvider interface {
	Load(ctx context.Context) (train, validation *models.Dataset, err error)
}

// IDGenerator generates unique IDs for entities
type IDGenerator interface {
	// GenerateRunID generates a new evolution run ID (evo_xxx)
	GenerateRunID() string
}

// TransactionManager runs a function inside a database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
