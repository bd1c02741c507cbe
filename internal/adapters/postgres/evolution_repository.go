package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

const runColumns = `id, name, dataset, strategy, status, state, labels,
	baseline_accuracy, best_accuracy, best_f1, best_prompt, iterations, max_iterations,
	converged, validation_accuracy, validation_f1, error, config,
	started_at, completed_at, created_at, updated_at`

// EvolutionRepository stores runs and their iteration records. It also
// serves as a TraceStore, writing the final run row and every record in one
// transaction.
type EvolutionRepository struct {
	BaseRepository
	tx ports.TransactionManager
}

var (
	_ ports.EvolutionRepository = (*EvolutionRepository)(nil)
	_ ports.TraceStore          = (*EvolutionRepository)(nil)
)

func NewEvolutionRepository(pool *pgxpool.Pool) *EvolutionRepository {
	return &EvolutionRepository{
		BaseRepository: NewBaseRepository(pool),
		tx:             NewTransactionManager(pool),
	}
}

func (r *EvolutionRepository) CreateRun(ctx context.Context, run *models.EvolutionRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	labels, config, err := encodeRunJSON(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO evolution_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = r.conn(ctx).Exec(ctx, query,
		run.ID,
		run.Name,
		run.Dataset,
		run.Strategy,
		run.Status,
		string(run.State),
		labels,
		run.BaselineAccuracy,
		run.BestAccuracy,
		run.BestF1,
		nullString(run.BestPrompt),
		run.Iterations,
		run.MaxIterations,
		run.Converged,
		nullFloat(run.ValidationAccuracy),
		nullFloat(run.ValidationF1),
		nullString(run.Error),
		config,
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (r *EvolutionRepository) UpdateRun(ctx context.Context, run *models.EvolutionRun) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	labels, config, err := encodeRunJSON(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE evolution_runs
		SET status = $1, state = $2, labels = $3, baseline_accuracy = $4, best_accuracy = $5,
			best_f1 = $6, best_prompt = $7, iterations = $8, converged = $9,
			validation_accuracy = $10, validation_f1 = $11, error = $12, config = $13,
			completed_at = $14, updated_at = $15
		WHERE id = $16 AND deleted_at IS NULL`

	result, err := r.conn(ctx).Exec(ctx, query,
		run.Status,
		string(run.State),
		labels,
		run.BaselineAccuracy,
		run.BestAccuracy,
		run.BestF1,
		nullString(run.BestPrompt),
		run.Iterations,
		run.Converged,
		nullFloat(run.ValidationAccuracy),
		nullFloat(run.ValidationF1),
		nullString(run.Error),
		config,
		run.CompletedAt,
		run.UpdatedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrRunNotFound, run.ID)
	}
	return nil
}

func (r *EvolutionRepository) GetRun(ctx context.Context, id string) (*models.EvolutionRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + runColumns + ` FROM evolution_runs WHERE id = $1 AND deleted_at IS NULL`

	run, err := scanRun(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if checkNoRows(err) {
			return nil, domain.NewDomainError(domain.ErrRunNotFound, id)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (r *EvolutionRepository) ListRuns(ctx context.Context, status string, limit, offset int) ([]*models.EvolutionRun, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, 200)
	offset = max(offset, 0)

	query := `SELECT ` + runColumns + ` FROM evolution_runs WHERE deleted_at IS NULL`
	args := []any{}
	argPos := 1
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*models.EvolutionRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *EvolutionRepository) SaveIteration(ctx context.Context, runID string, record models.IterationRecord) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO evolution_iterations (
			run_id, iteration, prompt, accuracy, macro_precision, macro_recall, macro_f1
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, iteration) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			accuracy = EXCLUDED.accuracy,
			macro_precision = EXCLUDED.macro_precision,
			macro_recall = EXCLUDED.macro_recall,
			macro_f1 = EXCLUDED.macro_f1`

	_, err := r.conn(ctx).Exec(ctx, query,
		runID,
		record.Iteration,
		record.Prompt,
		record.Accuracy,
		record.Precision,
		record.Recall,
		record.F1,
	)
	if err != nil {
		return fmt.Errorf("save iteration %d of run %s: %w", record.Iteration, runID, err)
	}
	return nil
}

func (r *EvolutionRepository) GetIterations(ctx context.Context, runID string) ([]models.IterationRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT iteration, prompt, accuracy, macro_precision, macro_recall, macro_f1
		FROM evolution_iterations
		WHERE run_id = $1
		ORDER BY iteration ASC`

	rows, err := r.conn(ctx).Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.IterationRecord, 0)
	for rows.Next() {
		var rec models.IterationRecord
		if err := rows.Scan(&rec.Iteration, &rec.Prompt, &rec.Accuracy, &rec.Precision, &rec.Recall, &rec.F1); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetTrace rebuilds the trace of a stored run.
func (r *EvolutionRepository) GetTrace(ctx context.Context, runID string) (*models.RunTrace, error) {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := r.GetIterations(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &models.RunTrace{RunID: runID, Records: records, BestPromptByF1: run.BestPrompt}, nil
}

// SaveTrace writes the final run row and all iteration records atomically.
func (r *EvolutionRepository) SaveTrace(ctx context.Context, run *models.EvolutionRun, trace *models.RunTrace) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.UpdateRun(ctx, run); err != nil {
			return err
		}
		for _, rec := range trace.Records {
			if err := r.SaveIteration(ctx, run.ID, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeRunJSON(run *models.EvolutionRun) (labels, config []byte, err error) {
	labelList := run.Labels
	if labelList == nil {
		labelList = []string{}
	}
	if labels, err = json.Marshal(labelList); err != nil {
		return nil, nil, fmt.Errorf("encode labels: %w", err)
	}
	if config, err = json.Marshal(run.Config); err != nil {
		return nil, nil, fmt.Errorf("encode config: %w", err)
	}
	return labels, config, nil
}

func scanRun(row pgx.Row) (*models.EvolutionRun, error) {
	var run models.EvolutionRun
	var state string
	var labels, config []byte
	var bestPrompt, errMsg sql.NullString
	var validationAccuracy, validationF1 sql.NullFloat64
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.Dataset,
		&run.Strategy,
		&run.Status,
		&state,
		&labels,
		&run.BaselineAccuracy,
		&run.BestAccuracy,
		&run.BestF1,
		&bestPrompt,
		&run.Iterations,
		&run.MaxIterations,
		&run.Converged,
		&validationAccuracy,
		&validationF1,
		&errMsg,
		&config,
		&run.StartedAt,
		&completedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.State = models.RunState(state)
	run.BestPrompt = getString(bestPrompt)
	run.Error = getString(errMsg)
	run.ValidationAccuracy = getFloatPtr(validationAccuracy)
	run.ValidationF1 = getFloatPtr(validationF1)
	run.CompletedAt = getTimePtr(completedAt)
	if err := unmarshalJSONField(labels, &run.Labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if err := unmarshalJSONField(config, &run.Config); err != nil || run.Config == nil {
		run.Config = make(map[string]any)
	}
	return &run, nil
}
