package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/metrics"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt"
)

// EvolutionConfig configures the evolution loop
type EvolutionConfig struct {
	MaxIterations     int
	AccuracyThreshold float64
	Epsilon           float64
	Seed              uint64
	// Strategy is models.StrategyStandard or models.StrategyHybrid.
	Strategy string
	// InitialPrompt overrides the generated seed prompt when set.
	InitialPrompt       string
	TaskDescription     string
	PlaceholderSentence string
}

// DefaultEvolutionConfig returns sensible defaults
func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		MaxIterations:       5,
		AccuracyThreshold:   0.85,
		Epsilon:             0.1,
		Seed:                1,
		Strategy:            models.StrategyStandard,
		TaskDescription:     prompt.DefaultTaskDescription,
		PlaceholderSentence: prompt.DefaultPlaceholderSentence,
	}
}

func (c EvolutionConfig) Validate() error {
	switch {
	case c.MaxIterations < 0:
		return domain.NewDomainError(domain.ErrInvalidConfig, "max iterations must not be negative")
	case c.AccuracyThreshold < 0 || c.AccuracyThreshold > 1:
		return domain.NewDomainError(domain.ErrInvalidConfig, "accuracy threshold must be in [0,1]")
	case c.Epsilon < 0 || c.Epsilon > 1:
		return domain.NewDomainError(domain.ErrInvalidConfig, "epsilon must be in [0,1]")
	case c.Strategy != models.StrategyStandard && c.Strategy != models.StrategyHybrid:
		return domain.NewDomainError(domain.ErrInvalidConfig, fmt.Sprintf("unknown strategy %q", c.Strategy))
	}
	return nil
}

// RunOutput is everything a finished (or aborted) run produced.
type RunOutput struct {
	Run        *models.EvolutionRun
	Trace      *models.RunTrace
	Best       models.IterationRecord
	Validation *models.EvaluationResult
	Pool       []prompt.PoolEntry
}

// EvolutionService drives the evolution state machine. Iterations run
// sequentially; only row evaluation inside the Evaluator is concurrent.
type EvolutionService struct {
	evaluator   *Evaluator
	reviser     *PromptReviser
	idGenerator ports.IDGenerator
	config      EvolutionConfig
	logger      *slog.Logger

	repo        ports.EvolutionRepository
	traceStores []ports.TraceStore
	exporter    ports.BestPromptExporter
	publisher   ports.ProgressPublisher

	newPool func(seed uint64) *prompt.Pool

	mu   sync.RWMutex
	runs map[string]models.EvolutionRun
}

// NewEvolutionService creates a new evolution service
func NewEvolutionService(
	evaluator *Evaluator,
	reviser *PromptReviser,
	idGenerator ports.IDGenerator,
	config EvolutionConfig,
	logger *slog.Logger,
) *EvolutionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvolutionService{
		evaluator:   evaluator,
		reviser:     reviser,
		idGenerator: idGenerator,
		config:      config,
		logger:      logger,
		newPool:     prompt.NewPool,
		runs:        make(map[string]models.EvolutionRun),
	}
}

// WithRepository records runs and iterations as they happen.
func (s *EvolutionService) WithRepository(repo ports.EvolutionRepository) *EvolutionService {
	s.repo = repo
	return s
}

// WithTraceStores adds destinations for the finished trace.
func (s *EvolutionService) WithTraceStores(stores ...ports.TraceStore) *EvolutionService {
	s.traceStores = append(s.traceStores, stores...)
	return s
}

// WithExporter writes the best prompt text when a run finishes.
func (s *EvolutionService) WithExporter(exporter ports.BestPromptExporter) *EvolutionService {
	s.exporter = exporter
	return s
}

// WithProgressPublisher sets the sink for progress events
func (s *EvolutionService) WithProgressPublisher(publisher ports.ProgressPublisher) *EvolutionService {
	s.publisher = publisher
	return s
}

// NewRunID reserves an ID so callers can subscribe to progress before Run.
func (s *EvolutionService) NewRunID() string {
	return s.idGenerator.GenerateRunID()
}

// Run evolves a prompt over train and, when validation is non-empty,
// scores the best-by-F1 prompt on it once. Inputs are validated before any
// remote call. If ctx is cancelled mid-run the partial output is returned
// together with the error.
func (s *EvolutionService) Run(ctx context.Context, runID, name string, train, validation *models.Dataset, vocab models.Vocabulary) (*RunOutput, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if err := train.Validate(vocab); err != nil {
		return nil, fmt.Errorf("training set: %w", err)
	}
	if !validation.IsEmpty() {
		if err := validation.Validate(vocab); err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
	}
	if runID == "" {
		runID = s.NewRunID()
	}

	ctx, span := tracer.Start(ctx, "evolution.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("strategy", s.config.Strategy))

	run := models.NewEvolutionRun(runID, name, train.Name, s.config.Strategy, s.config.MaxIterations)
	run.Labels = vocab
	run.Config = map[string]any{
		"accuracy_threshold": s.config.AccuracyThreshold,
		"epsilon":            s.config.Epsilon,
		"seed":               s.config.Seed,
		"train_rows":         train.Len(),
		"validation_rows":    validation.Len(),
	}

	st := &runState{
		run:       run,
		trace:     &models.RunTrace{RunID: runID},
		pool:      s.newPool(s.config.Seed),
		evaluated: make(map[string]*models.EvaluationResult),
	}
	s.snapshot(run)
	if s.repo != nil {
		if err := s.repo.CreateRun(ctx, run); err != nil {
			s.logger.Warn("failed to record run", "run_id", runID, "error", err)
		}
	}
	s.publish(run, ports.EventStarted, 0, 0, 0, "run started")
	s.logger.Info("evolution started", "run_id", runID, "rows", train.Len(), "labels", vocab, "strategy", s.config.Strategy)

	err := s.evolve(ctx, st, train, vocab)
	if err == nil && !validation.IsEmpty() {
		err = s.validate(ctx, st, validation, vocab)
	}

	out := s.finish(ctx, st, err)
	return out, err
}

type runState struct {
	run        *models.EvolutionRun
	trace      *models.RunTrace
	pool       *prompt.Pool
	evaluated  map[string]*models.EvaluationResult
	validation *models.EvaluationResult
}

func (s *EvolutionService) evolve(ctx context.Context, st *runState, train *models.Dataset, vocab models.Vocabulary) error {
	initial := s.config.InitialPrompt
	if initial == "" {
		initial = prompt.BuildInitialPrompt(s.config.TaskDescription, vocab, s.config.PlaceholderSentence)
	}
	initial = prompt.EnsurePlaceholder(initial, s.config.PlaceholderSentence)

	res, err := s.evaluate(ctx, st, initial, train, vocab, "initial")
	if err != nil {
		return err
	}
	st.pool.Add(initial, res.Metrics.Accuracy)
	st.run.BaselineAccuracy = res.Metrics.Accuracy
	s.record(ctx, st, 0, initial, res.Metrics)

	current := res.Metrics.Accuracy
	converged := false
	for iteration := 1; iteration <= s.config.MaxIterations; iteration++ {
		if current >= s.config.AccuracyThreshold {
			converged = true
			break
		}
		if err := s.iterate(ctx, st, iteration, train, vocab); err != nil {
			return err
		}
		current = st.trace.Records[len(st.trace.Records)-1].Accuracy
	}
	if current >= s.config.AccuracyThreshold {
		converged = true
	}

	st.run.Converged = converged
	next := models.RunStateBudgetExhausted
	if converged {
		next = models.RunStateConverged
	}
	s.transition(st.run, next)
	s.logger.Info("evolution loop finished", "run_id", st.run.ID, "state", next, "iterations", st.run.Iterations, "accuracy", current)
	return nil
}

func (s *EvolutionService) iterate(ctx context.Context, st *runState, iteration int, train *models.Dataset, vocab models.Vocabulary) error {
	ctx, span := tracer.Start(ctx, "evolution.iteration")
	defer span.End()
	span.SetAttributes(attribute.Int("iteration", iteration))

	s.transition(st.run, models.RunStateEvaluating)
	best, err := st.pool.GetBestPrompt()
	if err != nil {
		return err
	}
	selected, explored, err := st.pool.Select(s.config.Epsilon)
	if err != nil {
		return err
	}
	s.logger.Debug("prompt selected", "run_id", st.run.ID, "iteration", iteration, "explored", explored, "pool_accuracy", selected.Accuracy)

	selectedRes, err := s.evaluate(ctx, st, selected.Prompt, train, vocab, "selected")
	if err != nil {
		return err
	}

	s.transition(st.run, models.RunStateRevising)
	var revision Revision
	bestRes, seen := st.evaluated[best.Prompt]
	if s.config.Strategy == models.StrategyHybrid && seen && selected.Prompt != best.Prompt && selectedRes.Metrics.Accuracy < best.Accuracy {
		revision = s.reviser.ReviseHybrid(ctx, HybridInput{
			BestPrompt:    best.Prompt,
			BestResult:    bestRes,
			CurrentPrompt: selected.Prompt,
			CurrentResult: selectedRes,
		}, train, vocab)
	} else {
		revision = s.reviser.Revise(ctx, selected.Prompt, train, selectedRes, vocab)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.publish(st.run, ports.EventRevised, iteration, selectedRes.Metrics.Accuracy, selectedRes.Metrics.F1, revisionMessage(revision))

	s.transition(st.run, models.RunStateReEvaluating)
	revisedRes, err := s.evaluate(ctx, st, revision.Prompt, train, vocab, "revised")
	if err != nil {
		return err
	}

	s.transition(st.run, models.RunStateUpdating)
	st.pool.Add(revision.Prompt, revisedRes.Metrics.Accuracy)
	s.record(ctx, st, iteration, revision.Prompt, revisedRes.Metrics)
	metrics.EvolutionIterationsTotal.Inc()
	return nil
}

func (s *EvolutionService) validate(ctx context.Context, st *runState, validation *models.Dataset, vocab models.Vocabulary) error {
	best, err := st.trace.BestByF1()
	if err != nil {
		return err
	}
	s.transition(st.run, models.RunStateValidation)
	res, err := s.evaluator.Evaluate(ctx, best.Prompt, validation, vocab)
	if err != nil {
		return err
	}
	st.validation = res
	acc, f1 := res.Metrics.Accuracy, res.Metrics.F1
	st.run.ValidationAccuracy = &acc
	st.run.ValidationF1 = &f1
	metrics.EvaluationAccuracy.WithLabelValues("validation").Set(acc)
	s.publish(st.run, ports.EventValidation, st.run.Iterations, acc, f1, "validation evaluated")
	s.logger.Info("validation evaluated", "run_id", st.run.ID, "accuracy", acc, "f1", f1)
	return nil
}

// evaluate scores a prompt on the training set and remembers the latest
// result per prompt text for hybrid revision.
func (s *EvolutionService) evaluate(ctx context.Context, st *runState, template string, train *models.Dataset, vocab models.Vocabulary, phase string) (*models.EvaluationResult, error) {
	res, err := s.evaluator.Evaluate(ctx, template, train, vocab)
	if err != nil {
		return nil, err
	}
	st.evaluated[template] = res
	if res.Metrics.Accuracy > st.run.BestAccuracy {
		st.run.BestAccuracy = res.Metrics.Accuracy
	}
	metrics.EvaluationAccuracy.WithLabelValues(phase).Set(res.Metrics.Accuracy)
	s.publish(st.run, ports.EventEvaluated, st.run.Iterations, res.Metrics.Accuracy, res.Metrics.F1, phase)
	return res, nil
}

func (s *EvolutionService) record(ctx context.Context, st *runState, iteration int, text string, m models.Metrics) {
	rec := models.NewIterationRecord(iteration, text, m)
	st.trace.Records = append(st.trace.Records, rec)
	st.run.Iterations = iteration
	if best, err := st.trace.BestByF1(); err == nil {
		st.run.BestF1 = best.F1
		st.run.BestPrompt = best.Prompt
	}
	s.snapshot(st.run)

	if s.repo != nil {
		if err := s.repo.SaveIteration(ctx, st.run.ID, rec); err != nil {
			s.logger.Warn("failed to record iteration", "run_id", st.run.ID, "iteration", iteration, "error", err)
		}
	}
	s.publish(st.run, ports.EventIteration, iteration, m.Accuracy, m.F1, "")
	s.logger.Info("iteration recorded", "run_id", st.run.ID, "iteration", iteration,
		"accuracy", m.Accuracy, "precision", m.Precision, "recall", m.Recall, "f1", m.F1)
}

// finish settles the run, persists what exists and always returns output
// when at least one iteration was recorded.
func (s *EvolutionService) finish(ctx context.Context, st *runState, runErr error) *RunOutput {
	out := &RunOutput{
		Run:        st.run,
		Trace:      st.trace,
		Validation: st.validation,
		Pool:       st.pool.Entries(),
	}
	if best, err := st.trace.BestByF1(); err == nil {
		out.Best = best
		st.trace.BestPromptByF1 = best.Prompt
	}

	if runErr != nil {
		st.run.MarkFailed(runErr)
		s.publish(st.run, ports.EventFailed, st.run.Iterations, 0, 0, runErr.Error())
		s.logger.Error("evolution failed", "run_id", st.run.ID, "error", runErr)
	} else {
		s.transition(st.run, models.RunStateDone)
		st.run.MarkCompleted()
	}
	s.snapshot(st.run)

	// Persist even when the caller's context is gone.
	pctx := context.WithoutCancel(ctx)
	if len(st.trace.Records) > 0 {
		for _, store := range s.traceStores {
			if err := store.SaveTrace(pctx, st.run, st.trace); err != nil {
				s.logger.Error("failed to save trace", "run_id", st.run.ID, "error", err)
			}
		}
		if s.exporter != nil && st.trace.BestPromptByF1 != "" {
			if err := s.exporter.ExportBestPrompt(pctx, st.trace.BestPromptByF1); err != nil {
				s.logger.Error("failed to export best prompt", "run_id", st.run.ID, "error", err)
			}
		}
	}
	if s.repo != nil {
		if err := s.repo.UpdateRun(pctx, st.run); err != nil {
			s.logger.Warn("failed to update run", "run_id", st.run.ID, "error", err)
		}
	}

	if runErr == nil {
		s.publish(st.run, ports.EventCompleted, st.run.Iterations, out.Best.Accuracy, out.Best.F1, "run completed")
		s.logger.Info("evolution completed", "run_id", st.run.ID, "best_f1", out.Best.F1, "best_accuracy", out.Best.Accuracy, "converged", st.run.Converged)
	}
	if closer, ok := s.publisher.(interface{ Close(string) }); ok {
		closer.Close(st.run.ID)
	}
	return out
}

// GetRun returns a snapshot of a run started by this service, falling back
// to the repository.
func (s *EvolutionService) GetRun(ctx context.Context, id string) (*models.EvolutionRun, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if ok {
		return &run, nil
	}
	if s.repo != nil {
		return s.repo.GetRun(ctx, id)
	}
	return nil, domain.NewDomainError(domain.ErrRunNotFound, id)
}

// ListRuns returns snapshots of the runs started by this service, newest
// first.
func (s *EvolutionService) ListRuns() []*models.EvolutionRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*models.EvolutionRun, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, &r)
	}
	slices.SortFunc(runs, func(a, b *models.EvolutionRun) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return runs
}

func (s *EvolutionService) snapshot(run *models.EvolutionRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
}

func (s *EvolutionService) transition(run *models.EvolutionRun, state models.RunState) {
	if err := run.TransitionTo(state); err != nil {
		// Only reachable through a programming error in the loop above.
		s.logger.Error("invalid run transition", "run_id", run.ID, "error", err)
		return
	}
	s.snapshot(run)
}

func (s *EvolutionService) publish(run *models.EvolutionRun, eventType string, iteration int, accuracy, f1 float64, message string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ports.EvolutionProgressEvent{
		Type:          eventType,
		RunID:         run.ID,
		State:         run.State,
		Iteration:     iteration,
		MaxIterations: run.MaxIterations,
		Accuracy:      accuracy,
		F1:            f1,
		BestAccuracy:  run.BestAccuracy,
		Status:        run.Status,
		Message:       message,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func revisionMessage(r Revision) string {
	if r.Fallback {
		return "revision fell back to the original prompt: " + r.Err.Error()
	}
	return "prompt revised"
}
