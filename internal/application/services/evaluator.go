package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/metrics"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/retry"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt"
)

var tracer = otel.Tracer("promptevo/services")

// EvaluatorConfig configures the concurrent evaluator
type EvaluatorConfig struct {
	// Concurrency bounds the number of in-flight row requests.
	Concurrency int
	Retry       retry.BackoffConfig
	MaxTokens   int
	Temperature float64
	// PlaceholderSentence is appended to templates that lack {text}.
	PlaceholderSentence string
	// SystemPrompt is sent before every row when non-empty.
	SystemPrompt string
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Concurrency:         10,
		Retry:               retry.DefaultConfig(),
		MaxTokens:           100,
		Temperature:         0,
		PlaceholderSentence: prompt.DefaultPlaceholderSentence,
	}
}

// Evaluator classifies every row of a dataset with one prompt template and
// scores the result.
type Evaluator struct {
	llm    ports.LLMService
	config EvaluatorConfig
	logger *slog.Logger
}

func NewEvaluator(llm ports.LLMService, config EvaluatorConfig, logger *slog.Logger) *Evaluator {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{llm: llm, config: config, logger: logger}
}

// Evaluate runs template over dataset. A row whose call still fails after
// retries is recorded as the "Error" sentinel and does not stop the others.
// The returned error is reserved for invalid input and cancellation.
func (e *Evaluator) Evaluate(ctx context.Context, template string, dataset *models.Dataset, vocab models.Vocabulary) (*models.EvaluationResult, error) {
	if err := dataset.Validate(vocab); err != nil {
		return nil, err
	}
	extractor, err := prompt.NewLabelExtractor(vocab)
	if err != nil {
		return nil, err
	}
	template = prompt.EnsurePlaceholder(template, e.config.PlaceholderSentence)

	ctx, span := tracer.Start(ctx, "evaluator.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("dataset", dataset.Name),
		attribute.Int("rows", dataset.Len()),
		attribute.Int("concurrency", e.config.Concurrency),
	)

	start := time.Now()
	predictions := make([]models.Prediction, dataset.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)
	for i, row := range dataset.Rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			predictions[i] = e.classifyRow(gctx, i, prompt.Format(template, row.Text))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("evaluation aborted: %w", err)
	}

	for i := range predictions {
		if !predictions[i].Failed {
			predictions[i].Label = extractor.Extract(predictions[i].Raw)
		}
	}

	result := &models.EvaluationResult{
		Prompt:      template,
		Predictions: predictions,
	}
	result.Metrics, err = prompt.CalculateMetrics(dataset.Labels(), result.PredictedLabels(), vocab)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	e.observe(dataset, result)
	span.SetAttributes(
		attribute.Float64("accuracy", result.Metrics.Accuracy),
		attribute.Float64("f1", result.Metrics.F1),
		attribute.Int("failed_rows", result.FailedCount()),
	)

	return result, nil
}

func (e *Evaluator) classifyRow(ctx context.Context, index int, content string) models.Prediction {
	messages := make([]ports.LLMMessage, 0, 2)
	if e.config.SystemPrompt != "" {
		messages = append(messages, ports.SystemMessage(e.config.SystemPrompt))
	}
	messages = append(messages, ports.UserMessage(content))
	req := ports.LLMRequest{
		Messages:    messages,
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	}

	cfg := e.config.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.LLMRetriesTotal.WithLabelValues("evaluate").Inc()
		e.logger.Debug("retrying row", "row", index, "attempt", attempt, "delay", delay, "error", err)
	}

	raw, err := retry.Do(ctx, cfg, func(ctx context.Context) (string, error) {
		resp, err := e.llm.Chat(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	})
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("row failed after retries", "row", index, "error", err)
		}
		return models.Prediction{Index: index, Raw: models.ErrorSentinel, Failed: true}
	}
	return models.Prediction{Index: index, Raw: strings.TrimSpace(raw)}
}

func (e *Evaluator) observe(dataset *models.Dataset, result *models.EvaluationResult) {
	metrics.EvaluationDuration.Observe(result.Duration.Seconds())
	for i, p := range result.Predictions {
		outcome := "incorrect"
		switch {
		case p.Failed:
			outcome = "failed"
		case p.Label == "":
			outcome = "unlabeled"
		case p.Label == dataset.Rows[i].Label:
			outcome = "correct"
		}
		metrics.EvaluationRowsTotal.WithLabelValues(outcome).Inc()
	}
}
