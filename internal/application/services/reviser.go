package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/metrics"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/retry"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt/baselines"
)

var (
	errEmptyRevision = errors.New("revision is empty")
	errLostLabels    = errors.New("revision no longer names every label")
)

// ReviserConfig configures prompt revision
type ReviserConfig struct {
	Temperature         float64
	MaxErrorSamples     int
	AnalysisMaxTokens   int
	RevisionMaxTokens   int
	HybridMaxTokens     int
	MaxDegradedExamples int
	PlaceholderSentence string
	Retry               retry.BackoffConfig
}

func DefaultReviserConfig() ReviserConfig {
	return ReviserConfig{
		Temperature:         0.7,
		MaxErrorSamples:     20,
		AnalysisMaxTokens:   1000,
		RevisionMaxTokens:   1000,
		HybridMaxTokens:     500,
		MaxDegradedExamples: 3,
		PlaceholderSentence: prompt.DefaultPlaceholderSentence,
		Retry:               retry.DefaultConfig(),
	}
}

// Revision is the outcome of a revision attempt. On fallback Prompt is the
// unchanged input and Err says why.
type Revision struct {
	Prompt   string
	Analysis string
	Fallback bool
	Err      error
}

// HybridInput pairs the best prompt so far with a worse current attempt.
type HybridInput struct {
	BestPrompt    string
	BestResult    *models.EvaluationResult
	CurrentPrompt string
	CurrentResult *models.EvaluationResult
}

// PromptReviser rewrites prompts from their errors. It never fails: any
// problem yields the original prompt.
type PromptReviser struct {
	llm    ports.LLMService
	config ReviserConfig
	logger *slog.Logger
}

func NewPromptReviser(llm ports.LLMService, config ReviserConfig, logger *slog.Logger) *PromptReviser {
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptReviser{llm: llm, config: config, logger: logger}
}

// Revise asks for an error diagnosis of original, then for a rewrite based
// on it.
func (r *PromptReviser) Revise(ctx context.Context, original string, dataset *models.Dataset, result *models.EvaluationResult, vocab models.Vocabulary) Revision {
	ctx, span := tracer.Start(ctx, "reviser.revise")
	defer span.End()

	rev, err := r.revise(ctx, original, dataset, result, vocab)
	return r.finish(models.StrategyStandard, original, rev, err)
}

func (r *PromptReviser) revise(ctx context.Context, original string, dataset *models.Dataset, result *models.EvaluationResult, vocab models.Vocabulary) (Revision, error) {
	summary, err := prompt.AnalyzeErrors(dataset, result)
	if err != nil {
		return Revision{}, err
	}

	analysisPrompt, err := prompt.RenderAnalysis(prompt.AnalysisInput{
		Prompt:     original,
		Accuracy:   result.Metrics.Accuracy,
		Labels:     vocab,
		Errors:     summary.Misclassified,
		Confusion:  result.Metrics.Confusion,
		MaxSamples: r.config.MaxErrorSamples,
	})
	if err != nil {
		return Revision{}, err
	}
	analysis, err := r.call(ctx, baselines.AnalysisSystemPrompt, analysisPrompt, r.config.AnalysisMaxTokens)
	if err != nil {
		return Revision{}, fmt.Errorf("analysis call: %w", err)
	}

	revisionPrompt, err := prompt.RenderRevision(prompt.RevisionInput{
		Prompt:   original,
		Accuracy: result.Metrics.Accuracy,
		Labels:   vocab,
		Analysis: analysis,
	})
	if err != nil {
		return Revision{}, err
	}
	revised, err := r.call(ctx, baselines.RevisionSystemPrompt, revisionPrompt, r.config.RevisionMaxTokens)
	if err != nil {
		return Revision{Analysis: analysis}, fmt.Errorf("revision call: %w", err)
	}

	return r.canonicalize(revised, analysis, vocab)
}

// ReviseHybrid merges the error patterns of the best and current prompts and
// rewrites the best prompt, so a bad attempt cannot drag the lineage below
// the best known result.
func (r *PromptReviser) ReviseHybrid(ctx context.Context, in HybridInput, dataset *models.Dataset, vocab models.Vocabulary) Revision {
	ctx, span := tracer.Start(ctx, "reviser.revise_hybrid")
	defer span.End()

	rev, err := r.reviseHybrid(ctx, in, dataset, vocab)
	return r.finish(models.StrategyHybrid, in.BestPrompt, rev, err)
}

func (r *PromptReviser) reviseHybrid(ctx context.Context, in HybridInput, dataset *models.Dataset, vocab models.Vocabulary) (Revision, error) {
	bestSummary, err := prompt.AnalyzeErrors(dataset, in.BestResult)
	if err != nil {
		return Revision{}, fmt.Errorf("best prompt analysis: %w", err)
	}
	currentSummary, err := prompt.AnalyzeErrors(dataset, in.CurrentResult)
	if err != nil {
		return Revision{}, fmt.Errorf("current prompt analysis: %w", err)
	}

	comparison := prompt.ComparePatterns(bestSummary, currentSummary)
	degraded := prompt.FindDegradedRows(dataset, in.BestResult, in.CurrentResult)
	feedback := prompt.FormatCombinedFeedback(comparison, degraded, r.config.MaxDegradedExamples)

	hybridPrompt, err := prompt.RenderHybrid(prompt.HybridInput{
		BestPrompt:      in.BestPrompt,
		BestAccuracy:    in.BestResult.Metrics.Accuracy,
		CurrentPrompt:   in.CurrentPrompt,
		CurrentAccuracy: in.CurrentResult.Metrics.Accuracy,
		Labels:          vocab,
		Feedback:        feedback,
	})
	if err != nil {
		return Revision{}, err
	}
	revised, err := r.call(ctx, baselines.HybridSystemPrompt, hybridPrompt, r.config.HybridMaxTokens)
	if err != nil {
		return Revision{Analysis: feedback}, fmt.Errorf("hybrid revision call: %w", err)
	}

	return r.canonicalize(revised, feedback, vocab)
}

func (r *PromptReviser) canonicalize(revised, analysis string, vocab models.Vocabulary) (Revision, error) {
	out := prompt.Canonicalize(revised, r.config.PlaceholderSentence)
	if out == "" {
		return Revision{Analysis: analysis}, errEmptyRevision
	}
	if !prompt.NamesAllLabels(out, vocab) {
		return Revision{Analysis: analysis}, errLostLabels
	}
	return Revision{Prompt: out, Analysis: analysis}, nil
}

func (r *PromptReviser) finish(strategy, original string, rev Revision, err error) Revision {
	if err != nil {
		metrics.RevisionsTotal.WithLabelValues(strategy, "fallback").Inc()
		r.logger.Warn("prompt revision failed, keeping original", "strategy", strategy, "error", err)
		return Revision{Prompt: original, Analysis: rev.Analysis, Fallback: true, Err: err}
	}
	metrics.RevisionsTotal.WithLabelValues(strategy, "revised").Inc()
	return rev
}

func (r *PromptReviser) call(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := ports.LLMRequest{
		Messages:    []ports.LLMMessage{ports.SystemMessage(system), ports.UserMessage(user)},
		Temperature: r.config.Temperature,
		MaxTokens:   maxTokens,
	}
	cfg := r.config.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.LLMRetriesTotal.WithLabelValues("revise").Inc()
		r.logger.Debug("retrying revision call", "attempt", attempt, "delay", delay, "error", err)
	}
	return retry.Do(ctx, cfg, func(ctx context.Context) (string, error) {
		resp, err := r.llm.Chat(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	})
}
