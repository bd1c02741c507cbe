package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/dataset"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/retry"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/application/services"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/config"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/llm"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// Shared global variables
var (
	cfg    *config.Config
	logger *slog.Logger
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.Level)}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newLLMService builds the chat client and wraps it with timeout, breaker
// and the optional rate limiter.
func newLLMService(c *config.Config) *llm.Service {
	opts := []llm.Option{
		llm.WithModel(c.LLM.Model),
		llm.WithMaxTokens(c.LLM.MaxTokens),
		llm.WithTimeout(c.LLMTimeout()),
	}
	if c.LLM.Provider == "azure" {
		opts = append(opts, llm.WithAzure(c.LLM.APIVersion))
	}
	client := llm.NewClient(c.LLM.URL, c.LLM.APIKey, opts...)

	return llm.NewService(client, llm.ServiceConfig{
		Timeout:         c.LLMTimeout(),
		BreakerFailures: c.LLM.BreakerFailures,
		BreakerTimeout:  c.BreakerTimeout(),

		RequestsPerSecond: c.LLM.RequestsPerSecond,
	})
}

func retryConfig(c *config.Config) retry.BackoffConfig {
	rc := retry.ResilientConfig()
	rc.InitialInterval, rc.MaxInterval = c.RetryIntervals()
	rc.MaxRetries = c.Retry.MaxRetries
	rc.Multiplier = c.Retry.Multiplier
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying LLM call", "attempt", attempt, "delay", delay, "error", err)
	}
	return rc
}

func evaluatorConfig(c *config.Config) services.EvaluatorConfig {
	ec := services.DefaultEvaluatorConfig()
	ec.Concurrency = c.Evolution.Concurrency
	ec.Retry = retryConfig(c)
	ec.MaxTokens = c.LLM.MaxTokens
	ec.Temperature = c.LLM.Temperature
	if c.Evolution.PlaceholderSentence != "" {
		ec.PlaceholderSentence = c.Evolution.PlaceholderSentence
	}
	return ec
}

func reviserConfig(c *config.Config) services.ReviserConfig {
	rc := services.DefaultReviserConfig()
	rc.Temperature = c.Evolution.RevisionTemperature
	rc.MaxErrorSamples = c.Evolution.MaxErrorSamples
	rc.Retry = retryConfig(c)
	if c.Evolution.PlaceholderSentence != "" {
		rc.PlaceholderSentence = c.Evolution.PlaceholderSentence
	}
	return rc
}

func evolutionConfig(c *config.Config) services.EvolutionConfig {
	ec := services.DefaultEvolutionConfig()
	ec.MaxIterations = c.Evolution.MaxIterations
	ec.AccuracyThreshold = c.Evolution.AccuracyThreshold
	ec.Epsilon = c.Evolution.Epsilon
	ec.Seed = c.Evolution.Seed
	ec.Strategy = c.Evolution.Strategy
	ec.InitialPrompt = c.Evolution.InitialPrompt
	if c.Evolution.TaskDescription != "" {
		ec.TaskDescription = c.Evolution.TaskDescription
	}
	if c.Evolution.PlaceholderSentence != "" {
		ec.PlaceholderSentence = c.Evolution.PlaceholderSentence
	}
	return ec
}

func datasetConfig(c *config.Config) dataset.Config {
	d := c.Dataset
	return dataset.Config{
		Path:            d.Path,
		ValidationPath:  d.ValidationPath,
		Name:            d.Name,
		TextColumn:      d.TextColumn,
		LabelColumn:     d.LabelColumn,
		FlagColumn:      d.FlagColumn,
		AgreeValue:      d.AgreeValue,
		DisagreeValue:   d.DisagreeValue,
		FlipPair:        d.FlipPair,
		LabelMap:        d.LabelMap,
		ValidationSplit: d.ValidationSplit,
		Seed:            d.Seed,
	}
}

// resolveVocabulary prefers the configured label order and otherwise derives
// the labels from every loaded row.
func resolveVocabulary(labels []string, sets ...*models.Dataset) (models.Vocabulary, error) {
	if len(labels) > 0 {
		return models.NewVocabulary(labels...)
	}
	var rows []models.Row
	for _, d := range sets {
		if d != nil {
			rows = append(rows, d.Rows...)
		}
	}
	return models.VocabularyFromDataset(models.NewDataset("", rows))
}

// initDB initializes a database connection pool for CLI commands
func initDB(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Database.PostgresURL == "" {
		return nil, fmt.Errorf("PostgreSQL connection required. Set PROMPTEVO_POSTGRES_URL")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
