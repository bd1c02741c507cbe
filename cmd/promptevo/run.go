package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/dataset"
	httpserver "github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/handlers"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/id"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/postgres"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/tracefile"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/tracing"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/application/services"
)

func runCmd() *cobra.Command {
	var (
		datasetPath    string
		validationPath string
		name           string
		maxIterations  int
		strategy       string
		epsilon        float64
		tracePath      string
		bestPromptPath string
		serve          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evolve a prompt over a labelled dataset",
		Long: `Evaluate the initial prompt, then repeatedly pick a prompt from the pool,
ask the model to diagnose its errors and rewrite it, and score the rewrite.
The run stops once accuracy reaches the threshold or the iteration budget is
spent. The best prompt by F1 is written out and, if a validation set is
available, scored on it once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if datasetPath != "" {
				cfg.Dataset.Path = datasetPath
			}
			if validationPath != "" {
				cfg.Dataset.ValidationPath = validationPath
			}
			if cmd.Flags().Changed("max-iterations") {
				cfg.Evolution.MaxIterations = maxIterations
			}
			if strategy != "" {
				cfg.Evolution.Strategy = strategy
			}
			if cmd.Flags().Changed("epsilon") {
				cfg.Evolution.Epsilon = epsilon
			}
			if tracePath != "" {
				cfg.Output.TracePath = tracePath
			}
			if bestPromptPath != "" {
				cfg.Output.BestPromptPath = bestPromptPath
			}
			if serve {
				cfg.Server.Enabled = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runEvolution(cmd.Context(), cmd.OutOrStdout(), name)
		},
	}

	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Training dataset (.csv or .jsonl)")
	cmd.Flags().StringVar(&validationPath, "validation", "", "Separate validation dataset; disables the stratified split")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Run name")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Maximum number of revision iterations")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Revision strategy: standard or hybrid")
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0, "Exploration rate for prompt selection")
	cmd.Flags().StringVar(&tracePath, "trace-out", "", "Trace output path (.json or .msgpack)")
	cmd.Flags().StringVar(&bestPromptPath, "best-prompt-out", "", "Best prompt output path")
	cmd.Flags().BoolVar(&serve, "serve", false, "Expose run progress over HTTP while running")

	return cmd
}

func runEvolution(parent context.Context, out io.Writer, name string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer("promptevo", cfg.Tracing.Output)
		if err != nil {
			logger.Warn("failed to initialize tracing", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Warn("failed to flush traces", "error", err)
				}
			}()
		}
	}

	train, validation, err := dataset.NewProvider(datasetConfig(cfg)).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	vocab, err := resolveVocabulary(cfg.Evolution.Labels, train, validation)
	if err != nil {
		return fmt.Errorf("failed to resolve labels: %w", err)
	}
	logger.Info("dataset loaded", "train", train.Len(), "validation", validation.Len(), "labels", vocab)

	llmService := newLLMService(cfg)
	evaluator := services.NewEvaluator(llmService, evaluatorConfig(cfg), logger)
	reviser := services.NewPromptReviser(llmService, reviserConfig(cfg), logger)
	publisher := services.NewEvolutionProgressPublisher()

	evolution := services.NewEvolutionService(evaluator, reviser, id.New(), evolutionConfig(cfg), logger).
		WithTraceStores(tracefile.NewStore(cfg.Output.TracePath)).
		WithExporter(tracefile.NewPromptExporter(cfg.Output.BestPromptPath)).
		WithProgressPublisher(publisher)

	var traces handlers.TraceReader
	var db handlers.Pinger
	if cfg.IsDatabaseConfigured() {
		pool, err := initDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		repo := postgres.NewEvolutionRepository(pool)
		evolution.WithRepository(repo).WithTraceStores(repo)
		traces, db = repo, pool
		logger.Info("recording runs in PostgreSQL")
	}

	if cfg.Server.Enabled {
		server := httpserver.NewServer(cfg, version, evolution, traces, publisher, db, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown error", "error", err)
			}
		}()
	}

	result, err := evolution.Run(ctx, evolution.NewRunID(), name, train, validation, vocab)
	if result != nil {
		printRunSummary(out, result)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run interrupted: %w", err)
		}
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func printRunSummary(out io.Writer, result *services.RunOutput) {
	run := result.Run

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	fmt.Fprintf(w, "Strategy:\t%s\n", run.Strategy)
	fmt.Fprintf(w, "Iterations:\t%d / %d\n", run.Iterations, run.MaxIterations)
	fmt.Fprintf(w, "Converged:\t%t\n", run.Converged)
	fmt.Fprintf(w, "Baseline accuracy:\t%.4f\n", run.BaselineAccuracy)
	fmt.Fprintf(w, "Best accuracy:\t%.4f\n", run.BestAccuracy)
	fmt.Fprintf(w, "Best F1:\t%.4f\n", run.BestF1)
	if run.ValidationAccuracy != nil && run.ValidationF1 != nil {
		fmt.Fprintf(w, "Validation:\taccuracy %.4f, F1 %.4f\n", *run.ValidationAccuracy, *run.ValidationF1)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	w.Flush()

	if result.Trace != nil && len(result.Trace.Records) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITER\tACCURACY\tF1\tPROMPT")
		fmt.Fprintln(w, "----\t--------\t--\t------")
		for _, rec := range result.Trace.Records {
			fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%s\n", rec.Iteration, rec.Accuracy, rec.F1, truncate(rec.Prompt, 60))
		}
		w.Flush()
	}

	if result.Best.Prompt != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Best prompt (iteration %d):\n%s\n", result.Best.Iteration, result.Best.Prompt)
	}
}
