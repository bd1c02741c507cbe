package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/postgres"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse runs recorded in PostgreSQL",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var (
		status string
		limit  int
		offset int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := postgres.NewEvolutionRepository(pool).ListRuns(ctx, status, limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTRATEGY\tITERS\tBASELINE\tBEST ACC\tBEST F1\tCREATED")
			fmt.Fprintln(w, "--\t----\t------\t--------\t-----\t--------\t--------\t-------\t-------")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%.4f\t%.4f\t%.4f\t%s\n",
					run.ID,
					truncate(run.Name, 24),
					run.Status,
					run.Strategy,
					run.Iterations, run.MaxIterations,
					run.BaselineAccuracy,
					run.BestAccuracy,
					run.BestF1,
					run.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
			w.Flush()

			fmt.Printf("\nTotal: %d runs\n", len(runs))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func runsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its iteration history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := initDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewEvolutionRepository(pool)
			run, err := repo.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			iterations, err := repo.GetIterations(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("failed to get iterations: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"run":        run,
					"iterations": iterations,
				})
			}

			printRun(os.Stdout, run, iterations)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printRun(out io.Writer, run *models.EvolutionRun, iterations []models.IterationRecord) {
	fmt.Fprintf(out, "Run: %s\n", run.ID)
	if run.Name != "" {
		fmt.Fprintf(out, "Name: %s\n", run.Name)
	}
	fmt.Fprintf(out, "Dataset: %s\n", run.Dataset)
	fmt.Fprintf(out, "Status: %s (%s)\n", run.Status, run.State)
	fmt.Fprintf(out, "Strategy: %s\n", run.Strategy)
	fmt.Fprintf(out, "Labels: %v\n", run.Labels)
	fmt.Fprintf(out, "Iterations: %d / %d\n", run.Iterations, run.MaxIterations)
	fmt.Fprintf(out, "Converged: %t\n", run.Converged)
	fmt.Fprintf(out, "Baseline accuracy: %.4f\n", run.BaselineAccuracy)
	fmt.Fprintf(out, "Best accuracy: %.4f\n", run.BestAccuracy)
	fmt.Fprintf(out, "Best F1: %.4f\n", run.BestF1)
	if run.ValidationAccuracy != nil {
		fmt.Fprintf(out, "Validation accuracy: %.4f\n", *run.ValidationAccuracy)
	}
	if run.ValidationF1 != nil {
		fmt.Fprintf(out, "Validation F1: %.4f\n", *run.ValidationF1)
	}
	fmt.Fprintf(out, "Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s (%s)\n", run.CompletedAt.Format("2006-01-02 15:04:05"), run.CompletedAt.Sub(run.StartedAt).Round(time.Second))
	}
	if run.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", run.Error)
	}

	if len(iterations) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITER\tACCURACY\tPRECISION\tRECALL\tF1\tPROMPT")
		fmt.Fprintln(w, "----\t--------\t---------\t------\t--\t------")
		for _, rec := range iterations {
			fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%s\n",
				rec.Iteration, rec.Accuracy, rec.Precision, rec.Recall, rec.F1, truncate(rec.Prompt, 60))
		}
		w.Flush()
	}

	if run.BestPrompt != "" {
		fmt.Fprintf(out, "\nBest prompt:\n%s\n", run.BestPrompt)
	}
}
