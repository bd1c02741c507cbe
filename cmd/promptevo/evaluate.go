package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/dataset"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/application/services"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt"
)

// evaluationReport is the --json output of evaluate.
type evaluationReport struct {
	Dataset  string         `json:"dataset"`
	Rows     int            `json:"rows"`
	Failed   int            `json:"failed"`
	Labels   []string       `json:"labels"`
	Prompt   string         `json:"prompt"`
	Metrics  models.Metrics `json:"metrics"`
	Duration string         `json:"duration"`
}

func evaluateCmd() *cobra.Command {
	var (
		datasetPath string
		promptText  string
		promptFile  string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a single prompt against a dataset",
		Long: `Classify every row of the dataset with one prompt and report accuracy,
macro precision/recall/F1, per-label scores and the confusion matrix.
Without --prompt or --prompt-file the generated initial prompt is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptText != "" && promptFile != "" {
				return fmt.Errorf("--prompt and --prompt-file are mutually exclusive")
			}
			if promptFile != "" {
				data, err := os.ReadFile(promptFile)
				if err != nil {
					return fmt.Errorf("failed to read prompt file: %w", err)
				}
				promptText = string(data)
			}

			dc := datasetConfig(cfg)
			if datasetPath != "" {
				dc.Path = datasetPath
			}
			dc.ValidationPath = ""
			dc.ValidationSplit = 0

			ctx := cmd.Context()
			rows, _, err := dataset.NewProvider(dc).Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}
			vocab, err := resolveVocabulary(cfg.Evolution.Labels, rows)
			if err != nil {
				return fmt.Errorf("failed to resolve labels: %w", err)
			}
			if err := rows.Validate(vocab); err != nil {
				return err
			}

			if promptText == "" {
				promptText = cfg.Evolution.InitialPrompt
			}
			if promptText == "" {
				promptText = prompt.BuildInitialPrompt(cfg.Evolution.TaskDescription, vocab, cfg.Evolution.PlaceholderSentence)
			}

			evaluator := services.NewEvaluator(newLLMService(cfg), evaluatorConfig(cfg), logger)
			result, err := evaluator.Evaluate(ctx, promptText, rows, vocab)
			if err != nil {
				return fmt.Errorf("evaluation failed: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(evaluationReport{
					Dataset:  rows.Name,
					Rows:     rows.Len(),
					Failed:   result.FailedCount(),
					Labels:   vocab,
					Prompt:   result.Prompt,
					Metrics:  result.Metrics,
					Duration: result.Duration.String(),
				})
			}
			printEvaluation(cmd.OutOrStdout(), rows, vocab, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Dataset to score (.csv or .jsonl)")
	cmd.Flags().StringVarP(&promptText, "prompt", "p", "", "Prompt template; {text} marks where the row goes")
	cmd.Flags().StringVarP(&promptFile, "prompt-file", "f", "", "Read the prompt template from a file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func printEvaluation(out io.Writer, rows *models.Dataset, vocab models.Vocabulary, result *models.EvaluationResult) {
	m := result.Metrics

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Dataset:\t%s (%d rows)\n", rows.Name, rows.Len())
	fmt.Fprintf(w, "Failed calls:\t%d\n", result.FailedCount())
	fmt.Fprintf(w, "Duration:\t%s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Accuracy:\t%.4f (%d/%d)\n", m.Accuracy, m.Correct, m.Total)
	fmt.Fprintf(w, "Precision:\t%.4f\n", m.Precision)
	fmt.Fprintf(w, "Recall:\t%.4f\n", m.Recall)
	fmt.Fprintf(w, "F1:\t%.4f\n", m.F1)
	w.Flush()

	if len(m.PerLabel) > 0 {
		labels := make([]string, 0, len(m.PerLabel))
		for label := range m.PerLabel {
			labels = append(labels, label)
		}
		slices.SortFunc(labels, func(a, b string) int {
			return slices.Index(vocab, a) - slices.Index(vocab, b)
		})

		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tPRECISION\tRECALL\tF1\tSUPPORT")
		fmt.Fprintln(w, "-----\t---------\t------\t--\t-------")
		for _, label := range labels {
			lm := m.PerLabel[label]
			fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%d\n", label, lm.Precision, lm.Recall, lm.F1, lm.Support)
		}
		w.Flush()
	}

	if m.Confusion != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Confusion matrix (rows: true, columns: predicted):")
		fmt.Fprint(out, m.Confusion.String())
	}
}
