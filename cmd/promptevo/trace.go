package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/tracefile"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

func traceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect and convert run trace files",
	}
	cmd.AddCommand(traceShowCmd(), traceConvertCmd())
	return cmd
}

func traceShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Show the iterations recorded in a trace file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Output.TracePath
			if len(args) > 0 {
				path = args[0]
			}

			trace, err := tracefile.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load trace: %w", err)
			}

			if asJSON {
				data, err := json.MarshalIndent(trace, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			return printTrace(cmd.OutOrStdout(), path, trace)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func traceConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a trace between JSON and MessagePack",
		Long: `Re-encode a trace file. The format of each side is chosen by extension:
.msgpack and .mpk are MessagePack, anything else is JSON.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]

			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("failed to read trace: %w", err)
			}
			trace, err := tracefile.Decode(data, tracefile.FormatFromPath(in))
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", in, err)
			}
			encoded, err := tracefile.Encode(trace, tracefile.FormatFromPath(out))
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", out, err)
			}
			if err := os.WriteFile(out, encoded, 0o644); err != nil {
				return fmt.Errorf("failed to write trace: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records to %s\n", len(trace.Records), out)
			return nil
		},
	}
}

func printTrace(out io.Writer, path string, trace *models.RunTrace) error {
	if len(trace.Records) == 0 {
		fmt.Fprintf(out, "No iterations recorded in %s\n", path)
		return nil
	}

	best, err := trace.BestByF1()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITER\tACCURACY\tPRECISION\tRECALL\tF1\tPROMPT")
	fmt.Fprintln(w, "----\t--------\t---------\t------\t--\t------")
	for _, rec := range trace.Records {
		marker := ""
		if rec.Iteration == best.Iteration && rec.Prompt == best.Prompt {
			marker = " *"
		}
		fmt.Fprintf(w, "%d%s\t%.4f\t%.4f\t%.4f\t%.4f\t%s\n",
			rec.Iteration, marker, rec.Accuracy, rec.Precision, rec.Recall, rec.F1, truncate(rec.Prompt, 60))
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d records, * marks the best by F1\n", len(trace.Records))
	if trace.BestPromptByF1 != "" {
		fmt.Fprintf(out, "\nBest prompt:\n%s\n", trace.BestPromptByF1)
	}
	return nil
}
