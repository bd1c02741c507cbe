package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/config"
)

func main() {
	var configPath string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "promptevo",
		Short: "promptevo - evolve classification prompts against a labelled dataset",
		Long: `promptevo scores a classification prompt against a labelled dataset,
asks a language model to diagnose and rewrite it, and keeps the best
version it finds.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			logger = newLogger(cfg.Log, os.Stderr)
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a JSON or YAML config file (default: $PROMPTEVO_CONFIG or ~/.config/promptevo/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		runCmd(),
		evaluateCmd(),
		traceCmd(),
		runsCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(cfg.Masked(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Environment variables use the PROMPTEVO_ prefix, e.g.")
			fmt.Fprintln(cmd.OutOrStdout(), "  PROMPTEVO_LLM_URL, PROMPTEVO_LLM_API_KEY (or OPENAI_API_KEY), PROMPTEVO_LLM_MODEL, PROMPTEVO_LLM_REQUESTS_PER_SECOND")
			fmt.Fprintln(cmd.OutOrStdout(), "  PROMPTEVO_MAX_ITERATIONS, PROMPTEVO_ACCURACY_THRESHOLD, PROMPTEVO_EPSILON, PROMPTEVO_STRATEGY")
			fmt.Fprintln(cmd.OutOrStdout(), "  PROMPTEVO_DATASET_PATH, PROMPTEVO_TRACE_PATH, PROMPTEVO_POSTGRES_URL")
			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "promptevo %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", buildDate)
		},
	}
}
