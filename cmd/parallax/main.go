// Package main provides the parallax CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/richinex/parallax/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	settingsPath string
	verbose      bool
	jsonOutput   bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "parallax",
		Short: "Resilient multi-provider LLM analysis",
		Long: `Fan one text payload out to multiple LLM providers and compare the
independently-computed responses.

Every provider call passes through per-key rate limiting, a per-provider
circuit breaker, and automatic chunking of oversized input. The workflow
command composes the same gated calls into multi-step pipelines.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "settings", "s", "", "Path to a YAML settings file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(usageCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cliOptions() cli.Options {
	return cli.Options{
		SettingsPath: settingsPath,
		Verbose:      verbose,
		JSONOutput:   jsonOutput,
	}
}

func analyzeCmd() *cobra.Command {
	var providerNames []string
	var filePath string

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Send text to multiple providers and compare results",
		Long: `Send one text payload to multiple LLM providers concurrently.

Each provider's outcome is independent: a throttled, failed, or
breaker-disabled provider appears as an error entry in the results
without affecting its siblings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args, filePath)
			if err != nil {
				return err
			}
			return cli.Analyze(context.Background(), text, providerNames, cliOptions())
		},
	}

	cmd.Flags().StringSliceVarP(&providerNames, "provider", "p", nil, "Provider(s) to query (default: all with configured API keys)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Read the text payload from a file")

	return cmd
}

func workflowCmd() *cobra.Command {
	var inputPairs []string

	runCmd := &cobra.Command{
		Use:   "run [graph.yaml]",
		Short: "Execute a workflow graph file",
		Long: `Execute a YAML-defined DAG of input, transform, provider_call, and
output nodes. Provider calls pass through the same rate-limit and
circuit-breaker gates as the analyze command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunWorkflow(context.Background(), args[0], inputPairs, cliOptions())
		},
	}
	runCmd.Flags().StringArrayVarP(&inputPairs, "input", "i", nil, "Override an input node value as node=value (repeatable)")

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run multi-step provider pipelines",
	}
	cmd.AddCommand(runCmd)
	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported providers and their models",
		Run: func(cmd *cobra.Command, args []string) {
			cli.ListProviders()
		},
	}
}

func usageCmd() *cobra.Command {
	var ledgerPath string
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Summarize metered provider usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ledgerPath == "" {
				ledgerPath = os.Getenv("USAGE_LEDGER_PATH")
			}
			if ledgerPath == "" {
				return fmt.Errorf("no ledger path: set --ledger or USAGE_LEDGER_PATH")
			}
			return cli.Usage(context.Background(), ledgerPath, since)
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "Path to the SQLite usage ledger")
	cmd.Flags().DurationVar(&since, "since", 0, "Only include usage from this recent window (e.g. 24h)")

	return cmd
}

// readText resolves the analyze payload from the positional arg or --file.
func readText(args []string, filePath string) (string, error) {
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read input file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return "", fmt.Errorf("provide text as an argument or via --file")
}
