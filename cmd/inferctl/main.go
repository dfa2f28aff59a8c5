package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRootCmd constructs the Cobra command tree wired to the HTTP client.
func buildRootCmd() *cobra.Command {
	cli := &client{}
	root := &cobra.Command{
		Use:           "inferctl",
		Short:         "Client for the inferd HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cli.addr, "addr", envDefault("INFERD_ADDR", "http://127.0.0.1:8080"), "Base URL of the inferd daemon")
	root.PersistentFlags().IntVar(&cli.timeoutS, "timeout", 600, "Request timeout in seconds")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List models known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.models(cmd.OutOrStdout())
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show manager and instance status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.status(cmd.OutOrStdout())
		},
	}

	var genFlags generateFlags
	generateCmd := &cobra.Command{
		Use:     "generate [prompts...]",
		Short:   "Generate completions for one or more prompts in a single batch",
		Example: "  inferctl generate --model tiny.gguf --max-tokens 64 \"Hello\" \"Bonjour\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.generate(cmd.OutOrStdout(), genFlags, args)
		},
	}
	generateCmd.Flags().StringVar(&genFlags.model, "model", "", "Model id (daemon default when empty)")
	generateCmd.Flags().IntVar(&genFlags.maxTokens, "max-tokens", 128, "Maximum new tokens per prompt")
	generateCmd.Flags().IntVar(&genFlags.topK, "top-k", 0, "Top-K sampling")
	generateCmd.Flags().Float64Var(&genFlags.topP, "top-p", 0, "Top-P sampling")
	generateCmd.Flags().Float64Var(&genFlags.temperature, "temperature", 0, "Sampling temperature")
	generateCmd.Flags().IntVar(&genFlags.repeatLastN, "repeat-last-n", 0, "Repeat penalty window")
	generateCmd.Flags().Float64Var(&genFlags.repeatPenalty, "repeat-penalty", 0, "Repeat penalty factor")
	generateCmd.Flags().Int64Var(&genFlags.seed, "seed", 0, "Sampling seed (0 = server chooses)")
	generateCmd.Flags().BoolVar(&genFlags.progress, "progress", false, "Draw a progress bar on the daemon's diagnostic stream")

	root.AddCommand(modelsCmd, statusCmd, generateCmd)
	return root
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
