// Package main provides the CLI entry point for pocketrb, the agent
// execution core: a single channel, a gateway of several channels plus
// the scheduler, and cron job management.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// errInterrupted signals a clean shutdown via SIGINT/SIGTERM, mapped to
// exit code 130 rather than the generic runtime-error code 1.
var errInterrupted = errors.New("interrupted")

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(130)
		}
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pocketrb",
		Short:        "pocketrb - a pocket-sized multi-channel AI assistant core",
		Version:      "dev",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pocketrb.yaml", "path to YAML configuration file")
	rootCmd.AddCommand(
		buildStartCmd(),
		buildGatewayCmd(),
		buildCronCmd(),
	)
	return rootCmd
}
