package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pocketrb/core/internal/app"
	"github.com/pocketrb/core/internal/channels/cli"
	"github.com/pocketrb/core/internal/config"
)

func buildStartCmd() *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a single channel (terminal) against the agent core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), configPath, chatID)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "local", "chat identifier for the terminal session")
	return cmd
}

func runStart(ctx context.Context, path, chatID string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	term := cli.New(a.Bus, os.Stdin, os.Stdout, chatID, a.Logger)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	go func() { _ = term.Start(ctx) }()

	<-ctx.Done()
	if err := <-errCh; err != nil {
		return err
	}
	return errInterrupted
}
