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

func buildGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start every configured channel plus the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd.Context(), configPath)
		},
	}
	return cmd
}

func runGateway(ctx context.Context, path string) error {
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

	if cfg.Metrics.Enabled {
		go func() {
			if err := a.ServeMetrics(ctx, cfg.Metrics.Addr); err != nil {
				a.Logger.Error("gateway: metrics listener", "error", err)
			}
		}()
	}

	for _, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		switch ch.Name {
		case cli.Type:
			chatID := ch.Settings["chat_id"]
			if chatID == "" {
				chatID = "local"
			}
			term := cli.New(a.Bus, os.Stdin, os.Stdout, chatID, a.Logger)
			go func() { _ = term.Start(ctx) }()
		default:
			a.Logger.Warn("gateway: no adapter built for channel, skipping", "channel", ch.Name)
		}
	}

	if err := a.Run(ctx); err != nil {
		return err
	}
	return errInterrupted
}
