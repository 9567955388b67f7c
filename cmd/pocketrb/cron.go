package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocketrb/core/internal/bus"
	"github.com/pocketrb/core/internal/config"
	"github.com/pocketrb/core/internal/cron"
)

func buildCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "List, add, remove, enable, disable, or run scheduled jobs",
	}
	cmd.AddCommand(
		buildCronListCmd(),
		buildCronAddCmd(),
		buildCronRemoveCmd(),
		buildCronEnableCmd(),
		buildCronRunCmd(),
	)
	return cmd
}

func openScheduler() (*cron.Scheduler, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	store, err := cron.NewStore(filepath.Join(cfg.WorkspaceRoot, ".pocketrb", "cron.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("open cron store: %w", err)
	}
	return cron.NewScheduler(store, bus.New(nil)), cfg, nil
}

func buildCronListCmd() *cobra.Command {
	var includeDisabled bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, _, err := openScheduler()
			if err != nil {
				return err
			}
			jobs := scheduler.ListJobs(includeDisabled)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		},
	}
	cmd.Flags().BoolVar(&includeDisabled, "all", false, "include disabled jobs")
	return cmd
}

func buildCronAddCmd() *cobra.Command {
	var (
		name    string
		every   string
		at      string
		cronExp string
		message string
		deliver bool
		channel string
		chatID  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, _, err := openScheduler()
			if err != nil {
				return err
			}

			var schedule cron.Schedule
			switch {
			case every != "":
				d, perr := time.ParseDuration(every)
				if perr != nil {
					return fmt.Errorf("parse --every: %w", perr)
				}
				schedule, err = cron.NewEverySchedule(d)
			case at != "":
				ts, perr := time.Parse(time.RFC3339, at)
				if perr != nil {
					return fmt.Errorf("parse --at: %w", perr)
				}
				schedule, err = cron.NewAtSchedule(ts)
			case cronExp != "":
				schedule, err = cron.NewCronSchedule(cronExp, "")
			default:
				return fmt.Errorf("one of --every, --at, --cron is required")
			}
			if err != nil {
				return err
			}

			payload := cron.Payload{Message: message, Deliver: deliver, Channel: channel, ChatID: chatID}
			job, err := scheduler.AddJob(schedule, payload, name, true, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&every, "every", "", "interval schedule, e.g. 60s")
	cmd.Flags().StringVar(&at, "at", "", "one-shot schedule, RFC3339 timestamp")
	cmd.Flags().StringVar(&cronExp, "cron", "", "cron expression schedule")
	cmd.Flags().StringVar(&message, "message", "", "payload message")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "deliver payload directly to channel instead of routing through the agent loop")
	cmd.Flags().StringVar(&channel, "channel", "", "channel to deliver to (required with --deliver)")
	cmd.Flags().StringVar(&chatID, "chat-id", "", "chat id to deliver to (required with --deliver)")
	return cmd
}

func buildCronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, _, err := openScheduler()
			if err != nil {
				return err
			}
			removed, err := scheduler.RemoveJob(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("job %q not found", args[0])
			}
			return nil
		},
	}
}

func buildCronEnableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enable <job-id> <true|false>",
		Short: "Enable or disable a scheduled job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, _, err := openScheduler()
			if err != nil {
				return err
			}
			enabled, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("parse enabled flag: %w", err)
			}
			found, err := scheduler.EnableJob(args[0], enabled)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("job %q not found", args[0])
			}
			return nil
		},
	}
	return cmd
}

func buildCronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a scheduled job immediately, ignoring its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scheduler, _, err := openScheduler()
			if err != nil {
				return err
			}
			return scheduler.RunJob(cmd.Context(), args[0])
		},
	}
}
