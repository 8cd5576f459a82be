package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/healthtrack/healthtrack/internal/app"
	"github.com/healthtrack/healthtrack/internal/config"
	"github.com/healthtrack/healthtrack/internal/jobs"
	"github.com/healthtrack/healthtrack/internal/logger"
)

// JobsCmd runs maintenance jobs once, for cron or manual use.
func JobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Run maintenance jobs once",
	}

	cmd.AddCommand(
		jobCmd("break-stale", "Reset streaks whose owners missed a day", func(a *app.App) []jobs.Job {
			return []jobs.Job{a.Breaker}
		}),
		jobCmd("archive", "Move old check-in history to S3", func(a *app.App) []jobs.Job {
			if a.Archiver == nil {
				return nil
			}
			return []jobs.Job{a.Archiver}
		}),
		jobCmd("run", "Run every enabled job", func(a *app.App) []jobs.Job {
			return a.Jobs()
		}),
	)
	return cmd
}

func jobCmd(use, short string, pick func(a *app.App) []jobs.Job) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			flush := logger.Init(logger.Options{
				Development: cfg.IsDevelopment(),
				SentryDSN:   cfg.SentryDSN,
				Environment: cfg.AppEnv,
			})
			defer flush()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			selected := pick(a)
			if len(selected) == 0 {
				return fmt.Errorf("%s: job not enabled (check S3 configuration)", use)
			}

			for _, job := range selected {
				n, err := job.Run(ctx)
				if err != nil {
					return fmt.Errorf("%s: %w", job.Name(), err)
				}
				cmd.Printf("%s: %d affected\n", job.Name(), n)
			}
			return nil
		},
	}
}
