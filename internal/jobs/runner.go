// Package jobs holds the periodic maintenance tasks: breaking stale streaks
// and archiving old history.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Job interface {
	Name() string
	// Run performs one pass and returns the number of records affected.
	Run(ctx context.Context) (int, error)
}

type Runner struct {
	jobs     []Job
	interval time.Duration
}

func NewRunner(interval time.Duration, jobs ...Job) *Runner {
	return &Runner{jobs: jobs, interval: interval}
}

// RunOnce runs every job once. A failing job does not stop the others.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	for _, job := range r.jobs {
		start := time.Now()
		n, err := job.Run(ctx)
		if err != nil {
			slog.Error("job failed", "job", job.Name(), "affected", n, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
			continue
		}
		slog.Debug("job finished", "job", job.Name(), "affected", n, "duration_ms", time.Since(start).Milliseconds())
	}
	return errors.Join(errs...)
}

// Start runs all jobs immediately and then on every tick until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	slog.Info("jobs started", "interval", r.interval, "jobs", len(r.jobs))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		_ = r.RunOnce(ctx)

		select {
		case <-ctx.Done():
			slog.Info("jobs stopped")
			return
		case <-ticker.C:
		}
	}
}
