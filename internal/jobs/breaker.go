package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/healthtrack/healthtrack/internal/metrics"
	"github.com/healthtrack/healthtrack/internal/repository"
	"github.com/healthtrack/healthtrack/internal/streak"
)

// Breaker resets streaks whose owners missed a full day. Without it a
// positive CurrentStreak stays stale until the next check-in.
type Breaker struct {
	repo    repository.StreakRepository
	tracker *streak.Tracker
	clock   streak.Clock
	metrics *metrics.Metrics
}

func NewBreaker(repo repository.StreakRepository, tracker *streak.Tracker, clock streak.Clock, m *metrics.Metrics) *Breaker {
	return &Breaker{repo: repo, tracker: tracker, clock: clock, metrics: m}
}

func (b *Breaker) Name() string {
	return "break-stale"
}

// Run breaks every active streak whose last check-in day is before
// yesterday and returns how many were reset.
func (b *Breaker) Run(ctx context.Context) (int, error) {
	now := b.clock.Now()
	cutoff := b.tracker.StartOfDay(now).AddDate(0, 0, -1)

	candidates, err := b.repo.Stale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale streaks: %w", err)
	}

	var errs []error
	broken := 0
	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !b.tracker.IsStale(rec, now) {
			continue
		}

		b.tracker.BreakStreak(rec, now)

		err := b.repo.SaveBreak(ctx, rec, cutoff)
		if errors.Is(err, repository.ErrStreakNotStale) {
			slog.Debug("streak checked in before break", "streak_id", rec.ID)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("streak %s: %w", rec.ID, err))
			continue
		}
		broken++
	}

	b.metrics.StreaksBroken(broken)
	if broken > 0 {
		slog.Info("stale streaks broken", "count", broken, "cutoff", cutoff)
	}

	return broken, errors.Join(errs...)
}
