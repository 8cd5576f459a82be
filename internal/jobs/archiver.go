package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/healthtrack/healthtrack/internal/metrics"
	"github.com/healthtrack/healthtrack/internal/model"
	"github.com/healthtrack/healthtrack/internal/repository"
	"github.com/healthtrack/healthtrack/internal/storage"
	"github.com/healthtrack/healthtrack/internal/streak"
)

// MinRetentionDays keeps yesterday's entry, which check-in continuation reads.
const MinRetentionDays = 2

// Archiver moves history entries older than the retention window to object
// storage and removes them from the database.
type Archiver struct {
	repo          repository.StreakRepository
	store         storage.Storage
	tracker       *streak.Tracker
	clock         streak.Clock
	retentionDays int
	metrics       *metrics.Metrics
}

func NewArchiver(repo repository.StreakRepository, store storage.Storage, tracker *streak.Tracker, clock streak.Clock, retentionDays int, m *metrics.Metrics) (*Archiver, error) {
	if retentionDays < MinRetentionDays {
		return nil, fmt.Errorf("history retention must be at least %d days, got %d", MinRetentionDays, retentionDays)
	}
	return &Archiver{
		repo:          repo,
		store:         store,
		tracker:       tracker,
		clock:         clock,
		retentionDays: retentionDays,
		metrics:       m,
	}, nil
}

func (a *Archiver) Name() string {
	return "archive-history"
}

// Archive is the stored document for one streak's archived entries.
type Archive struct {
	StreakID   string               `json:"streakId"`
	UserID     string               `json:"user"`
	Type       model.ActivityType   `json:"type"`
	Until      string               `json:"until"`
	ArchivedAt time.Time            `json:"archivedAt"`
	Entries    []model.HistoryEntry `json:"entries"`
}

// Key returns the object key of the archive.
func (a Archive) Key() string {
	return fmt.Sprintf("archive/%s/%s/%s-%s.json", a.UserID, a.Type, a.StreakID, a.Until)
}

// Run archives every entry dated before the retention window and returns the
// number of entries removed from the database.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	now := a.clock.Now()
	before := a.tracker.DayBucket(now).AddDate(0, 0, -(a.retentionDays - 1))

	batches, err := a.repo.ArchivableHistory(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to load archivable history: %w", err)
	}

	var errs []error
	archived := 0
	for _, rec := range batches {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		doc := Archive{
			StreakID:   rec.ID,
			UserID:     rec.UserID,
			Type:       rec.Type,
			Until:      before.Format(model.DayLayout),
			ArchivedAt: now.UTC(),
			Entries:    rec.History,
		}

		n, err := a.archive(ctx, doc, before)
		if err != nil {
			errs = append(errs, fmt.Errorf("streak %s: %w", rec.ID, err))
			continue
		}
		archived += int(n)
	}

	a.metrics.HistoryArchived(archived)
	if archived > 0 {
		slog.Info("history archived", "entries", archived, "streaks", len(batches), "before", before.Format(model.DayLayout))
	}

	return archived, errors.Join(errs...)
}

func (a *Archiver) archive(ctx context.Context, doc Archive, before time.Time) (int64, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to encode archive: %w", err)
	}

	key := doc.Key()
	if err := a.store.Save(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return 0, err
	}

	n, err := a.repo.DeleteHistoryBefore(ctx, doc.StreakID, before)
	if err != nil {
		// The entries are still in the database; the next run rewrites the object.
		if delErr := a.store.Delete(ctx, key); delErr != nil {
			slog.Error("failed to remove orphaned archive", "error", delErr, "key", key)
		}
		return 0, fmt.Errorf("failed to delete archived history: %w", err)
	}

	return n, nil
}
