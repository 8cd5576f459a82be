package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/healthtrack/healthtrack/internal/metrics"
	"github.com/healthtrack/healthtrack/internal/model"
	"github.com/healthtrack/healthtrack/internal/repository"
	"github.com/healthtrack/healthtrack/internal/streak"
	"github.com/healthtrack/healthtrack/internal/validation"
)

var (
	ErrMilestoneNotFound       = errors.New("milestone not found")
	ErrMilestoneNotAchieved    = errors.New("milestone not achieved yet")
	ErrMilestoneAlreadyClaimed = errors.New("milestone already claimed")
)

const (
	outcomeSuccess          = "success"
	outcomeAlreadyCheckedIn = "already_checked_in"
)

// MilestoneNotifier is told about milestones unlocked by a check-in.
type MilestoneNotifier interface {
	MilestonesUnlocked(ctx context.Context, identity model.Identity, s *model.Streak, unlocked []model.Milestone) error
}

type StreakService struct {
	repo     repository.StreakRepository
	tracker  *streak.Tracker
	clock    streak.Clock
	notifier MilestoneNotifier
	metrics  *metrics.Metrics
}

func NewStreakService(
	repo repository.StreakRepository,
	tracker *streak.Tracker,
	clock streak.Clock,
	notifier MilestoneNotifier,
	m *metrics.Metrics,
) *StreakService {
	return &StreakService{
		repo:     repo,
		tracker:  tracker,
		clock:    clock,
		notifier: notifier,
		metrics:  m,
	}
}

// maxSaveAttempts bounds how often a check-in is recomputed after losing a
// race with another write to the same streak.
const maxSaveAttempts = 3

type CheckInResult struct {
	Outcome streak.Outcome
	Streak  *model.Streak
}

// CheckIn records today's activity for the caller's streak of type t,
// creating the streak on first use. Already having checked in today is
// reported through the outcome, not as an error.
func (s *StreakService) CheckIn(ctx context.Context, identity model.Identity, t model.ActivityType, activity string, meta model.EntryMetadata) (*CheckInResult, error) {
	activity = strings.TrimSpace(activity)
	if err := validation.ValidateActivity(activity); err != nil {
		return nil, err
	}
	if err := validation.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	rec, err := s.loadOrCreate(ctx, identity.UserID, t)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var outcome streak.Outcome
	for attempt := 1; ; attempt++ {
		outcome = s.tracker.CheckIn(rec, activity, meta, now)
		if !outcome.Success() {
			s.metrics.CheckIn(t, outcomeAlreadyCheckedIn)
			return &CheckInResult{Outcome: outcome, Streak: rec}, nil
		}

		outcome.Entry.ID = uuid.New().String()
		outcome.Entry.StreakID = rec.ID

		err = s.repo.SaveCheckIn(ctx, rec, outcome.Entry, outcome.Unlocked)
		if errors.Is(err, repository.ErrDuplicateCheckIn) {
			// A concurrent request committed today's entry first.
			committed, err := s.repo.Active(ctx, identity.UserID, t)
			if err != nil {
				return nil, fmt.Errorf("failed to reload streak: %w", err)
			}
			s.metrics.CheckIn(t, outcomeAlreadyCheckedIn)
			return &CheckInResult{
				Outcome: streak.Outcome{Status: streak.StatusAlreadyCheckedIn, CurrentStreak: committed.CurrentStreak},
				Streak:  committed,
			}, nil
		}
		if errors.Is(err, repository.ErrConcurrentUpdate) && attempt < maxSaveAttempts {
			// Another writer changed the streak since it was loaded. Recompute
			// from the committed state so the count reflects its entry too.
			slog.Debug("retrying check-in after concurrent update", "user_id", identity.UserID, "type", t, "attempt", attempt)
			rec, err = s.repo.Active(ctx, identity.UserID, t)
			if err != nil {
				return nil, fmt.Errorf("failed to reload streak: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save check-in: %w", err)
		}
		break
	}

	s.metrics.CheckIn(t, outcomeSuccess)
	s.metrics.MilestonesUnlocked(t, outcome.Unlocked)

	if len(outcome.Unlocked) > 0 {
		slog.Info("milestones unlocked", "user_id", identity.UserID, "type", t, "current_streak", rec.CurrentStreak, "count", len(outcome.Unlocked))
		if s.notifier != nil {
			if err := s.notifier.MilestonesUnlocked(ctx, identity, rec, outcome.Unlocked); err != nil {
				slog.Warn("failed to send milestone notification", "error", err, "user_id", identity.UserID, "streak_id", rec.ID)
			}
		}
	}

	return &CheckInResult{Outcome: outcome, Streak: rec}, nil
}

func (s *StreakService) loadOrCreate(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error) {
	rec, err := s.repo.Active(ctx, userID, t)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repository.ErrStreakNotFound) {
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}

	rec = model.NewStreak(uuid.New().String(), userID, t, nil, s.clock.Now())
	for i := range rec.Milestones {
		rec.Milestones[i].ID = uuid.New().String()
	}

	err = s.repo.Create(ctx, rec)
	if errors.Is(err, repository.ErrDuplicateStreak) {
		rec, err = s.repo.Active(ctx, userID, t)
		if err != nil {
			return nil, fmt.Errorf("failed to reload streak: %w", err)
		}
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create streak: %w", err)
	}

	slog.Debug("streak created", "user_id", userID, "type", t, "streak_id", rec.ID)
	return rec, nil
}

// Active returns the caller's active streaks, never nil.
func (s *StreakService) Active(ctx context.Context, userID string) ([]*model.Streak, error) {
	streaks, err := s.repo.ActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streaks: %w", err)
	}
	if streaks == nil {
		streaks = []*model.Streak{}
	}
	return streaks, nil
}

func (s *StreakService) UpdateGoal(ctx context.Context, userID string, t model.ActivityType, goal int) (*model.Streak, error) {
	rec, err := s.repo.Active(ctx, userID, t)
	if err != nil {
		return nil, err
	}

	if err := s.tracker.UpdateGoal(rec, goal, s.clock.Now()); err != nil {
		return nil, err
	}

	if err := s.repo.SaveGoal(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save goal: %w", err)
	}

	return rec, nil
}

// ClaimMilestone marks an achieved milestone's reward as claimed.
func (s *StreakService) ClaimMilestone(ctx context.Context, userID string, t model.ActivityType, days int) (*model.Streak, error) {
	rec, err := s.repo.Active(ctx, userID, t)
	if err != nil {
		return nil, err
	}

	m := rec.Milestone(days)
	switch {
	case m == nil:
		return nil, ErrMilestoneNotFound
	case !m.Achieved:
		return nil, ErrMilestoneNotAchieved
	case m.Claimed:
		return nil, ErrMilestoneAlreadyClaimed
	}

	err = s.repo.ClaimMilestone(ctx, rec.ID, days)
	if errors.Is(err, repository.ErrMilestoneNotFound) {
		return nil, ErrMilestoneAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim milestone: %w", err)
	}

	m.Claimed = true
	s.metrics.MilestoneClaimed(t, days)
	slog.Info("milestone claimed", "user_id", userID, "type", t, "days", days)

	return rec, nil
}
