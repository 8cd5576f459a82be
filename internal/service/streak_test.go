package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthtrack/healthtrack/internal/db"
	"github.com/healthtrack/healthtrack/internal/metrics"
	"github.com/healthtrack/healthtrack/internal/model"
	"github.com/healthtrack/healthtrack/internal/repository"
	"github.com/healthtrack/healthtrack/internal/streak"
	"github.com/healthtrack/healthtrack/internal/validation"
)

var t0 = time.Date(2026, 4, 1, 7, 15, 0, 0, time.UTC)

// fakeClock is advanced explicitly by tests.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) nextDay() { c.now = c.now.AddDate(0, 0, 1) }

type notifierFunc func(ctx context.Context, identity model.Identity, s *model.Streak, unlocked []model.Milestone) error

func (f notifierFunc) MilestonesUnlocked(ctx context.Context, identity model.Identity, s *model.Streak, unlocked []model.Milestone) error {
	return f(ctx, identity, s, unlocked)
}

// repoOverride wraps a real repository and lets a test replace single methods.
type repoOverride struct {
	repository.StreakRepository
	saveCheckIn func(ctx context.Context, s *model.Streak, entry *model.HistoryEntry, unlocked []model.Milestone) error
	active      func(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error)
}

func (r *repoOverride) SaveCheckIn(ctx context.Context, s *model.Streak, entry *model.HistoryEntry, unlocked []model.Milestone) error {
	if r.saveCheckIn != nil {
		return r.saveCheckIn(ctx, s, entry, unlocked)
	}
	return r.StreakRepository.SaveCheckIn(ctx, s, entry, unlocked)
}

func (r *repoOverride) Active(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error) {
	if r.active != nil {
		return r.active(ctx, userID, t)
	}
	return r.StreakRepository.Active(ctx, userID, t)
}

func newTestRepo(t *testing.T) repository.StreakRepository {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Init(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(conn) })
	require.NoError(t, db.RunMigrations(ctx, conn.DB, db.DriverSQLite))

	return repository.NewStreakRepository(conn)
}

type serviceFixture struct {
	svc      *StreakService
	repo     repository.StreakRepository
	clock    *fakeClock
	metrics  *metrics.Metrics
	notified [][]model.Milestone
}

func newFixture(t *testing.T, repo repository.StreakRepository) *serviceFixture {
	f := &serviceFixture{repo: repo, clock: &fakeClock{now: t0}, metrics: metrics.New()}
	notifier := notifierFunc(func(_ context.Context, _ model.Identity, _ *model.Streak, unlocked []model.Milestone) error {
		f.notified = append(f.notified, unlocked)
		return nil
	})
	f.svc = NewStreakService(repo, streak.NewTracker(time.UTC), f.clock, notifier, f.metrics)
	return f
}

var alice = model.Identity{UserID: "alice", Email: "alice@example.com"}

func TestStreakService_CheckInScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newTestRepo(t))

	res, err := f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "  run  ", model.EntryMetadata{})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Success())
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, "run", res.Streak.History[0].Activity)

	res, err = f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run again", model.EntryMetadata{})
	require.NoError(t, err)
	assert.Equal(t, streak.StatusAlreadyCheckedIn, res.Outcome.Status)
	assert.Equal(t, 1, res.Streak.CurrentStreak)

	f.clock.nextDay()
	res, err = f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run", model.EntryMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Outcome.CurrentStreak)

	f.clock.nextDay()
	f.clock.nextDay()
	res, err = f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run", model.EntryMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Outcome.CurrentStreak)

	stored, err := f.repo.Active(ctx, "alice", model.ActivityWorkout)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentStreak)
	assert.Equal(t, 2, stored.LongestStreak)
	assert.Len(t, stored.History, 3)

	assert.Equal(t, 3.0, checkInCount(t, f.metrics, "workout", outcomeSuccess))
	assert.Equal(t, 1.0, checkInCount(t, f.metrics, "workout", outcomeAlreadyCheckedIn))
}

func TestStreakService_AlreadyCheckedInDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	writes := 0
	repo := &repoOverride{StreakRepository: newTestRepo(t)}
	repo.saveCheckIn = func(ctx context.Context, s *model.Streak, entry *model.HistoryEntry, unlocked []model.Milestone) error {
		writes++
		return repo.StreakRepository.SaveCheckIn(ctx, s, entry, unlocked)
	}
	f := newFixture(t, repo)

	_, err := f.svc.CheckIn(ctx, alice, model.ActivitySleep, "8h", model.EntryMetadata{})
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, alice, model.ActivitySleep, "8h", model.EntryMetadata{})
	require.NoError(t, err)

	assert.Equal(t, 1, writes)
}

func TestStreakService_ConcurrentDuplicateReportsAlreadyCheckedIn(t *testing.T) {
	ctx := context.Background()
	base := newTestRepo(t)
	f := newFixture(t, base)

	// Another request commits today's check-in between our load and save.
	_, err := f.svc.CheckIn(ctx, alice, model.ActivityWater, "glass", model.EntryMetadata{})
	require.NoError(t, err)
	stale, err := base.Active(ctx, "alice", model.ActivityWater)
	require.NoError(t, err)

	f.clock.nextDay()
	winner := newFixture(t, base)
	winner.clock.now = f.clock.now

	loads := 0
	repo := &repoOverride{StreakRepository: base}
	repo.active = func(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error) {
		loads++
		if loads == 1 {
			_, err := winner.svc.CheckIn(ctx, alice, model.ActivityWater, "winner", model.EntryMetadata{})
			if err != nil {
				return nil, err
			}
			return stale, nil
		}
		return base.Active(ctx, userID, t)
	}
	loser := NewStreakService(repo, streak.NewTracker(time.UTC), f.clock, nil, f.metrics)

	res, err := loser.CheckIn(ctx, alice, model.ActivityWater, "loser", model.EntryMetadata{})
	require.NoError(t, err)
	assert.Equal(t, streak.StatusAlreadyCheckedIn, res.Outcome.Status)
	assert.Equal(t, 2, res.Streak.CurrentStreak)
	require.Len(t, res.Streak.History, 2)
	assert.Equal(t, "winner", res.Streak.History[1].Activity)
	assert.Equal(t, 1.0, checkInCount(t, f.metrics, "water", outcomeAlreadyCheckedIn))
}

func TestStreakService_CheckInAcrossMidnightRace(t *testing.T) {
	ctx := context.Background()
	base := newTestRepo(t)

	seed := newFixture(t, base)
	for i := 0; i < 3; i++ {
		_, err := seed.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run", model.EntryMetadata{})
		require.NoError(t, err)
		seed.clock.nextDay()
	}

	// One request lands just before midnight, the other just after, and both
	// loaded the streak before either saved.
	late := newFixture(t, base)
	late.clock.now = time.Date(2026, 4, 4, 23, 59, 59, 0, time.UTC)

	loads, saves := 0, 0
	repo := &repoOverride{StreakRepository: base}
	repo.active = func(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error) {
		loads++
		if loads == 1 {
			stale, err := base.Active(ctx, userID, t)
			if err != nil {
				return nil, err
			}
			if _, err := late.svc.CheckIn(ctx, alice, model.ActivityWorkout, "late run", model.EntryMetadata{}); err != nil {
				return nil, err
			}
			return stale, nil
		}
		return base.Active(ctx, userID, t)
	}
	repo.saveCheckIn = func(ctx context.Context, s *model.Streak, entry *model.HistoryEntry, unlocked []model.Milestone) error {
		saves++
		return base.SaveCheckIn(ctx, s, entry, unlocked)
	}

	f := newFixture(t, repo)
	f.clock.now = time.Date(2026, 4, 5, 0, 0, 1, 0, time.UTC)

	res, err := f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "early run", model.EntryMetadata{})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Success())
	assert.Equal(t, 5, res.Outcome.CurrentStreak)
	assert.Equal(t, 2, saves)
	assert.Equal(t, 2, loads)

	stored, err := base.Active(ctx, "alice", model.ActivityWorkout)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.CurrentStreak)
	assert.Equal(t, 5, stored.LongestStreak)
	require.Len(t, stored.History, 5)
	assert.Equal(t, "late run", stored.History[3].Activity)
	assert.Equal(t, "early run", stored.History[4].Activity)

	// The run keeps counting from the true length the next day.
	f.clock.nextDay()
	res, err = f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run", model.EntryMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Outcome.CurrentStreak)
	assert.Equal(t, 2.0, checkInCount(t, f.metrics, "workout", outcomeSuccess))
}

func TestStreakService_CheckInGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	saves := 0
	repo := &repoOverride{StreakRepository: newTestRepo(t)}
	repo.saveCheckIn = func(context.Context, *model.Streak, *model.HistoryEntry, []model.Milestone) error {
		saves++
		return repository.ErrConcurrentUpdate
	}
	f := newFixture(t, repo)

	_, err := f.svc.CheckIn(ctx, alice, model.ActivityWater, "glass", model.EntryMetadata{})
	assert.ErrorIs(t, err, repository.ErrConcurrentUpdate)
	assert.Equal(t, maxSaveAttempts, saves)
	assert.Equal(t, 0.0, checkInCount(t, f.metrics, "water", outcomeSuccess))
}

func TestStreakService_MilestoneUnlockNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newTestRepo(t))

	for i := 0; i < 7; i++ {
		res, err := f.svc.CheckIn(ctx, alice, model.ActivityMeditation, "sit", model.EntryMetadata{})
		require.NoError(t, err)
		require.True(t, res.Outcome.Success())
		f.clock.nextDay()
	}

	require.Len(t, f.notified, 1)
	assert.Equal(t, 7, f.notified[0][0].Days)

	stored, err := f.repo.Active(ctx, "alice", model.ActivityMeditation)
	require.NoError(t, err)
	assert.True(t, stored.Milestone(7).Achieved)
	assert.False(t, stored.Milestone(30).Achieved)
}

func TestStreakService_NotifierFailureDoesNotFailCheckIn(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	clock := &fakeClock{now: t0}
	failing := notifierFunc(func(context.Context, model.Identity, *model.Streak, []model.Milestone) error {
		return errors.New("smtp down")
	})
	svc := NewStreakService(repo, streak.NewTracker(time.UTC), clock, failing, nil)

	rec := model.NewStreak("s-one", "alice", model.ActivityWater, []model.Milestone{{ID: "m1", Days: 1, Reward: "First Sip"}}, t0)
	require.NoError(t, repo.Create(ctx, rec))

	res, err := svc.CheckIn(ctx, alice, model.ActivityWater, "glass", model.EntryMetadata{})
	require.NoError(t, err)
	assert.True(t, res.Outcome.Success())
	require.Len(t, res.Outcome.Unlocked, 1)
}

func TestStreakService_CheckInValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newTestRepo(t))

	_, err := f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "   ", model.EntryMetadata{})
	assert.ErrorIs(t, err, validation.ErrActivityRequired)

	negative := -5
	_, err = f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run", model.EntryMetadata{Duration: &negative})
	assert.ErrorIs(t, err, validation.ErrInvalidDuration)

	streaks, err := f.svc.Active(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, streaks)
}

func TestStreakService_CreationRaceReloadsWinner(t *testing.T) {
	ctx := context.Background()
	base := newTestRepo(t)

	winner := model.NewStreak("winner-id", "alice", model.ActivityNutrition, nil, t0)
	for i := range winner.Milestones {
		winner.Milestones[i].ID = winner.ID + "-" + winner.Milestones[i].Reward
	}

	first := true
	repo := &repoOverride{StreakRepository: base}
	repo.active = func(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error) {
		if first {
			first = false
			if err := base.Create(ctx, winner); err != nil {
				return nil, err
			}
			return nil, repository.ErrStreakNotFound
		}
		return base.Active(ctx, userID, t)
	}
	f := newFixture(t, repo)

	res, err := f.svc.CheckIn(ctx, alice, model.ActivityNutrition, "salad", model.EntryMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "winner-id", res.Streak.ID)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
}

func TestStreakService_Active(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newTestRepo(t))

	for _, typ := range []model.ActivityType{model.ActivityWorkout, model.ActivityWater} {
		_, err := f.svc.CheckIn(ctx, alice, typ, "x", model.EntryMetadata{})
		require.NoError(t, err)
	}
	_, err := f.svc.CheckIn(ctx, model.Identity{UserID: "bob"}, model.ActivityWorkout, "x", model.EntryMetadata{})
	require.NoError(t, err)

	streaks, err := f.svc.Active(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, streaks, 2)
}

func TestStreakService_UpdateGoal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newTestRepo(t))

	_, err := f.svc.UpdateGoal(ctx, "alice", model.ActivityWorkout, 10)
	assert.ErrorIs(t, err, repository.ErrStreakNotFound)

	_, err = f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run", model.EntryMetadata{})
	require.NoError(t, err)

	_, err = f.svc.UpdateGoal(ctx, "alice", model.ActivityWorkout, 0)
	assert.ErrorIs(t, err, streak.ErrInvalidGoal)

	rec, err := f.svc.UpdateGoal(ctx, "alice", model.ActivityWorkout, 90)
	require.NoError(t, err)
	assert.Equal(t, 90, rec.Goal)

	stored, err := f.repo.Active(ctx, "alice", model.ActivityWorkout)
	require.NoError(t, err)
	assert.Equal(t, 90, stored.Goal)
	assert.Equal(t, 1, stored.CurrentStreak)
}

func TestStreakService_ClaimMilestone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, newTestRepo(t))

	_, err := f.svc.ClaimMilestone(ctx, "alice", model.ActivityWorkout, 7)
	assert.ErrorIs(t, err, repository.ErrStreakNotFound)

	for i := 0; i < 7; i++ {
		_, err := f.svc.CheckIn(ctx, alice, model.ActivityWorkout, "run", model.EntryMetadata{})
		require.NoError(t, err)
		f.clock.nextDay()
	}

	_, err = f.svc.ClaimMilestone(ctx, "alice", model.ActivityWorkout, 12)
	assert.ErrorIs(t, err, ErrMilestoneNotFound)

	_, err = f.svc.ClaimMilestone(ctx, "alice", model.ActivityWorkout, 30)
	assert.ErrorIs(t, err, ErrMilestoneNotAchieved)

	rec, err := f.svc.ClaimMilestone(ctx, "alice", model.ActivityWorkout, 7)
	require.NoError(t, err)
	assert.True(t, rec.Milestone(7).Claimed)

	_, err = f.svc.ClaimMilestone(ctx, "alice", model.ActivityWorkout, 7)
	assert.ErrorIs(t, err, ErrMilestoneAlreadyClaimed)
}

func checkInCount(t *testing.T, m *metrics.Metrics, typ, outcome string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "healthtrack_checkins_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["type"] == typ && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
