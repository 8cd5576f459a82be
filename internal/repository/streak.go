package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/healthtrack/healthtrack/internal/model"
)

var (
	ErrStreakNotFound    = errors.New("streak not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrDuplicateStreak   = errors.New("active streak already exists")
	ErrDuplicateCheckIn  = errors.New("check-in already recorded for this day")
	ErrStreakNotStale    = errors.New("streak is no longer stale")
	ErrConcurrentUpdate  = errors.New("streak was modified concurrently")
)

type StreakRepository interface {
	// Active loads the active streak of the given type with its history and
	// milestones.
	Active(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error)
	ActiveByUser(ctx context.Context, userID string) ([]*model.Streak, error)
	Create(ctx context.Context, s *model.Streak) error
	// SaveCheckIn persists a successful check-in atomically. A second entry
	// for the same day fails with ErrDuplicateCheckIn and changes nothing.
	// If the stored row changed since s was loaded it fails with
	// ErrConcurrentUpdate and changes nothing.
	SaveCheckIn(ctx context.Context, s *model.Streak, entry *model.HistoryEntry, unlocked []model.Milestone) error
	SaveGoal(ctx context.Context, s *model.Streak) error
	// SaveBreak resets the stored streak only if its last check-in is still
	// before staleBefore, otherwise ErrStreakNotStale.
	SaveBreak(ctx context.Context, s *model.Streak, staleBefore time.Time) error
	ClaimMilestone(ctx context.Context, streakID string, days int) error
	// Stale lists active streaks with a positive count whose last check-in
	// is before the cutoff. History and milestones are not loaded.
	Stale(ctx context.Context, before time.Time) ([]*model.Streak, error)
	// ArchivableHistory returns streaks carrying only their history entries
	// dated before the given day.
	ArchivableHistory(ctx context.Context, before time.Time) ([]*model.Streak, error)
	DeleteHistoryBefore(ctx context.Context, streakID string, before time.Time) (int64, error)
}

type streakRepository struct {
	db *sqlx.DB
}

func NewStreakRepository(db *sqlx.DB) StreakRepository {
	return &streakRepository{db: db}
}

// historyRow is the storage shape of model.HistoryEntry.
type historyRow struct {
	ID        string    `db:"id"`
	StreakID  string    `db:"streak_id"`
	Day       string    `db:"day"`
	Completed bool      `db:"completed"`
	Activity  string    `db:"activity"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

func (row historyRow) entry() (model.HistoryEntry, error) {
	day, err := time.Parse(model.DayLayout, row.Day)
	if err != nil {
		return model.HistoryEntry{}, fmt.Errorf("invalid history day %q: %w", row.Day, err)
	}

	var meta model.EntryMetadata
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
			return model.HistoryEntry{}, fmt.Errorf("invalid history metadata: %w", err)
		}
	}

	return model.HistoryEntry{
		ID:        row.ID,
		StreakID:  row.StreakID,
		Day:       day,
		Completed: row.Completed,
		Activity:  row.Activity,
		Metadata:  meta,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *streakRepository) Active(ctx context.Context, userID string, t model.ActivityType) (*model.Streak, error) {
	s := &model.Streak{}
	query := `SELECT * FROM streaks WHERE user_id = $1 AND type = $2 AND is_active = $3`

	err := r.db.GetContext(ctx, s, query, userID, t, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStreakNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadChildren(ctx, s); err != nil {
		return nil, err
	}

	return s, nil
}

func (r *streakRepository) ActiveByUser(ctx context.Context, userID string) ([]*model.Streak, error) {
	var streaks []*model.Streak
	query := `SELECT * FROM streaks WHERE user_id = $1 AND is_active = $2 ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &streaks, query, userID, true); err != nil {
		return nil, err
	}

	for _, s := range streaks {
		if err := r.loadChildren(ctx, s); err != nil {
			return nil, err
		}
	}

	return streaks, nil
}

func (r *streakRepository) loadChildren(ctx context.Context, s *model.Streak) error {
	var rows []historyRow
	query := `SELECT * FROM streak_history WHERE streak_id = $1 ORDER BY day ASC`
	if err := r.db.SelectContext(ctx, &rows, query, s.ID); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	s.History = make([]model.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.entry()
		if err != nil {
			return err
		}
		s.History = append(s.History, e)
	}

	s.Milestones = []model.Milestone{}
	query = `SELECT * FROM streak_milestones WHERE streak_id = $1 ORDER BY days ASC`
	if err := r.db.SelectContext(ctx, &s.Milestones, query, s.ID); err != nil {
		return fmt.Errorf("failed to load milestones: %w", err)
	}

	return nil
}

func (r *streakRepository) Create(ctx context.Context, s *model.Streak) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO streaks (id, user_id, type, current_streak, longest_streak, goal, last_check_in, is_active, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = tx.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		s.Type,
		s.CurrentStreak,
		s.LongestStreak,
		s.Goal,
		utcPtr(s.LastCheckIn),
		s.IsActive,
		s.Version,
		s.CreatedAt.UTC(),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateStreak
		}
		return err
	}

	query = `INSERT INTO streak_milestones (id, streak_id, days, reward, achieved, achieved_at, claimed)
	         VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for i := range s.Milestones {
		m := &s.Milestones[i]
		m.StreakID = s.ID
		_, err := tx.ExecContext(ctx, query, m.ID, m.StreakID, m.Days, m.Reward, m.Achieved, utcPtr(m.AchievedAt), m.Claimed)
		if err != nil {
			return fmt.Errorf("failed to create milestone %d: %w", m.Days, err)
		}
	}

	return tx.Commit()
}

func (r *streakRepository) SaveCheckIn(ctx context.Context, s *model.Streak, entry *model.HistoryEntry, unlocked []model.Milestone) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO streak_history (id, streak_id, day, completed, activity, metadata, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.ExecContext(ctx, query,
		entry.ID,
		s.ID,
		entry.Day.Format(model.DayLayout),
		entry.Completed,
		entry.Activity,
		string(meta),
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCheckIn
		}
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	query = `UPDATE streaks
	         SET current_streak = $1, longest_streak = $2, last_check_in = $3, updated_at = $4, version = version + 1
	         WHERE id = $5 AND version = $6`

	result, err := tx.ExecContext(ctx, query, s.CurrentStreak, s.LongestStreak, utcPtr(s.LastCheckIn), s.UpdatedAt.UTC(), s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	if err := requireRow(result, ErrConcurrentUpdate); err != nil {
		return err
	}

	query = `UPDATE streak_milestones
	         SET achieved = $1, achieved_at = $2
	         WHERE streak_id = $3 AND days = $4 AND achieved = $5`

	for _, m := range unlocked {
		_, err := tx.ExecContext(ctx, query, true, utcPtr(m.AchievedAt), s.ID, m.Days, false)
		if err != nil {
			return fmt.Errorf("failed to unlock milestone %d: %w", m.Days, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (r *streakRepository) SaveGoal(ctx context.Context, s *model.Streak) error {
	query := `UPDATE streaks SET goal = $1, updated_at = $2, version = version + 1 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, s.Goal, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	if err := requireRow(result, ErrStreakNotFound); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (r *streakRepository) SaveBreak(ctx context.Context, s *model.Streak, staleBefore time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current struct {
		CurrentStreak int        `db:"current_streak"`
		LastCheckIn   *time.Time `db:"last_check_in"`
	}
	query := `SELECT current_streak, last_check_in FROM streaks WHERE id = $1` + r.forUpdate()

	err = tx.GetContext(ctx, &current, query, s.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStreakNotFound
	}
	if err != nil {
		return err
	}

	// A check-in may have landed between listing and breaking.
	if current.CurrentStreak == 0 || current.LastCheckIn == nil || !current.LastCheckIn.Before(staleBefore) {
		return ErrStreakNotStale
	}

	query = `UPDATE streaks SET current_streak = $1, last_check_in = $2, updated_at = $3, version = version + 1 WHERE id = $4`
	if _, err := tx.ExecContext(ctx, query, s.CurrentStreak, utcPtr(s.LastCheckIn), s.UpdatedAt.UTC(), s.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (r *streakRepository) ClaimMilestone(ctx context.Context, streakID string, days int) error {
	query := `UPDATE streak_milestones
	          SET claimed = $1
	          WHERE streak_id = $2 AND days = $3 AND achieved = $4 AND claimed = $5`

	result, err := r.db.ExecContext(ctx, query, true, streakID, days, true, false)
	if err != nil {
		return err
	}

	return requireRow(result, ErrMilestoneNotFound)
}

func (r *streakRepository) Stale(ctx context.Context, before time.Time) ([]*model.Streak, error) {
	var streaks []*model.Streak
	query := `SELECT * FROM streaks
	          WHERE is_active = $1 AND current_streak > 0 AND last_check_in < $2
	          ORDER BY last_check_in ASC`

	if err := r.db.SelectContext(ctx, &streaks, query, true, before.UTC()); err != nil {
		return nil, err
	}

	return streaks, nil
}

func (r *streakRepository) ArchivableHistory(ctx context.Context, before time.Time) ([]*model.Streak, error) {
	var rows []historyRow
	query := `SELECT * FROM streak_history WHERE day < $1 ORDER BY streak_id ASC, day ASC`

	if err := r.db.SelectContext(ctx, &rows, query, before.Format(model.DayLayout)); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var streaks []*model.Streak
	byID := make(map[string]*model.Streak)
	for _, row := range rows {
		s, ok := byID[row.StreakID]
		if !ok {
			s = &model.Streak{}
			err := r.db.GetContext(ctx, s, `SELECT * FROM streaks WHERE id = $1`, row.StreakID)
			if err != nil {
				return nil, fmt.Errorf("failed to load streak %s: %w", row.StreakID, err)
			}
			byID[row.StreakID] = s
			streaks = append(streaks, s)
		}

		e, err := row.entry()
		if err != nil {
			return nil, err
		}
		s.History = append(s.History, e)
	}

	return streaks, nil
}

func (r *streakRepository) DeleteHistoryBefore(ctx context.Context, streakID string, before time.Time) (int64, error) {
	query := `DELETE FROM streak_history WHERE streak_id = $1 AND day < $2`

	result, err := r.db.ExecContext(ctx, query, streakID, before.Format(model.DayLayout))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// forUpdate locks the selected row on Postgres. SQLite serializes writers
// already and has no row locks.
func (r *streakRepository) forUpdate() string {
	if r.db.DriverName() == "pgx" {
		return " FOR UPDATE"
	}
	return ""
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation works for both SQLite and PostgreSQL
func isUniqueViolation(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
