// Package streak implements the day-streak check-in rules over model.Streak.
//
// The Tracker is stateless apart from the location used to bucket instants
// into calendar days, so it can be shared across goroutines. It never touches
// storage; callers load a record, apply an operation and persist the result.
package streak

import (
	"errors"
	"time"

	"github.com/healthtrack/healthtrack/internal/model"
)

var ErrInvalidGoal = errors.New("goal must be at least 1 day")

type Status int

const (
	StatusSuccess Status = iota
	StatusAlreadyCheckedIn
)

const (
	MessageCheckedIn        = "Check-in recorded"
	MessageAlreadyCheckedIn = "Already checked in today"
)

// Outcome is the result of a check-in. AlreadyCheckedIn is a normal result,
// not an error, and guarantees the record was not modified.
type Outcome struct {
	Status        Status
	CurrentStreak int
	Entry         *model.HistoryEntry
	// Unlocked holds the milestones achieved by this check-in.
	Unlocked []model.Milestone
}

func (o Outcome) Success() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) Message() string {
	if o.Status == StatusAlreadyCheckedIn {
		return MessageAlreadyCheckedIn
	}
	return MessageCheckedIn
}

type Tracker struct {
	loc *time.Location
}

// NewTracker returns a Tracker bucketing days in loc (UTC when nil).
func NewTracker(loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{loc: loc}
}

func (t *Tracker) Location() *time.Location {
	return t.loc
}

// DayBucket returns the calendar day of now in the tracker's location,
// expressed as midnight UTC of that date. Two instants on the same local
// day always produce equal buckets.
func (t *Tracker) DayBucket(now time.Time) time.Time {
	y, m, d := now.In(t.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the first instant of the local day that contains now.
func (t *Tracker) StartOfDay(now time.Time) time.Time {
	y, m, d := now.In(t.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.loc)
}

// CheckIn records a completed day on rec at now.
func (t *Tracker) CheckIn(rec *model.Streak, activity string, meta model.EntryMetadata, now time.Time) Outcome {
	today := t.DayBucket(now)
	days := indexDays(rec.History)

	if _, ok := days[today]; ok {
		return Outcome{Status: StatusAlreadyCheckedIn, CurrentStreak: rec.CurrentStreak}
	}

	rec.History = append(rec.History, model.HistoryEntry{
		Day:       today,
		Completed: true,
		Activity:  activity,
		Metadata:  meta,
		CreatedAt: now,
	})
	entry := &rec.History[len(rec.History)-1]

	yesterday := today.AddDate(0, 0, -1)
	if days[yesterday] || rec.CurrentStreak == 0 {
		rec.CurrentStreak++
	} else {
		rec.CurrentStreak = 1
	}

	if rec.CurrentStreak > rec.LongestStreak {
		rec.LongestStreak = rec.CurrentStreak
	}

	checkedAt := now
	rec.LastCheckIn = &checkedAt
	rec.UpdatedAt = now

	var unlocked []model.Milestone
	for i := range rec.Milestones {
		m := &rec.Milestones[i]
		if m.Achieved || m.Days > rec.CurrentStreak {
			continue
		}
		achievedAt := now
		m.Achieved = true
		m.AchievedAt = &achievedAt
		unlocked = append(unlocked, *m)
	}

	return Outcome{
		Status:        StatusSuccess,
		CurrentStreak: rec.CurrentStreak,
		Entry:         entry,
		Unlocked:      unlocked,
	}
}

// BreakStreak resets the current run to zero. Longest streak, history and
// milestones are left alone. Check-in never calls this: a gap is detected
// lazily by the next check-in, so CurrentStreak may read stale until then.
func (t *Tracker) BreakStreak(rec *model.Streak, now time.Time) {
	brokenAt := now
	rec.CurrentStreak = 0
	rec.LastCheckIn = &brokenAt
	rec.UpdatedAt = now
}

// UpdateGoal sets the informational day target.
func (t *Tracker) UpdateGoal(rec *model.Streak, goal int, now time.Time) error {
	if goal < 1 {
		return ErrInvalidGoal
	}
	rec.Goal = goal
	rec.UpdatedAt = now
	return nil
}

// IsStale reports whether rec shows a positive streak although its last
// check-in day is before yesterday.
func (t *Tracker) IsStale(rec *model.Streak, now time.Time) bool {
	if rec.CurrentStreak == 0 || rec.LastCheckIn == nil {
		return false
	}
	yesterday := t.DayBucket(now).AddDate(0, 0, -1)
	return t.DayBucket(*rec.LastCheckIn).Before(yesterday)
}

// indexDays maps each day bucket in history to whether it was completed.
func indexDays(history []model.HistoryEntry) map[time.Time]bool {
	days := make(map[time.Time]bool, len(history))
	for _, e := range history {
		day := dayOf(e.Day)
		days[day] = days[day] || e.Completed
	}
	return days
}

// dayOf normalizes a stored bucket so map keys compare by calendar date.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
