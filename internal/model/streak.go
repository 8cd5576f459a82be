package model

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ActivityType is the kind of activity a streak tracks.
type ActivityType string

const (
	ActivityWorkout    ActivityType = "workout"
	ActivityNutrition  ActivityType = "nutrition"
	ActivityWater      ActivityType = "water"
	ActivitySleep      ActivityType = "sleep"
	ActivityMeditation ActivityType = "meditation"
	ActivityOverall    ActivityType = "overall"
)

const DefaultStreakGoal = 30

var ErrInvalidActivityType = errors.New("invalid activity type")

var activityTypes = []ActivityType{
	ActivityWorkout,
	ActivityNutrition,
	ActivityWater,
	ActivitySleep,
	ActivityMeditation,
	ActivityOverall,
}

// ActivityTypes returns all supported activity types in display order.
func ActivityTypes() []ActivityType {
	out := make([]ActivityType, len(activityTypes))
	copy(out, activityTypes)
	return out
}

// ParseActivityType normalizes s and returns the matching type.
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range activityTypes {
		if t == known {
			return t, nil
		}
	}
	return "", ErrInvalidActivityType
}

// DisplayName returns the title-cased type name, e.g. "Meditation".
func (t ActivityType) DisplayName() string {
	return cases.Title(language.English).String(string(t))
}

type Streak struct {
	ID            string       `db:"id" json:"id"`
	UserID        string       `db:"user_id" json:"user"`
	Type          ActivityType `db:"type" json:"type"`
	CurrentStreak int          `db:"current_streak" json:"currentStreak"`
	LongestStreak int          `db:"longest_streak" json:"longestStreak"`
	Goal          int          `db:"goal" json:"goal"`
	LastCheckIn   *time.Time   `db:"last_check_in" json:"lastCheckIn,omitempty"`
	IsActive      bool         `db:"is_active" json:"isActive"`
	Version       int          `db:"version" json:"-"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`

	// Loaded from child tables
	History    []HistoryEntry `db:"-" json:"streakHistory"`
	Milestones []Milestone    `db:"-" json:"milestones"`
}

// Milestone is a streak-length threshold that unlocks a reward once reached.
type Milestone struct {
	ID         string     `db:"id" json:"id"`
	StreakID   string     `db:"streak_id" json:"-"`
	Days       int        `db:"days" json:"days"`
	Reward     string     `db:"reward" json:"reward"`
	Achieved   bool       `db:"achieved" json:"achieved"`
	AchievedAt *time.Time `db:"achieved_at" json:"achievedAt,omitempty"`
	Claimed    bool       `db:"claimed" json:"claimed"`
}

// DefaultMilestones returns the reward ladder seeded on every new streak.
func DefaultMilestones() []Milestone {
	return []Milestone{
		{Days: 7, Reward: "Week Warrior Badge"},
		{Days: 30, Reward: "Month Master Badge"},
		{Days: 100, Reward: "Century Champion Badge"},
	}
}

// NewStreak builds a fresh, unsaved streak with zero counters.
// A nil milestones slice seeds DefaultMilestones.
func NewStreak(id, userID string, t ActivityType, milestones []Milestone, now time.Time) *Streak {
	if milestones == nil {
		milestones = DefaultMilestones()
	}
	seeded := make([]Milestone, len(milestones))
	copy(seeded, milestones)

	return &Streak{
		ID:         id,
		UserID:     userID,
		Type:       t,
		Goal:       DefaultStreakGoal,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
		History:    []HistoryEntry{},
		Milestones: seeded,
	}
}

// Milestone returns the milestone with the given threshold, or nil.
func (s *Streak) Milestone(days int) *Milestone {
	for i := range s.Milestones {
		if s.Milestones[i].Days == days {
			return &s.Milestones[i]
		}
	}
	return nil
}
