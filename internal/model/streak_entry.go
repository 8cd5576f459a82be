package model

import (
	"time"
)

// DayLayout is the storage and wire format of a day bucket.
const DayLayout = "2006-01-02"

type HistoryEntry struct {
	ID        string        `db:"id" json:"id"`
	StreakID  string        `db:"streak_id" json:"-"`
	Day       time.Time     `db:"-" json:"date"`
	Completed bool          `db:"completed" json:"completed"`
	Activity  string        `db:"activity" json:"activity"`
	Metadata  EntryMetadata `db:"-" json:"metadata"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}

// EntryMetadata is optional detail attached to a check-in.
type EntryMetadata struct {
	Duration  *int   `json:"duration,omitempty"`
	Intensity string `json:"intensity,omitempty"`
	Notes     string `json:"notes,omitempty"`
}
