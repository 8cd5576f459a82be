package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/healthtrack/healthtrack/internal/model"
)

const (
	MaxActivityLength  = 100
	MaxIntensityLength = 50
	MaxNotesLength     = 500
	// MaxDurationMinutes caps a single check-in at one day.
	MaxDurationMinutes = 24 * 60
)

var (
	ErrActivityRequired = errors.New("activity is required")
	ErrActivityTooLong  = fmt.Errorf("activity is too long (max %d characters)", MaxActivityLength)
	ErrInvalidDuration  = fmt.Errorf("duration must be between 0 and %d minutes", MaxDurationMinutes)
	ErrIntensityTooLong = fmt.Errorf("intensity is too long (max %d characters)", MaxIntensityLength)
	ErrNotesTooLong     = fmt.Errorf("notes are too long (max %d characters)", MaxNotesLength)
)

// ValidateActivity validates a check-in activity label
func ValidateActivity(activity string) error {
	trimmed := strings.TrimSpace(activity)

	if trimmed == "" {
		return ErrActivityRequired
	}

	if utf8.RuneCountInString(trimmed) > MaxActivityLength {
		return ErrActivityTooLong
	}

	return nil
}

func ValidateMetadata(meta model.EntryMetadata) error {
	if meta.Duration != nil && (*meta.Duration < 0 || *meta.Duration > MaxDurationMinutes) {
		return ErrInvalidDuration
	}
	if utf8.RuneCountInString(meta.Intensity) > MaxIntensityLength {
		return ErrIntensityTooLong
	}
	if utf8.RuneCountInString(meta.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}
