package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/healthtrack/healthtrack/internal/model"
	"github.com/healthtrack/healthtrack/internal/repository"
	"github.com/healthtrack/healthtrack/internal/service"
	"github.com/healthtrack/healthtrack/internal/streak"
	"github.com/healthtrack/healthtrack/internal/validation"
)

const maxBodyBytes = 64 << 10

// Response is the JSON envelope of every API answer.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

var errEmptyBody = errors.New("request body is required")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

func parseJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

var badRequestErrors = []error{
	model.ErrInvalidActivityType,
	streak.ErrInvalidGoal,
	validation.ErrActivityRequired,
	validation.ErrActivityTooLong,
	validation.ErrInvalidDuration,
	validation.ErrIntensityTooLong,
	validation.ErrNotesTooLong,
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusBadRequest, target.Error())
			return
		}
	}

	switch {
	case errors.Is(err, repository.ErrStreakNotFound):
		writeError(w, http.StatusNotFound, "Streak not found")
	case errors.Is(err, service.ErrMilestoneNotFound):
		writeError(w, http.StatusNotFound, "Milestone not found")
	case errors.Is(err, service.ErrMilestoneNotAchieved),
		errors.Is(err, service.ErrMilestoneAlreadyClaimed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error(msg, "error", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// NotFound answers unknown routes with the JSON envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Route not found")
}
