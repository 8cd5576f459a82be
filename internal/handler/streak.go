package handler

import (
	"net/http"
	"strconv"

	"github.com/healthtrack/healthtrack/internal/ctxkeys"
	"github.com/healthtrack/healthtrack/internal/model"
	"github.com/healthtrack/healthtrack/internal/service"
)

type StreakHandler struct {
	streakService *service.StreakService
}

func NewStreakHandler(streakService *service.StreakService) *StreakHandler {
	return &StreakHandler{
		streakService: streakService,
	}
}

type checkInRequest struct {
	Type     string              `json:"type"`
	Activity string              `json:"activity"`
	Metadata model.EntryMetadata `json:"metadata"`
}

type goalRequest struct {
	Type string `json:"type"`
	Goal *int   `json:"goal"`
}

// List returns the caller's active streaks.
func (h *StreakHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	streaks, err := h.streakService.Active(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to list streaks")
		return
	}

	writeData(w, streaks)
}

// CheckIn answers 200 for both outcomes; a repeat check-in on the same day
// carries success=false and the unchanged streak.
func (h *StreakHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	var req checkInRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := model.ParseActivityType(req.Type)
	if err != nil {
		writeServiceError(w, r, err, "failed to check in")
		return
	}

	result, err := h.streakService.CheckIn(r.Context(), *identity, t, req.Activity, req.Metadata)
	if err != nil {
		writeServiceError(w, r, err, "failed to check in")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: result.Outcome.Success(),
		Message: result.Outcome.Message(),
		Data:    result.Streak,
	})
}

func (h *StreakHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	var req goalRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Goal == nil {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}

	t, err := model.ParseActivityType(req.Type)
	if err != nil {
		writeServiceError(w, r, err, "failed to update goal")
		return
	}

	rec, err := h.streakService.UpdateGoal(r.Context(), identity.UserID, t, *req.Goal)
	if err != nil {
		writeServiceError(w, r, err, "failed to update goal")
		return
	}

	writeData(w, rec)
}

func (h *StreakHandler) ClaimMilestone(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	t, err := model.ParseActivityType(r.PathValue("type"))
	if err != nil {
		writeServiceError(w, r, err, "failed to claim milestone")
		return
	}

	days, err := strconv.Atoi(r.PathValue("days"))
	if err != nil || days < 1 {
		writeError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}

	rec, err := h.streakService.ClaimMilestone(r.Context(), identity.UserID, t, days)
	if err != nil {
		writeServiceError(w, r, err, "failed to claim milestone")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Reward claimed",
		Data:    rec,
	})
}
