package handler

import (
	"log/slog"
	"net/http"

	"goalbreaker/internal/domain/services"
	"goalbreaker/internal/httputil"
)

// GoalHandler serves the saved-goal history
type GoalHandler struct {
	goalService services.GoalService
	authorizer  services.ResourceAuthorizer
	logger      *slog.Logger
}

// NewGoalHandler creates a new goal handler
func NewGoalHandler(goalService services.GoalService, authorizer services.ResourceAuthorizer, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{
		goalService: goalService,
		authorizer:  authorizer,
		logger:      logger,
	}
}

// CreateGoal stores a new conversation
// POST /api/v1/goals/{userId}
func (h *GoalHandler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := PathParam(w, r, "userId", "User ID")
	if !ok {
		return
	}
	if err := h.authorizer.CanAccessUser(r.Context(), httputil.GetUserID(r), userID); err != nil {
		handleError(w, err)
		return
	}

	var req services.SaveGoalRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.goalService.CreateGoal(r.Context(), userID, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"id": id, "message": "Goal saved"})
}

// UpdateGoal overwrites a stored conversation
// PUT /api/v1/goals/{id}
func (h *GoalHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	goalID, ok := PathParam(w, r, "id", "Goal ID")
	if !ok {
		return
	}
	if err := h.authorizer.CanAccessGoal(r.Context(), httputil.GetUserID(r), goalID); err != nil {
		handleError(w, err)
		return
	}

	var req services.SaveGoalRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.goalService.UpdateGoal(r.Context(), goalID, &req); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondMessage(w, http.StatusOK, "Goal updated")
}

// DeleteGoal removes one conversation
// DELETE /api/v1/goals/{id}
func (h *GoalHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	goalID, ok := PathParam(w, r, "id", "Goal ID")
	if !ok {
		return
	}
	if err := h.authorizer.CanAccessGoal(r.Context(), httputil.GetUserID(r), goalID); err != nil {
		handleError(w, err)
		return
	}

	if err := h.goalService.DeleteGoal(r.Context(), goalID); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondMessage(w, http.StatusOK, "Goal deleted")
}

// History lists a user's conversations, newest first
// GET /api/v1/history/{userId}
func (h *GoalHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := PathParam(w, r, "userId", "User ID")
	if !ok {
		return
	}
	if err := h.authorizer.CanAccessUser(r.Context(), httputil.GetUserID(r), userID); err != nil {
		handleError(w, err)
		return
	}

	items, err := h.goalService.History(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, items)
}

// ClearHistory removes every conversation of a user
// DELETE /api/v1/history/{userId}
func (h *GoalHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := PathParam(w, r, "userId", "User ID")
	if !ok {
		return
	}
	if err := h.authorizer.CanAccessUser(r.Context(), httputil.GetUserID(r), userID); err != nil {
		handleError(w, err)
		return
	}

	if err := h.goalService.ClearHistory(r.Context(), userID); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondMessage(w, http.StatusOK, "History cleared")
}
