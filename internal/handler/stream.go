package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/services"
	"goalbreaker/internal/handler/textstream"
	"goalbreaker/internal/httputil"
)

// StreamHandler serves /stream-goal
type StreamHandler struct {
	streamService services.StreamGoalService
	logger        *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(streamService services.StreamGoalService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		streamService: streamService,
		logger:        logger,
	}
}

// StreamGoal streams one model answer as plain text
// POST /api/v1/stream-goal
func (h *StreamHandler) StreamGoal(w http.ResponseWriter, r *http.Request) {
	var req goal.StreamRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if caller := httputil.GetUserID(r); caller != "" {
		req.UserID = caller
	}

	out := textstream.NewWriter(w)
	err := h.streamService.StreamGoal(r.Context(), &req, out.Write)
	switch {
	case err == nil:
	case !out.Started():
		if errors.Is(err, context.Canceled) {
			return
		}
		handleError(w, err)
	case errors.Is(err, services.ErrStreamInterrupted):
		h.logger.Warn("aborting interrupted stream", "model", req.Model, "error", err)
		// drop the connection so the client sees a failed read, not a short answer
		panic(http.ErrAbortHandler)
	default:
		h.logger.Debug("stream ended early", "model", req.Model, "error", err)
	}
}
