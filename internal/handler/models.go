package handler

import (
	"log/slog"
	"net/http"

	"goalbreaker/internal/catalog"
	"goalbreaker/internal/httputil"
)

// ModelsHandler serves the model catalog
type ModelsHandler struct {
	registry *catalog.Registry
	logger   *slog.Logger
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(registry *catalog.Registry, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListModels returns the static catalog; it never calls a provider
// GET /api/v1/models
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	httputil.RespondJSON(w, http.StatusOK, h.registry.Models())
}

// HealthCheck reports liveness
// GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
