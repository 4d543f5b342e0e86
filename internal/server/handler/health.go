package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	sports    []domain.Sport
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the configured sports.
func NewHealthHandler(sports []domain.Sport, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		sports:    sports,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"sports":         h.sports,
	})
}
