package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"loadcell/internal/config"
)

// HealthResponse is returned by the liveness probe
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	DataDir   string    `json:"data_dir"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	dataDir string
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(dataDir string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		dataDir: dataDir,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !config.FileExists(h.dataDir) {
		status = "degraded"
		h.logger.WarnContext(r.Context(), "Data directory missing",
			slog.String("data_dir", h.dataDir))
	}
	render.JSON(w, r, HealthResponse{
		Status:    status,
		Version:   config.AppVersion,
		DataDir:   h.dataDir,
		Timestamp: time.Now().UTC(),
	})
}
