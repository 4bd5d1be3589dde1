package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/model-relay/model-relay/services/providers"
	"github.com/model-relay/model-relay/utils"
	"go.uber.org/zap"
)

// DatabaseChecker reports whether the backing store is reachable
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness and readiness endpoints
type HealthHandler struct {
	db       DatabaseChecker // nil when usage tracking runs in memory
	registry *providers.Registry
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db DatabaseChecker, registry *providers.Registry, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:       db,
		registry: registry,
		logger:   logger,
	}
}

// HandleHealth handles GET /healthz. Always healthy while the process runs.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ready"
	checks := map[string]string{}

	if h.db == nil {
		checks["database"] = "in_memory"
	} else if err := h.db.HealthCheck(ctx); err != nil {
		status = "not_ready"
		checks["database"] = "unhealthy"
		h.logger.Error("database health check failed", zap.Error(err))
	} else {
		checks["database"] = "healthy"
	}

	providerCount := h.registry.Count()
	if h.registry.Secondary() != nil {
		providerCount++
	}
	if providerCount == 0 {
		status = "not_ready"
		checks["providers"] = "none_configured"
	} else {
		checks["providers"] = "configured"
	}

	response := map[string]interface{}{
		"status": status,
		"checks": checks,
	}

	if status == "ready" {
		_ = utils.WriteOK(w, response)
		return
	}
	_ = utils.WriteJSON(w, http.StatusServiceUnavailable, utils.SuccessResponse{Data: response})
}
