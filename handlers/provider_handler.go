package handlers

import (
	"context"
	"net/http"

	"github.com/model-relay/model-relay/models"
	"github.com/model-relay/model-relay/services/providers"
	"github.com/model-relay/model-relay/utils"
	"go.uber.org/zap"
)

// ProviderInfo is the public view of one registered provider
type ProviderInfo struct {
	ID               string   `json:"id"`
	Capabilities     []string `json:"capabilities"`
	NeedsTranslation bool     `json:"needs_translation,omitempty"`
	Secondary        bool     `json:"secondary,omitempty"`
}

// StatusService derives per-provider usage status
type StatusService interface {
	StatusFor(ctx context.Context, providerIDs []string) ([]*models.ProviderStatus, error)
}

// ProviderHandler serves the registry listing and usage status endpoints
type ProviderHandler struct {
	registry *providers.Registry
	status   StatusService
	logger   *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(registry *providers.Registry, status StatusService, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
		status:   status,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/providers.
// Providers come back in ladder order, the secondary last.
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	descriptors := h.registry.Descriptors()

	infos := make([]ProviderInfo, 0, len(descriptors)+1)
	for _, desc := range descriptors {
		infos = append(infos, ProviderInfo{
			ID:               desc.ID,
			Capabilities:     desc.Capabilities.Strings(),
			NeedsTranslation: desc.NeedsTranslation,
		})
	}

	if secondary := h.registry.Secondary(); secondary != nil {
		desc := secondary.Descriptor()
		infos = append(infos, ProviderInfo{
			ID:               desc.ID,
			Capabilities:     desc.Capabilities.Strings(),
			NeedsTranslation: desc.NeedsTranslation,
			Secondary:        true,
		})
	}

	_ = utils.WriteOK(w, infos)
}

// HandleUsageStatus handles GET /api/v1/usage/status.
// Every configured provider is listed; providers with no records yet
// report as unused.
func (h *ProviderHandler) HandleUsageStatus(w http.ResponseWriter, r *http.Request) {
	ids := h.providerIDs()

	statuses, err := h.status.StatusFor(r.Context(), ids)
	if err != nil {
		h.logger.Error("failed to derive provider status", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to derive provider status")
		return
	}

	_ = utils.WriteOK(w, statuses)
}

func (h *ProviderHandler) providerIDs() []string {
	descriptors := h.registry.Descriptors()

	ids := make([]string, 0, len(descriptors)+1)
	for _, desc := range descriptors {
		ids = append(ids, desc.ID)
	}
	if secondary := h.registry.Secondary(); secondary != nil {
		ids = append(ids, secondary.Descriptor().ID)
	}
	return ids
}
