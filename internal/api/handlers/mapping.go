package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/api/middleware"
	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/pkg/httputil"
)

// MappingStore reads and deletes learned mappings.
type MappingStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.LearnedMapping, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// SnapshotInvalidator drops the cached snapshot after mapping deletes.
type SnapshotInvalidator interface {
	InvalidateSnapshot(ctx context.Context, userID uuid.UUID) error
}

// MappingHandler handles learned mapping requests
type MappingHandler struct {
	store  MappingStore
	cache  SnapshotInvalidator
	logger *zap.Logger
}

// NewMappingHandler creates a new mapping handler
func NewMappingHandler(store MappingStore, cache SnapshotInvalidator, logger *zap.Logger) *MappingHandler {
	return &MappingHandler{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// List handles GET /api/v1/mappings
func (h *MappingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	mappings, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list mappings", zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, mappings)
}

// Delete handles DELETE /api/v1/mappings/{id}
func (h *MappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid mapping ID format", nil)
		return
	}

	if err := h.store.Delete(r.Context(), userID, id); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.InvalidateSnapshot(r.Context(), userID); err != nil {
			h.logger.Debug("Failed to invalidate snapshot cache", zap.Error(err))
		}
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"id": id.String(), "deleted": "true"})
}
