package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/api/middleware"
	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/pkg/httputil"
)

// ProfileStore reads and writes user profiles.
type ProfileStore interface {
	Upsert(ctx context.Context, p *domain.UserProfile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error)
}

// ProfileCache is the read-through cache in front of the profile store.
// Writes invalidate; reads populate.
type ProfileCache interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error)
	SetProfile(ctx context.Context, profile *domain.UserProfile) error
	InvalidateProfile(ctx context.Context, userID uuid.UUID) error
}

// ProfileHandler handles profile requests
type ProfileHandler struct {
	store  ProfileStore
	cache  ProfileCache
	logger *zap.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(store ProfileStore, cache ProfileCache, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Get handles GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	if h.cache != nil {
		if cached, err := h.cache.GetProfile(r.Context(), userID); err == nil && cached != nil {
			httputil.JSON(w, http.StatusOK, cached)
			return
		}
	}

	profile, err := h.store.GetByUserID(r.Context(), userID)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetProfile(r.Context(), profile); err != nil {
			h.logger.Debug("Failed to cache profile", zap.Error(err))
		}
	}

	httputil.JSON(w, http.StatusOK, profile)
}

// Put handles PUT /api/v1/profile
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var body domain.Profile
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if err := validateProfile(body); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	profile := domain.NewUserProfile(userID, body)

	// Keep the original record ID on updates
	if existing, err := h.store.GetByUserID(r.Context(), userID); err == nil {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	}

	if err := h.store.Upsert(r.Context(), profile); err != nil {
		h.logger.Error("Failed to save profile",
			zap.String("user_id", userID.String()), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.InvalidateProfile(r.Context(), userID); err != nil {
			h.logger.Debug("Failed to invalidate profile cache", zap.Error(err))
		}
	}

	httputil.JSON(w, http.StatusOK, profile)
}

func validateProfile(p domain.Profile) error {
	if strings.TrimSpace(p.FullName) == "" {
		return domain.ErrValidation("full_name is required")
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return domain.ErrValidation("email must be a valid address")
	}
	return nil
}
