package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/api/middleware"
	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/services/runner"
	"github.com/formpilot/formpilot/pkg/httputil"
)

// RunReader reads fill run records for API responses.
type RunReader interface {
	GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.FillRun, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.FillRun, error)
}

// RunStatusCache answers status polls without a database read. The run
// service populates it on every status transition.
type RunStatusCache interface {
	GetRunStatus(ctx context.Context, userID, id uuid.UUID) (domain.RunStatus, error)
	SetRunStatus(ctx context.Context, userID, id uuid.UUID, status domain.RunStatus) error
}

// FillRunHandler handles fill run requests
type FillRunHandler struct {
	service *runner.Service
	runs    RunReader
	cache   RunStatusCache
	logger  *zap.Logger
}

// NewFillRunHandler creates a new fill run handler
func NewFillRunHandler(service *runner.Service, runs RunReader, cache RunStatusCache, logger *zap.Logger) *FillRunHandler {
	return &FillRunHandler{
		service: service,
		runs:    runs,
		cache:   cache,
		logger:  logger,
	}
}

// FillRunResponse is the API representation of a fill run
type FillRunResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	FormURL     string            `json:"form_url"`
	AutoSubmit  bool              `json:"auto_submit"`
	Status      string            `json:"status"`
	Report      *domain.RunReport `json:"report,omitempty"`
	TriggeredBy string            `json:"triggered_by"`
	StartedAt   *string           `json:"started_at,omitempty"`
	CompletedAt *string           `json:"completed_at,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

func toFillRunResponse(r *domain.FillRun) FillRunResponse {
	resp := FillRunResponse{
		ID:          r.ID.String(),
		UserID:      r.UserID.String(),
		FormURL:     r.FormURL,
		AutoSubmit:  r.AutoSubmit,
		Status:      string(r.Status),
		Report:      r.Report,
		TriggeredBy: r.TriggeredBy,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}

	if r.StartedAt != nil {
		s := r.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &s
	}

	if r.CompletedAt != nil {
		s := r.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}

	return resp
}

// CreateFillRunRequest is the request body for starting a fill run
type CreateFillRunRequest struct {
	FormURL    string `json:"form_url"`
	AutoSubmit bool   `json:"auto_submit,omitempty"`
}

// Create handles POST /api/v1/runs
func (h *FillRunHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var req CreateFillRunRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if err := validateFormURL(req.FormURL); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	run, err := h.service.Start(r.Context(), userID, req.FormURL, req.AutoSubmit, "api")
	if err != nil {
		h.logger.Warn("Failed to start fill run",
			zap.String("user_id", userID.String()), zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusAccepted, toFillRunResponse(run))
}

// Get handles GET /api/v1/runs/{id}
func (h *FillRunHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid run ID format", nil)
		return
	}

	run, err := h.runs.GetByID(r.Context(), userID, id)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, toFillRunResponse(run))
}

// Status handles GET /api/v1/runs/{id}/status. Clients poll this while a run
// executes, so it is served from the cache when possible.
func (h *FillRunHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "INVALID_ID", "Invalid run ID format", nil)
		return
	}

	if h.cache != nil {
		if status, err := h.cache.GetRunStatus(r.Context(), userID, id); err == nil && status != "" {
			httputil.JSON(w, http.StatusOK, map[string]string{
				"id":     id.String(),
				"status": string(status),
			})
			return
		}
	}

	run, err := h.runs.GetByID(r.Context(), userID, id)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetRunStatus(r.Context(), userID, id, run.Status); err != nil {
			h.logger.Debug("Failed to cache run status", zap.Error(err))
		}
	}

	httputil.JSON(w, http.StatusOK, map[string]string{
		"id":     run.ID.String(),
		"status": string(run.Status),
	})
}

// List handles GET /api/v1/runs
func (h *FillRunHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.runs.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list fill runs", zap.Error(err))
		httputil.ErrorFromDomain(w, err)
		return
	}

	response := make([]FillRunResponse, len(runs))
	for i, run := range runs {
		response[i] = toFillRunResponse(run)
	}

	httputil.JSON(w, http.StatusOK, response)
}

func validateFormURL(raw string) error {
	if raw == "" {
		return domain.ErrValidation("form_url is required")
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ErrValidation("form_url must be a valid http(s) URL")
	}
	return nil
}
