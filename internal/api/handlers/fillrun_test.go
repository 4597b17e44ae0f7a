package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/api/middleware"
	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/engine"
	"github.com/formpilot/formpilot/internal/services/runner"
	"github.com/formpilot/formpilot/pkg/httputil"
)

type stubEngine struct {
	report *domain.RunReport
}

func (e *stubEngine) Run(ctx context.Context, req engine.FillRequest) *domain.RunReport {
	return e.report
}

type stubProfileStore struct {
	profile *domain.UserProfile
	err     error
	saved   *domain.UserProfile
}

func (s *stubProfileStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func (s *stubProfileStore) Upsert(ctx context.Context, p *domain.UserProfile) error {
	s.saved = p
	return nil
}

type stubMappingStore struct {
	mappings []*domain.LearnedMapping
	deleted  []uuid.UUID
}

func (s *stubMappingStore) Snapshot(ctx context.Context, userID uuid.UUID) (domain.LearnedSnapshot, error) {
	return domain.LearnedSnapshot{}, nil
}

func (s *stubMappingStore) UpsertBatch(ctx context.Context, userID uuid.UUID, mappings []domain.NewMapping) error {
	return nil
}

func (s *stubMappingStore) TouchUsed(ctx context.Context, userID uuid.UUID, question string) error {
	return nil
}

func (s *stubMappingStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.LearnedMapping, error) {
	return s.mappings, nil
}

func (s *stubMappingStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	for _, m := range s.mappings {
		if m.ID == id {
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return domain.ErrMappingNotFound(id.String())
}

type stubRunStore struct {
	runs map[uuid.UUID]*domain.FillRun
}

func newStubRunStore() *stubRunStore {
	return &stubRunStore{runs: make(map[uuid.UUID]*domain.FillRun)}
}

func (s *stubRunStore) Create(ctx context.Context, run *domain.FillRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *stubRunStore) Update(ctx context.Context, run *domain.FillRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *stubRunStore) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.FillRun, error) {
	run, ok := s.runs[id]
	if !ok || run.UserID != userID {
		return nil, domain.ErrFillRunNotFound(id.String())
	}
	return run, nil
}

func (s *stubRunStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.FillRun, error) {
	var out []*domain.FillRun
	for _, run := range s.runs {
		if run.UserID == userID {
			out = append(out, run)
		}
	}
	return out, nil
}

type stubRunStatusCache struct {
	statuses map[string]domain.RunStatus
	sets     int
}

func newStubRunStatusCache() *stubRunStatusCache {
	return &stubRunStatusCache{statuses: make(map[string]domain.RunStatus)}
}

func (c *stubRunStatusCache) GetRunStatus(ctx context.Context, userID, id uuid.UUID) (domain.RunStatus, error) {
	return c.statuses[userID.String()+":"+id.String()], nil
}

func (c *stubRunStatusCache) SetRunStatus(ctx context.Context, userID, id uuid.UUID, status domain.RunStatus) error {
	c.statuses[userID.String()+":"+id.String()] = status
	c.sets++
	return nil
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyUserID, userID)
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newRunnerService(runs *stubRunStore, profile *domain.UserProfile) *runner.Service {
	report := domain.NewRunReport()
	report.Status = domain.RunStatusCompleted
	return runner.New(
		&stubEngine{report: report},
		&stubProfileStore{profile: profile},
		&stubMappingStore{},
		runs,
		nil, nil,
		zap.NewNop(),
		runner.Options{},
	)
}

func TestFillRunHandler_Create(t *testing.T) {
	userID := uuid.New()
	profile := domain.NewUserProfile(userID, domain.Profile{FullName: "Asha Rao"})

	t.Run("accepts run", func(t *testing.T) {
		runs := newStubRunStore()
		handler := NewFillRunHandler(newRunnerService(runs, profile), runs, nil, zap.NewNop())

		body := `{"form_url": "https://docs.google.com/forms/d/e/abc/viewform"}`
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(body)), userID)
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)

		var resp httputil.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "pending", data["status"])
		assert.Equal(t, userID.String(), data["user_id"])
	})

	t.Run("rejects missing form url", func(t *testing.T) {
		runs := newStubRunStore()
		handler := NewFillRunHandler(newRunnerService(runs, profile), runs, nil, zap.NewNop())

		req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{}`)), userID)
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httputil.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	})

	t.Run("rejects non-http url", func(t *testing.T) {
		runs := newStubRunStore()
		handler := NewFillRunHandler(newRunnerService(runs, profile), runs, nil, zap.NewNop())

		body := `{"form_url": "ftp://example.com/form"}`
		req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(body)), userID)
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFillRunHandler_Get(t *testing.T) {
	userID := uuid.New()
	runs := newStubRunStore()
	run := domain.NewFillRun(userID, "https://forms.example.com/f/1", false, "api")
	require.NoError(t, runs.Create(context.Background(), run))

	handler := NewFillRunHandler(nil, runs, nil, zap.NewNop())

	t.Run("returns owned run", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil), userID)
		req = withURLParam(req, "id", run.ID.String())
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("hides other users runs", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil), uuid.New())
		req = withURLParam(req, "id", run.ID.String())
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects malformed id", func(t *testing.T) {
		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/runs/nope", nil), userID)
		req = withURLParam(req, "id", "nope")
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFillRunHandler_Status(t *testing.T) {
	userID := uuid.New()

	t.Run("serves cached status without a store read", func(t *testing.T) {
		id := uuid.New()
		cache := newStubRunStatusCache()
		require.NoError(t, cache.SetRunStatus(context.Background(), userID, id, domain.RunStatusRunning))

		// The store has no such run, so a 200 here can only come from the cache.
		handler := NewFillRunHandler(nil, newStubRunStore(), cache, zap.NewNop())

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id.String()+"/status", nil), userID)
		req = withURLParam(req, "id", id.String())
		rec := httptest.NewRecorder()

		handler.Status(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp httputil.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "running", data["status"])
	})

	t.Run("falls back to the store and populates the cache", func(t *testing.T) {
		runs := newStubRunStore()
		run := domain.NewFillRun(userID, "https://forms.example.com/f/1", false, "api")
		require.NoError(t, runs.Create(context.Background(), run))
		cache := newStubRunStatusCache()

		handler := NewFillRunHandler(nil, runs, cache, zap.NewNop())

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/status", nil), userID)
		req = withURLParam(req, "id", run.ID.String())
		rec := httptest.NewRecorder()

		handler.Status(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		cached, err := cache.GetRunStatus(context.Background(), userID, run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusPending, cached)
	})

	t.Run("scopes cached status to owner", func(t *testing.T) {
		id := uuid.New()
		cache := newStubRunStatusCache()
		require.NoError(t, cache.SetRunStatus(context.Background(), userID, id, domain.RunStatusCompleted))

		handler := NewFillRunHandler(nil, newStubRunStore(), cache, zap.NewNop())

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id.String()+"/status", nil), uuid.New())
		req = withURLParam(req, "id", id.String())
		rec := httptest.NewRecorder()

		handler.Status(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("works without a cache", func(t *testing.T) {
		runs := newStubRunStore()
		run := domain.NewFillRun(userID, "https://forms.example.com/f/1", false, "api")
		require.NoError(t, runs.Create(context.Background(), run))

		handler := NewFillRunHandler(nil, runs, nil, zap.NewNop())

		req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/status", nil), userID)
		req = withURLParam(req, "id", run.ID.String())
		rec := httptest.NewRecorder()

		handler.Status(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
