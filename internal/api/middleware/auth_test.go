package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedRequest(apiKey, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return req
}

func TestAuthMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		m := NewAuthMiddleware("X-API-Key", "secret", false)
		rec := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(rec, authedRequest("", ""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		m := NewAuthMiddleware("X-API-Key", "secret", false)
		rec := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(rec, authedRequest("not-it", ""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key passes and user is extracted", func(t *testing.T) {
		userID := uuid.New()
		var gotUser uuid.UUID
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetUserID(r.Context())
			require.True(t, ok)
			gotUser = id
			w.WriteHeader(http.StatusOK)
		})

		m := NewAuthMiddleware("X-API-Key", "secret", false)
		rec := httptest.NewRecorder()

		m.Handler(handler).ServeHTTP(rec, authedRequest("secret", userID.String()))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID, gotUser)
	})

	t.Run("bearer token accepted", func(t *testing.T) {
		m := NewAuthMiddleware("X-API-Key", "secret", false)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed user id rejected", func(t *testing.T) {
		m := NewAuthMiddleware("X-API-Key", "secret", false)
		rec := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(rec, authedRequest("secret", "not-a-uuid"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("dev mode allows missing key", func(t *testing.T) {
		m := NewAuthMiddleware("X-API-Key", "", true)
		rec := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(rec, authedRequest("", ""))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("health is public", func(t *testing.T) {
		m := NewAuthMiddleware("X-API-Key", "secret", false)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()

		m.Handler(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireUser(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing user rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireUser(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("user present passes", func(t *testing.T) {
		m := NewAuthMiddleware("X-API-Key", "", true)
		rec := httptest.NewRecorder()

		m.Handler(RequireUser(okHandler)).ServeHTTP(rec, authedRequest("", uuid.NewString()))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
