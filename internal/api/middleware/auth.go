package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Context keys
type contextKey string

const (
	ContextKeyUserID contextKey = "user_id"
	ContextKeyAPIKey contextKey = "api_key"
)

// GetUserID extracts the user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return id, ok
}

// AuthMiddleware handles API key authentication. The service is deployed with
// a single shared key; callers identify the acting user via the X-User-ID
// header.
type AuthMiddleware struct {
	header  string
	apiKey  string
	devMode bool
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(header, apiKey string, devMode bool) *AuthMiddleware {
	if header == "" {
		header = "X-API-Key"
	}
	return &AuthMiddleware{
		header:  header,
		apiKey:  apiKey,
		devMode: devMode,
	}
}

// writeJSONError writes a JSON error response for auth failures
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := m.extractAPIKey(r)
		if key == "" && !m.devMode {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
			return
		}

		if m.apiKey != "" {
			if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "INVALID_API_KEY", "API key not recognized")
				return
			}
		}

		ctx := context.WithValue(r.Context(), ContextKeyAPIKey, key)

		if userHeader := r.Header.Get("X-User-ID"); userHeader != "" {
			userID, err := uuid.Parse(userHeader)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "INVALID_USER_ID", "X-User-ID must be a valid UUID")
				return
			}
			ctx = context.WithValue(ctx, ContextKeyUserID, userID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isPublicPath checks if the path should skip authentication
func (m *AuthMiddleware) isPublicPath(path string) bool {
	publicPaths := []string{
		"/health",
		"/ready",
		"/metrics",
	}
	for _, p := range publicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// extractAPIKey extracts the API key from request headers
func (m *AuthMiddleware) extractAPIKey(r *http.Request) string {
	apiKey := r.Header.Get(m.header)
	if apiKey != "" {
		return apiKey
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return ""
}

// RequireUser middleware ensures a user ID is present on the request
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := GetUserID(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "USER_REQUIRED", "X-User-ID header required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
