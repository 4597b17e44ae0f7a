package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/api/handlers"
	"github.com/formpilot/formpilot/internal/api/middleware"
	"github.com/formpilot/formpilot/internal/config"
	"github.com/formpilot/formpilot/internal/observability"
	"github.com/formpilot/formpilot/internal/repository/postgres"
	rediscache "github.com/formpilot/formpilot/internal/repository/redis"
	"github.com/formpilot/formpilot/internal/services/runner"
	"github.com/formpilot/formpilot/pkg/httputil"
)

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	Repos       *postgres.Repositories
	Cache       *rediscache.Cache
	Runner      *runner.Service
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Security    config.SecurityConfig
	RateLimit   config.RateLimitConfig
	Development bool
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger, cfg.Metrics).Handler)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS configuration
	if cfg.Security.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Security.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-User-ID", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Rate limiting (if Redis is available)
	if cfg.Cache != nil && cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMin > 0 {
		r.Use(middleware.NewRateLimitMiddleware(cfg.Cache, cfg.RateLimit.RequestsPerMin, true).Handler)
	}

	// Health check endpoints (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg.Repos, cfg.Cache))

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		auth := middleware.NewAuthMiddleware(cfg.Security.APIKeyHeader, cfg.Security.APIKey, cfg.Development)
		r.Use(auth.Handler)
		r.Use(middleware.RequireUser)

		// A nil *Cache must stay a nil interface inside the handlers.
		var profileCache handlers.ProfileCache
		var snapshotCache handlers.SnapshotInvalidator
		var runStatusCache handlers.RunStatusCache
		if cfg.Cache != nil {
			profileCache = cfg.Cache
			snapshotCache = cfg.Cache
			runStatusCache = cfg.Cache
		}

		profileHandler := handlers.NewProfileHandler(cfg.Repos.Profiles, profileCache, cfg.Logger)
		mappingHandler := handlers.NewMappingHandler(cfg.Repos.Mappings, snapshotCache, cfg.Logger)
		fillRunHandler := handlers.NewFillRunHandler(cfg.Runner, cfg.Repos.FillRuns, runStatusCache, cfg.Logger)

		r.Route("/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Put)
		})

		r.Route("/mappings", func(r chi.Router) {
			r.Get("/", mappingHandler.List)
			r.Delete("/{id}", mappingHandler.Delete)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", fillRunHandler.List)
			r.Post("/", fillRunHandler.Create)
			r.Get("/{id}", fillRunHandler.Get)
			r.Get("/{id}/status", fillRunHandler.Status)
		})
	})

	return &Router{
		Router: r,
		logger: cfg.Logger,
	}
}

// healthHandler returns basic health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "formpilot-api",
	})
}

// readyHandler checks if all dependencies are ready
func readyHandler(repos *postgres.Repositories, cache *rediscache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allHealthy := true

		if repos != nil {
			checks["database"] = "healthy"
		}

		if cache != nil {
			if err := cache.Health(r.Context()); err != nil {
				checks["redis"] = "unhealthy: " + err.Error()
				allHealthy = false
			} else {
				checks["redis"] = "healthy"
			}
		} else {
			checks["redis"] = "not configured"
		}

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		httputil.JSON(w, status, map[string]any{
			"status": statusText,
			"checks": checks,
		})
	}
}
