package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/api/handlers"
	"github.com/thinhdnn/ai-test-management/internal/api/middleware"
	"github.com/thinhdnn/ai-test-management/internal/observability"
	"github.com/thinhdnn/ai-test-management/internal/services/teststeps"
	"github.com/thinhdnn/ai-test-management/pkg/httputil"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	Service *teststeps.Service
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Checks are probed by /ready, keyed by dependency name
	Checks map[string]HealthChecker
	// Limiter enables per-caller rate limiting when set
	Limiter   middleware.RateLimiter
	RateLimit int
	// Events enables the script event stream when set
	Events         handlers.EventSource
	EnableCORS     bool
	AllowedOrigins []string
	// UserIDHeader names the identity header; defaults to X-User-ID
	UserIDHeader   string
	RequestTimeout time.Duration
	MaxRequestSize int64
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.UserIDHeader == "" {
		cfg.UserIDHeader = middleware.UserIDHeader
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Handler)
	r.Use(middleware.NewIdentity(cfg.UserIDHeader))
	if cfg.MaxRequestSize > 0 {
		r.Use(chimw.RequestSize(cfg.MaxRequestSize))
	}
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", cfg.UserIDHeader, "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg.Checks))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	projects := handlers.NewProjectHandler(cfg.Service, cfg.Logger)
	testCases := handlers.NewTestCaseHandler(cfg.Service, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Limiter != nil && cfg.RateLimit > 0 {
			r.Use(middleware.NewRateLimitMiddleware(cfg.Limiter, cfg.RateLimit, cfg.Logger).Handler)
		}

		// the event stream is long-lived and stays outside the timeout
		if cfg.Events != nil {
			events := handlers.NewEventsHandler(cfg.Events, cfg.Logger)
			r.Get("/test-cases/{id}/events", events.Stream)
		}

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(cfg.RequestTimeout))

			r.Route("/projects", func(r chi.Router) {
				r.Post("/", projects.Create)
				r.Get("/{id}", projects.Get)

				r.Get("/{project_id}/test-cases", testCases.List)
				r.Post("/{project_id}/test-cases", testCases.Create)
				r.Get("/{project_id}/fixtures", projects.ListFixtures)
				r.Post("/{project_id}/fixtures", projects.CreateFixture)
			})

			r.Route("/test-cases/{id}", func(r chi.Router) {
				r.Get("/", testCases.Get)
				r.Put("/", testCases.Update)
				r.Post("/consolidate", testCases.Consolidate)

				r.Get("/steps", testCases.ListSteps)
				r.Post("/steps", testCases.CreateStep)
				r.Post("/steps/import", testCases.ImportSteps)
				r.Put("/steps/reorder", testCases.ReorderSteps)
				r.Put("/steps/{step_id}", testCases.UpdateStep)
				r.Post("/steps/{step_id}/toggle", testCases.ToggleStep)
				r.Delete("/steps/{step_id}", testCases.DeleteStep)

				r.Get("/versions", testCases.ListVersions)
				r.Post("/versions", testCases.RecordVersion)
				r.Get("/versions/{version_id}", testCases.GetVersion)
				r.Post("/versions/{version_id}/restore", testCases.RestoreVersion)
			})
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
		"service": "ai-test-management-api",
	})
}

// readyHandler checks if all dependencies are ready
func readyHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		allHealthy := true

		for name, check := range checks {
			if err := check.Health(r.Context()); err != nil {
				results[name] = "unhealthy: " + err.Error()
				allHealthy = false
				continue
			}
			results[name] = "healthy"
		}

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		httputil.JSON(w, status, map[string]any{
			"status": statusText,
			"checks": results,
		})
	}
}
