package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/aiox-platform/mila/internal/middleware"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck probes one backend for the readiness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
// Admin routes are mounted only when AdminAuth is set.
type HandlerSet struct {
	AdminAuth func(http.Handler) http.Handler

	GetAccount   http.HandlerFunc
	GrantPaid    http.HandlerFunc
	ResetQuota   http.HandlerFunc
	ClearHistory http.HandlerFunc
	SendMessage  http.HandlerFunc
	ListEvents   http.HandlerFunc
}

type RouterConfig struct {
	CORSAllowedOrigins []string
	AdminRateLimiter   func(http.Handler) http.Handler
	Checks             []HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness never touches a backend
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readiness := readinessHandler(cfg.Checks)
	r.Get("/health/ready", readiness)
	r.Get("/health", readiness)

	r.Handle("/metrics", promhttp.Handler())

	if h.AdminAuth == nil {
		return r
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AdminRateLimiter != nil {
			r.Use(cfg.AdminRateLimiter)
		}
		r.Use(h.AdminAuth)

		r.Route("/accounts/{userID}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Post("/paid", h.GrantPaid)
			r.Post("/reset-quota", h.ResetQuota)
			r.Delete("/history", h.ClearHistory)
			r.Post("/messages", h.SendMessage)
			r.Get("/events", h.ListEvents)
		})
	})

	return r
}

func readinessHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				health[c.Name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[c.Name] = "healthy"
		}

		JSON(w, status, health)
	}
}
