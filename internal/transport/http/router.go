// Package httptransport assembles the chi router: shared middleware, the
// public release routes, and the owner and admin groups behind JWT auth.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"keepsake/internal/platform/metrics"
	"keepsake/internal/ratelimit"
	"keepsake/pkg/platform/httputil"
	authmw "keepsake/pkg/platform/middleware/auth"
	"keepsake/pkg/platform/middleware/metadata"
	"keepsake/pkg/platform/middleware/request"
	"keepsake/pkg/platform/middleware/requesttime"
)

// The domain handlers implement some of these. A handler mounts only the
// groups it has routes for.
type (
	PublicRegistrar interface{ RegisterPublic(r chi.Router) }
	OwnerRegistrar  interface{ RegisterOwner(r chi.Router) }
	AdminRegistrar  interface{ RegisterAdmin(r chi.Router) }
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger    *slog.Logger
	Validator authmw.JWTValidator
	Metrics   *metrics.HTTP
	// PublicLimit guards the unauthenticated routes. Nil disables it.
	PublicLimit *ratelimit.Middleware
	// Handlers are mounted in order; each is checked against the three
	// registrar interfaces.
	Handlers []any
	Health   map[string]HealthCheck
	Timeout  time.Duration
}

// NewRouter wires the middleware stack and every handler group.
func NewRouter(cfg Config) http.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(cfg.Logger))
	r.Use(cfg.Metrics.Middleware)

	r.Get("/healthz", healthHandler(cfg.Health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Timeout))
		r.Use(request.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(cfg.PublicLimit.PerIP)
			for _, h := range cfg.Handlers {
				if p, ok := h.(PublicRegistrar); ok {
					p.RegisterPublic(r)
				}
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(cfg.Validator, cfg.Logger))
			r.Use(authmw.RequireRole(authmw.RoleOwner, cfg.Logger))
			for _, h := range cfg.Handlers {
				if o, ok := h.(OwnerRegistrar); ok {
					o.RegisterOwner(r)
				}
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(cfg.Validator, cfg.Logger))
			r.Use(authmw.RequireRole(authmw.RoleAdmin, cfg.Logger))
			for _, h := range cfg.Handlers {
				if a, ok := h.(AdminRegistrar); ok {
					a.RegisterAdmin(r)
				}
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	return r
}

// healthHandler runs every check with a short deadline. Any failure turns the
// response into a 503 naming the failing dependency.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
