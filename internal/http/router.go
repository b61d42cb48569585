// Package httpapi assembles the service router: request middleware, the
// vertical handlers, and the ops endpoints. Business logic stays in the
// vertical packages; this layer only mounts them.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conforma/pkg/platform/httputil"
	authmw "conforma/pkg/platform/middleware/auth"
	"conforma/pkg/platform/middleware/requestid"
	"conforma/pkg/platform/middleware/requesttime"
)

// Registrar is anything that mounts routes on the router. All vertical
// handlers implement it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency for /healthz.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Dependencies carries everything the router needs.
type Dependencies struct {
	Logger         *slog.Logger
	TokenValidator authmw.TokenValidator

	// Handlers are mounted behind the auth middleware in order.
	Handlers []Registrar

	// HealthChecks run on /healthz; any failure turns the probe red.
	HealthChecks []HealthCheck
}

// NewRouter builds the service router. The ops endpoints (/healthz, /metrics)
// are public; every lifecycle endpoint requires a valid bearer token.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(deps.Logger, deps.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireActor(deps.TokenValidator, deps.Logger))
		for _, h := range deps.Handlers {
			h.Register(r)
		}
	})

	return r
}

func healthHandler(logger *slog.Logger, checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check.Probe(ctx); err != nil {
				logger.ErrorContext(ctx, "health check failed",
					"component", check.Name,
					"error", err,
				)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":    "unavailable",
					"component": check.Name,
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
