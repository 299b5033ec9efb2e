package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heraerp/heraerp-prd-sub081/internal/observability"
	"github.com/heraerp/heraerp-prd-sub081/internal/platform/httpx"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger    *slog.Logger
	Config    *Config
	Metrics   *observability.Metrics
	Checks    map[string]HealthCheck
	JobHealth http.Handler
	// JobTrigger serves POST /jobs/{type}.
	JobTrigger http.Handler
}

// NewRouter constructs the ops chi.Router: health, metrics and the job endpoints.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHealth != nil {
		r.Method(http.MethodGet, "/jobs/health", params.JobHealth)
	}
	if params.JobTrigger != nil {
		r.Method(http.MethodPost, "/jobs/{type}", params.JobTrigger)
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)
		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		deps := map[string]string{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				continue
			}
			deps[name] = "ok"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		httpx.JSON(w, status, body)
	}
}
