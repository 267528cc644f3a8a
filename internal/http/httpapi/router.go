// Package httpapi assembles the chi router for the API process.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snapcode/internal/http/handlers"
	"snapcode/internal/middleware"
)

// Options tunes router-level middleware.
type Options struct {
	RateLimitPerMin int
}

// NewRouter builds the HTTP surface.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Log),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/conversions", func(r chi.Router) {
		r.Post("/", app.Submit)
		r.Get("/{job_id}", app.Status)
		r.Delete("/{job_id}", app.Cancel)
		r.Get("/{job_id}/download", app.Download)
		r.Get("/{job_id}/preview", app.Preview)
	})

	r.Route("/v1/credits", func(r chi.Router) {
		r.Get("/", app.Credits)
		r.Post("/", app.AddCredits)
	})

	return r
}
