// Package app wires the HTTP router, middleware stack, and readiness
// checks into a runnable handler.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/ezsentencefix/ez-sentence-fix/internal/adapter/httpserver"
	"github.com/ezsentencefix/ez-sentence-fix/internal/adapter/observability"
	"github.com/ezsentencefix/ez-sentence-fix/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	// Security & instrumentation middleware
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public auth endpoints, rate limited per IP
	r.Group(func(ar chi.Router) {
		ar.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		ar.Post("/v1/auth/register", srv.RegisterHandler())
		ar.Post("/v1/auth/login", srv.LoginHandler())
	})

	// Authenticated API
	r.Group(func(pr chi.Router) {
		pr.Use(srv.RequireAuth())
		pr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		pr.Post("/v1/essays", srv.CreateEssayHandler())
		pr.Get("/v1/essays", srv.ListEssaysHandler())
		pr.Get("/v1/essays/{id}", srv.GetEssayHandler())
		pr.Put("/v1/essays/{id}", srv.UpdateEssayHandler())
		pr.Delete("/v1/essays/{id}", srv.DeleteEssayHandler())
		pr.Get("/v1/essays/{id}/report", srv.ReportHandler())
		pr.Get("/v1/essays/{id}/analysis", srv.AnalysisHandler())
		pr.Post("/v1/essays/reanalyze", srv.ReanalyzeHandler())
		pr.Post("/v1/essays/{id}/evaluations", srv.CreateEvaluationHandler())
		pr.Get("/v1/essays/{id}/evaluations", srv.ListEvaluationsHandler())
		pr.Put("/v1/essays/{id}/evaluations/{evalID}", srv.UpdateEvaluationHandler())
		pr.Delete("/v1/essays/{id}/evaluations/{evalID}", srv.DeleteEvaluationHandler())
	})

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}
