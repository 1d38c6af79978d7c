// Package server is the HTTP layer: the bearer-protected sharing API under
// /api/v1, the basic-auth admin surface under /admin, and the operational
// endpoints (/healthz, /readyz, /metrics).
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/delta-incubator/riverbank/health"
	"github.com/delta-incubator/riverbank/metrics"
)

// New assembles the full router into an http.Server. corsOrigins controls
// Access-Control-Allow-Origin for the data plane; an empty slice disables
// the header. readTimeout and idleTimeout configure the corresponding
// http.Server fields; zero values leave them unset.
func New(api *API, admin *Admin, checker *health.Checker, ready *health.ReadinessChecker, corsOrigins []string, readTimeout, idleTimeout time.Duration) *http.Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	if len(corsOrigins) > 0 {
		r.Use(corsMiddleware(corsOrigins))
	}

	if checker != nil {
		r.Get("/healthz", checker.ServeHTTP)
	}
	if ready != nil {
		r.Get("/readyz", ready.ServeHTTP)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api/v1", api.Routes())
	r.Mount("/admin", admin.Routes())

	return &http.Server{
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: 0,
		IdleTimeout:  idleTimeout,
	}
}

// countRequests records one metrics sample per served request.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}

// corsMiddleware sets Access-Control-Allow-Origin for requests whose Origin
// header matches one of the allowed origins. "*" matches every origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
			break
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
