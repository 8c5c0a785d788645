// Package app wires application components and startup helpers.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/hostpulse/hostpulse/internal/adapter/httpserver"
	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
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

// BuildRouter constructs the HTTP handler of the API process: the binary
// upload, the operator query endpoints, and the customer endpoints, plus
// health and metrics.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Binary uplink from the polling workers. Signature check only; the
	// fleet posts too often for an IP limit to make sense.
	r.Group(func(wr chi.Router) {
		wr.Use(httpserver.UploadAuth(cfg.UploadSharedSecret, cfg.MaxUploadMB<<20))
		wr.Post("/latency/record", srv.RecordHandler())
	})

	// Operator API. The IP limit slows down secret guessing.
	r.Group(func(or chi.Router) {
		if cfg.RateLimitPerMin > 0 {
			or.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		}
		if cfg.OperatorAuthEnabled() {
			or.Use(httpserver.OperatorAuth(cfg))
		}
		or.Post("/latency/get", srv.GetHandler())
		or.Post("/latency/statistics", srv.StatisticsHandler())
		or.Post("/latency/plot", srv.PlotHandler())
		or.Post("/latency/purge", srv.PurgeHandler())
	})

	// Customer API. Admission past the token check is per customer and
	// handled inside the handlers.
	tokens := httpserver.NewCustomerTokens(cfg.CustomerTokenSecret)
	r.Group(func(cr chi.Router) {
		cr.Use(httpserver.CustomerAuth(tokens))
		cr.Post("/v1/latency/list", srv.CustomerListHandler())
		cr.Post("/v1/latency/plot", srv.CustomerPlotHandler())
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
