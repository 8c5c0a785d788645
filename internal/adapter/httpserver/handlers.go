package httpserver

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hostpulse/hostpulse/internal/adapter/uplink"
	"github.com/hostpulse/hostpulse/internal/config"
	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/plot"
	"github.com/hostpulse/hostpulse/internal/service/ratelimiter"
	"github.com/hostpulse/hostpulse/internal/usecase"
)

// Server aggregates handler dependencies for the API process.
type Server struct {
	Cfg       config.Config
	Ingest    usecase.IngestService
	Latency   usecase.LatencyService
	Purge     usecase.PurgeService
	Customers usecase.CustomerService
	Plots     *plot.Worker
	Limiter   ratelimiter.Limiter

	// Readiness probes; nil probes are skipped.
	DBCheck    func(ctx domain.Context) error
	RedisCheck func(ctx domain.Context) error
	QueueCheck func(ctx domain.Context) error

	// plotCaller hands out mailbox ids; each request waits on its own slot.
	plotCaller atomic.Int64
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, ingest usecase.IngestService, latency usecase.LatencyService, purge usecase.PurgeService, customers usecase.CustomerService, plots *plot.Worker, limiter ratelimiter.Limiter) *Server {
	return &Server{Cfg: cfg, Ingest: ingest, Latency: latency, Purge: purge, Customers: customers, Plots: plots, Limiter: limiter}
}

// RecordHandler accepts the binary worker upload. Frame violations are
// envelope errors (bare 400); an unknown reporting server is a data
// failure carried in the status string.
func (s *Server) RecordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		report, err := uplink.ParseReport(body)
		if err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		identifier := report.Identifier()
		if identifier == "" {
			writeFailed(w, "unknown server")
			return
		}
		samples := make([]domain.Sample, 0, len(report.Samples))
		for _, rs := range report.Samples {
			samples = append(samples, domain.Sample{ShortSample: rs.ShortSample, Monitor: rs.Monitor})
		}
		queued, err := s.Ingest.Record(r.Context(), identifier, report.Telemetry, samples)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidValue) || errors.Is(err, domain.ErrNotFound) {
				writeFailed(w, "unknown server")
			} else {
				writeFailed(w, "server lookup failed")
			}
			return
		}
		writeOK(w, map[string]any{"queued": queued})
	}
}

// GetHandler answers the operator latency query.
func (s *Server) GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env queryEnvelope
		if err := decodeEnvelope(r, &env); err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		if why, ok := checkEnvelope(env); !ok {
			writeFailed(w, why)
			return
		}
		s.respondEntries(w, r, env.toQuery())
	}
}

// StatisticsHandler pools everything matching the filters into one figure.
func (s *Server) StatisticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env queryEnvelope
		if err := decodeEnvelope(r, &env); err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		if why, ok := checkEnvelope(env); !ok {
			writeFailed(w, why)
			return
		}
		stats, err := s.Latency.Statistics(r.Context(), env.toQuery())
		if err != nil {
			writeFailed(w, "no matching samples")
			return
		}
		writeJSON(w, http.StatusOK, statisticsResponse{
			Status:         statusOK,
			Average:        secondsFromMicros(stats.Mean),
			Variance:       secondsSquaredFromMicros(stats.Variance),
			Minimum:        secondsFromMicros(float64(stats.Min)),
			Maximum:        secondsFromMicros(float64(stats.Max)),
			NumberSamples:  stats.Count,
			StartTimestamp: stats.Start.Unix(),
			EndTimestamp:   stats.End.Unix(),
		})
	}
}

// PurgeHandler enqueues the removal of all latency data for the named
// customers and replies with the task id to correlate the completion
// notification.
func (s *Server) PurgeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env purgeEnvelope
		if err := decodeEnvelope(r, &env); err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		if why, ok := checkEnvelope(env); !ok {
			writeFailed(w, why)
			return
		}
		taskID, err := s.Purge.Request(r.Context(), env.customers())
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				writeFailed(w, "no customers named")
			} else {
				writeFailed(w, "purge enqueue failed")
			}
			return
		}
		writeOK(w, map[string]any{"task_id": taskID})
	}
}

// PlotHandler renders the operator chart and replies with the image.
func (s *Server) PlotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env plotEnvelope
		if err := decodeEnvelope(r, &env); err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		if why, ok := checkEnvelope(env); !ok {
			writeFailed(w, why)
			return
		}
		s.respondPlot(w, r, env, env.toQuery())
	}
}

// CustomerListHandler is the customer view of GetHandler: the filter is
// pinned to the caller's own data and the server filter is withheld.
func (s *Server) CustomerListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := CustomerFrom(r)
		if !ok {
			writeBare(w, http.StatusUnauthorized)
			return
		}
		var env queryEnvelope
		if err := decodeEnvelope(r, &env); err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		if why, ok := checkEnvelope(env); !ok {
			writeFailed(w, why)
			return
		}
		if !s.admitCustomer(w, r, id) {
			return
		}
		q := env.toQuery()
		q.Customer = id
		q.Server = 0
		s.respondEntries(w, r, q)
	}
}

// CustomerPlotHandler renders a chart over the caller's own data.
func (s *Server) CustomerPlotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := CustomerFrom(r)
		if !ok {
			writeBare(w, http.StatusUnauthorized)
			return
		}
		var env plotEnvelope
		if err := decodeEnvelope(r, &env); err != nil {
			writeBare(w, http.StatusBadRequest)
			return
		}
		if why, ok := checkEnvelope(env); !ok {
			writeFailed(w, why)
			return
		}
		if !s.admitCustomer(w, r, id) {
			return
		}
		q := env.toQuery()
		q.Customer = id
		q.Server = 0
		s.respondPlot(w, r, env, q)
	}
}

func (s *Server) respondEntries(w http.ResponseWriter, r *http.Request, q domain.LatencyQuery) {
	recent, aggregated := s.Latency.Entries(r.Context(), q)
	writeJSON(w, http.StatusOK, latencyResponse{
		Status:     statusOK,
		Recent:     recentRows(recent),
		Aggregated: aggregatedRows(aggregated),
	})
}

func (s *Server) respondPlot(w http.ResponseWriter, r *http.Request, env plotEnvelope, q domain.LatencyQuery) {
	opts, err := env.toOptions()
	if err != nil {
		writeFailed(w, reason(err))
		return
	}
	id := int(s.plotCaller.Add(1))
	var box *plot.Mailbox
	switch env.kind() {
	case plot.Histogram:
		box = s.Plots.RequestHistogram(id, q, opts)
	default:
		box = s.Plots.RequestHistory(id, q, opts)
	}
	img, err := box.WaitForImage(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			writeFailed(w, "render timeout")
		} else {
			writeFailed(w, "render failed")
		}
		return
	}
	w.Header().Set("Content-Type", imageContentType(opts.Format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// admitCustomer applies the rate limiter and the capability gate. It writes
// the failure reply itself and reports whether the request may proceed.
func (s *Server) admitCustomer(w http.ResponseWriter, r *http.Request, id domain.CustomerID) bool {
	if s.Limiter != nil {
		allowed, retryAfter, _ := s.Limiter.Allow(r.Context(), ratelimiter.CustomerKey(id), 1)
		if !allowed {
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			}
			writeFailed(w, "rate limited")
			return false
		}
	}
	if _, err := s.Customers.LatencyAccess(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			writeFailed(w, "latency tracking disabled")
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidValue):
			writeFailed(w, "unknown customer")
		default:
			writeFailed(w, "customer lookup failed")
		}
		return false
	}
	return true
}

func imageContentType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// reason trims an error chain to its leading clause for the status string.
func reason(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, ':'); i > 0 {
		return msg[:i]
	}
	return msg
}
