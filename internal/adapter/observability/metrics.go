package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	IngestEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_samples_enqueued_total",
			Help: "Samples accepted into a region queue",
		},
		[]string{"region"},
	)
	IngestInsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_samples_inserted_total",
			Help: "Samples committed to the raw table",
		},
		[]string{"region"},
	)
	IngestDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_samples_dropped_total",
			Help: "Samples dropped at commit time by reason",
		},
		[]string{"reason"},
	)
	IngestQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Samples waiting in a region queue",
		},
		[]string{"region"},
	)
	IngestFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_flush_duration_seconds",
			Help:    "Time to drain one captured queue batch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"region"},
	)
	IngestRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_commit_retries_total",
			Help: "Sub-batch commit attempts that failed and will be retried",
		},
		[]string{"region"},
	)

	AggregatorWindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_windows_written_total",
			Help: "Aggregated rows written per tier",
		},
		[]string{"tier"},
	)
	AggregatorExpungedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_rows_expunged_total",
			Help: "Rows removed by the retention sweep",
		},
		[]string{"table"},
	)
	AggregatorTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_tick_duration_seconds",
			Help:    "Wall time of one aggregation tick",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"tier"},
	)
	AggregatorTickErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_tick_errors_total",
			Help: "Ticks rolled back by an error; retried on the next tick",
		},
		[]string{"tier"},
	)

	PlotRenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plot_render_duration_seconds",
			Help:    "Chart render plus encode time by plot kind",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"kind"},
	)
	PlotRenderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plot_render_failures_total",
			Help: "Plot requests that completed with an error",
		},
		[]string{"kind"},
	)

	DispatchSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Outbound dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)
	DispatchQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Pending requests per destination",
		},
		[]string{"destination"},
	)

	PurgeTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purge_tasks_total",
			Help: "Customer purge tasks by result",
		},
		[]string{"result"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(IngestEnqueuedTotal)
	prometheus.MustRegister(IngestInsertedTotal)
	prometheus.MustRegister(IngestDroppedTotal)
	prometheus.MustRegister(IngestQueueDepth)
	prometheus.MustRegister(IngestFlushDuration)
	prometheus.MustRegister(IngestRetriesTotal)
	prometheus.MustRegister(AggregatorWindowsTotal)
	prometheus.MustRegister(AggregatorExpungedTotal)
	prometheus.MustRegister(AggregatorTickDuration)
	prometheus.MustRegister(AggregatorTickErrors)
	prometheus.MustRegister(PlotRenderDuration)
	prometheus.MustRegister(PlotRenderFailures)
	prometheus.MustRegister(DispatchSentTotal)
	prometheus.MustRegister(DispatchQueueDepth)
	prometheus.MustRegister(PurgeTasksTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// DropSamples counts samples rejected at commit time.
func DropSamples(reason string, n int) {
	if n > 0 {
		IngestDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveFlush records one drained queue batch for a region.
func ObserveFlush(region string, inserted int, dur time.Duration) {
	IngestInsertedTotal.WithLabelValues(region).Add(float64(inserted))
	IngestFlushDuration.WithLabelValues(region).Observe(dur.Seconds())
}
