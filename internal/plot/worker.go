// Package plot renders latency history charts and histograms on a single
// worker goroutine. Callers post requests under an integer id and collect
// the image through that id's mailbox, so concurrent HTTP handlers share
// one renderer without sharing state.
package plot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/domain"
)

// Kind selects the chart family.
type Kind uint8

const (
	History Kind = iota + 1
	Histogram
)

func (k Kind) String() string {
	switch k {
	case History:
		return "history"
	case Histogram:
		return "histogram"
	default:
		return "unknown"
	}
}

type contextKey uint8

// PlotWorkerContextKey tags contexts whose queries are issued by the render
// worker rather than by a request goroutine.
const PlotWorkerContextKey contextKey = 0

// WithWorkerContext marks ctx as render-worker-owned.
func WithWorkerContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, PlotWorkerContextKey, true)
}

// FromWorker reports whether ctx carries the render worker mark.
func FromWorker(ctx context.Context) bool {
	ok, _ := ctx.Value(PlotWorkerContextKey).(bool)
	return ok
}

// Querier is the slice of the query layer the renderer reads through.
type Querier interface {
	Entries(ctx domain.Context, q domain.LatencyQuery) ([]domain.Sample, []domain.AggregatedSample)
}

type request struct {
	kind  Kind
	query domain.LatencyQuery
	opts  Options
	box   *Mailbox
}

// Worker owns the render goroutine. The Request methods are safe for
// concurrent use; rendering itself is serialized.
type Worker struct {
	queries  Querier
	boxes    mailboxes
	requests chan request
}

// NewWorker constructs a Worker. queueDepth bounds how many requests may
// wait for the renderer before posters block.
func NewWorker(queries Querier, queueDepth int) *Worker {
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Worker{queries: queries, requests: make(chan request, queueDepth)}
}

// RequestHistory queues a history chart and returns the caller's mailbox.
// A stale image left under id is discarded first.
func (w *Worker) RequestHistory(id int, q domain.LatencyQuery, opts Options) *Mailbox {
	return w.enqueue(History, id, q, opts)
}

// RequestHistogram queues a latency distribution chart.
func (w *Worker) RequestHistogram(id int, q domain.LatencyQuery, opts Options) *Mailbox {
	return w.enqueue(Histogram, id, q, opts)
}

func (w *Worker) enqueue(kind Kind, id int, q domain.LatencyQuery, opts Options) *Mailbox {
	box := w.boxes.at(id)
	box.ForceEmpty()
	w.requests <- request{kind: kind, query: q, opts: opts, box: box}
	return box
}

// Run renders requests until ctx is cancelled. Queries issued here carry
// the worker context mark.
func (w *Worker) Run(ctx context.Context) {
	ctx = WithWorkerContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			start := time.Now()
			img, err := w.render(ctx, req)
			observability.PlotRenderDuration.WithLabelValues(req.kind.String()).Observe(time.Since(start).Seconds())
			if err != nil {
				observability.PlotRenderFailures.WithLabelValues(req.kind.String()).Inc()
				slog.Error("plot render failed",
					slog.String("kind", req.kind.String()),
					slog.Any("error", err))
			}
			req.box.deposit(renderResult{image: img, err: err})
		}
	}
}

func (w *Worker) render(ctx context.Context, req request) ([]byte, error) {
	raw, aggregated := w.queries.Entries(ctx, req.query)
	switch req.kind {
	case Histogram:
		return renderHistogram(raw, aggregated, req.opts)
	case History:
		return renderHistory(raw, aggregated, req.opts)
	default:
		return nil, fmt.Errorf("op=plot.render: unknown kind %d: %w", req.kind, domain.ErrInvalidArgument)
	}
}
