// Package ingest owns the write path from worker uploads into the raw
// latency table. One ingestor per region batches samples in memory and
// drains them to the store on a size or age trigger.
package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/domain"
)

// Committer is the slice of the latency store the ingestor writes through.
type Committer interface {
	CommitRaw(ctx domain.Context, samples []domain.Sample) (int, error)
}

// Options tune one region's ingest worker. Zero fields fall back to the
// defaults the fleet runs with.
type Options struct {
	// CheckInterval is how often the worker inspects the queue.
	CheckInterval time.Duration
	// MaxCached is the queue length that forces an immediate flush.
	MaxCached int
	// ForcedCommitCycles is the number of data-bearing checks after which a
	// flush happens regardless of queue size.
	ForcedCommitCycles int
	// MaxRowsPerTx caps the rows committed in a single transaction.
	MaxRowsPerTx int
	// RetryInterval is the wait between retries of a failed sub-batch.
	RetryInterval time.Duration
	// DrainTimeout bounds the final flush once shutdown begins.
	DrainTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.CheckInterval <= 0 {
		o.CheckInterval = 10 * time.Second
	}
	if o.MaxCached <= 0 {
		o.MaxCached = 8_000_000
	}
	if o.ForcedCommitCycles <= 0 {
		o.ForcedCommitCycles = 30
	}
	if o.MaxRowsPerTx <= 0 {
		o.MaxRowsPerTx = 100
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 30 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 30 * time.Second
	}
	return o
}

// RegionIngestor owns the write path for exactly one region. Producers
// append under a mutex and never block on I/O; a single worker started via
// Run drains the queue.
type RegionIngestor struct {
	region domain.RegionID
	store  Committer
	opts   Options

	mu    sync.Mutex
	queue []domain.Sample

	kick chan struct{}
}

// NewRegionIngestor constructs an ingestor for region. Call Run to start its
// worker.
func NewRegionIngestor(region domain.RegionID, store Committer, opts Options) *RegionIngestor {
	return &RegionIngestor{
		region: region,
		store:  store,
		opts:   opts.withDefaults(),
		kick:   make(chan struct{}, 1),
	}
}

// Enqueue appends samples to the live queue and wakes the worker. The queue
// may overshoot MaxCached: accepting fleet data takes priority over bounding
// memory, and the flush triggers drain the overshoot.
func (g *RegionIngestor) Enqueue(samples ...domain.Sample) {
	if len(samples) == 0 {
		return
	}
	g.mu.Lock()
	g.queue = append(g.queue, samples...)
	depth := len(g.queue)
	g.mu.Unlock()
	label := g.label()
	observability.IngestEnqueuedTotal.WithLabelValues(label).Add(float64(len(samples)))
	observability.IngestQueueDepth.WithLabelValues(label).Set(float64(depth))
	g.Kick()
}

// Kick wakes the worker so it can re-check the size trigger. It never
// blocks; a wake that is already pending is enough.
func (g *RegionIngestor) Kick() {
	select {
	case g.kick <- struct{}{}:
	default:
	}
}

// Run drains the queue until ctx ends, then flushes whatever is left within
// DrainTimeout. A flush happens when the queue reaches MaxCached or after
// ForcedCommitCycles data-bearing checks, whichever comes first.
func (g *RegionIngestor) Run(ctx context.Context) {
	ticker := time.NewTicker(g.opts.CheckInterval)
	defer ticker.Stop()
	cycles := 0
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.DrainTimeout)
			g.flush(drainCtx)
			cancel()
			return
		case <-ticker.C:
			n := g.depth()
			if n == 0 {
				continue
			}
			cycles++
			if n >= g.opts.MaxCached || cycles >= g.opts.ForcedCommitCycles {
				g.flush(ctx)
				cycles = 0
			}
		case <-g.kick:
			// A kick only re-checks the size trigger; the forced-commit
			// counter advances on timer checks alone.
			if g.depth() >= g.opts.MaxCached {
				g.flush(ctx)
				cycles = 0
			}
		}
	}
}

// flush swaps out the live queue and commits it in sub-batches of
// MaxRowsPerTx rows. A failed sub-batch is retried in place at
// RetryInterval until it commits or ctx ends; later sub-batches are never
// attempted ahead of an uncommitted one.
func (g *RegionIngestor) flush(ctx context.Context) {
	batch := g.swap()
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	label := g.label()
	inserted := 0
	for base := 0; base < len(batch); base += g.opts.MaxRowsPerTx {
		end := base + g.opts.MaxRowsPerTx
		if end > len(batch) {
			end = len(batch)
		}
		sub := batch[base:end]
		bo := backoff.WithContext(backoff.NewConstantBackOff(g.opts.RetryInterval), ctx)
		var n int
		err := backoff.Retry(func() error {
			var err error
			n, err = g.store.CommitRaw(ctx, sub)
			if err != nil {
				observability.IngestRetriesTotal.WithLabelValues(label).Inc()
				slog.Warn("latency sub-batch commit failed",
					slog.String("region", label),
					slog.Int("rows", len(sub)),
					slog.Any("error", err))
			}
			return err
		}, bo)
		if err != nil {
			abandoned := len(batch) - base
			observability.DropSamples("shutdown", abandoned)
			slog.Error("ingest drain abandoned",
				slog.String("region", label),
				slog.Int("samples", abandoned),
				slog.Any("error", err))
			return
		}
		inserted += n
	}
	observability.ObserveFlush(label, inserted, time.Since(start))
	slog.Debug("ingest flush",
		slog.String("region", label),
		slog.Int("batch", len(batch)),
		slog.Int("inserted", inserted))
}

// swap atomically replaces the live queue with a fresh one and returns the
// captured batch.
func (g *RegionIngestor) swap() []domain.Sample {
	g.mu.Lock()
	batch := g.queue
	g.queue = nil
	g.mu.Unlock()
	observability.IngestQueueDepth.WithLabelValues(g.label()).Set(0)
	return batch
}

func (g *RegionIngestor) depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

func (g *RegionIngestor) label() string { return strconv.FormatUint(uint64(g.region), 10) }
