package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// Router fans samples out to one ingestor per region, creating each lazily
// the first time its region id shows up. It implements domain.IngestSink.
type Router struct {
	store Committer
	opts  Options

	mu        sync.Mutex
	ingestors map[domain.RegionID]*RegionIngestor

	group *errgroup.Group
	ctx   context.Context
}

// NewRouter constructs a Router whose ingest workers live until ctx ends.
func NewRouter(ctx context.Context, store Committer, opts Options) *Router {
	group, ctx := errgroup.WithContext(ctx)
	return &Router{
		store:     store,
		opts:      opts,
		ingestors: make(map[domain.RegionID]*RegionIngestor),
		group:     group,
		ctx:       ctx,
	}
}

// Add routes samples to the region's ingestor.
func (r *Router) Add(region domain.RegionID, samples []domain.Sample) {
	r.ingestor(region).Enqueue(samples...)
}

// ingestor returns the region's ingestor, starting its worker on first use.
func (r *Router) ingestor(region domain.RegionID) *RegionIngestor {
	r.mu.Lock()
	defer r.mu.Unlock()
	ing, ok := r.ingestors[region]
	if !ok {
		ing = NewRegionIngestor(region, r.store, r.opts)
		r.ingestors[region] = ing
		r.group.Go(func() error {
			ing.Run(r.ctx)
			return nil
		})
	}
	return ing
}

// Wait blocks until every ingest worker has finished its shutdown drain.
func (r *Router) Wait() error { return r.group.Wait() }
