package dispatch

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// Factory hands out one dispatcher per destination, constructing them
// lazily and reaping the ones that report themselves idle. It implements
// domain.Notifier.
type Factory struct {
	opts   Options
	client *http.Client
	group  *errgroup.Group
	ctx    context.Context

	mu      sync.Mutex
	workers map[string]*Dispatcher
	collect chan string
}

// NewFactory starts the reaper goroutine and returns the factory. Workers
// run until ctx is cancelled; Wait joins them.
func NewFactory(ctx context.Context, opts Options) *Factory {
	group, ctx := errgroup.WithContext(ctx)
	f := &Factory{
		opts:    opts.withDefaults(),
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		group:   group,
		ctx:     ctx,
		workers: make(map[string]*Dispatcher),
		collect: make(chan string, 8),
	}
	group.Go(func() error {
		f.reap(ctx)
		return nil
	})
	return f
}

// Notify implements domain.Notifier.
func (f *Factory) Notify(destination string, body []byte) {
	f.NotifyWithCallback(destination, body, nil)
}

// NotifyWithCallback posts body to destination and runs callback once the
// destination acknowledged it. Order per destination is FIFO.
func (f *Factory) NotifyWithCallback(destination string, body []byte, callback func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.workers[destination]
	if d == nil {
		d = newDispatcher(destination, f.client, f.opts, f.collect)
		f.workers[destination] = d
		f.group.Go(func() error {
			d.Run(f.ctx)
			return nil
		})
	}
	d.Enqueue(Request{Body: body, Callback: callback})
}

// Active is the number of live per-destination workers.
func (f *Factory) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.workers)
}

// Wait blocks until every worker has exited after cancellation.
func (f *Factory) Wait() error {
	return f.group.Wait()
}

// reap removes workers that reported themselves idle. A worker that raced
// an enqueue between reporting and exiting keeps its queue, so it is
// restarted instead of removed.
func (f *Factory) reap(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-f.collect:
			f.mu.Lock()
			d := f.workers[name]
			switch {
			case d == nil:
			case d.depth() == 0:
				delete(f.workers, name)
				slog.Debug("dispatcher collected", slog.String("destination", name))
			default:
				f.group.Go(func() error {
					d.Run(f.ctx)
					return nil
				})
			}
			f.mu.Unlock()
		}
	}
}
