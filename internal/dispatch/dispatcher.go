// Package dispatch posts fire-and-forget notifications to external
// endpoints. Each destination gets its own worker so deliveries to one
// endpoint stay in order while destinations never block each other.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hostpulse/hostpulse/internal/adapter/observability"
)

// Request is one pending post. Callback, when set, runs after the
// destination acknowledged the body and before the queue advances.
type Request struct {
	Body     []byte
	Callback func()
}

// Options tune a dispatcher.
type Options struct {
	// RetryInterval is how long the worker sleeps before re-sending the
	// head request after a failed delivery. The head is never skipped.
	RetryInterval time.Duration
	// MaxIdle is how long the queue may sit empty before a collectable
	// worker asks its factory to remove it.
	MaxIdle time.Duration
	// CallbackGrace is the pause between the acknowledgement and the
	// callback, letting the response settle at the destination first.
	CallbackGrace time.Duration
	// GarbageCollect marks the worker as removable when idle.
	GarbageCollect bool
}

func (o Options) withDefaults() Options {
	if o.RetryInterval <= 0 {
		o.RetryInterval = 60 * time.Second
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = time.Hour
	}
	if o.CallbackGrace <= 0 {
		o.CallbackGrace = 10 * time.Millisecond
	}
	return o
}

// Dispatcher owns the FIFO queue for one destination. At most one request
// is in flight at a time.
type Dispatcher struct {
	destination string
	client      *http.Client
	opts        Options
	collect     chan<- string

	mu    sync.Mutex
	queue []Request
	wake  chan struct{}
}

// NewDispatcher constructs a standalone dispatcher. Factory-built workers
// additionally report to the factory's collect channel when idle.
func NewDispatcher(destination string, client *http.Client, opts Options) *Dispatcher {
	return newDispatcher(destination, client, opts, nil)
}

func newDispatcher(destination string, client *http.Client, opts Options, collect chan<- string) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{
		destination: destination,
		client:      client,
		opts:        opts.withDefaults(),
		collect:     collect,
		wake:        make(chan struct{}, 1),
	}
}

// Enqueue appends req and wakes the worker. It never blocks on I/O.
func (d *Dispatcher) Enqueue(req Request) {
	d.mu.Lock()
	d.queue = append(d.queue, req)
	depth := len(d.queue)
	d.mu.Unlock()
	observability.DispatchQueueDepth.WithLabelValues(d.destination).Set(float64(depth))
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued requests until ctx is cancelled or, for collectable
// workers, until the queue stayed empty for MaxIdle. Pending requests are
// dropped on cancellation.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		req, ok := d.head()
		if !ok {
			if !d.waitForWork(ctx) {
				return
			}
			continue
		}
		if err := d.post(ctx, req.Body); err != nil {
			observability.DispatchSentTotal.WithLabelValues("retry").Inc()
			slog.Warn("dispatch failed, retrying head",
				slog.String("destination", d.destination),
				slog.Any("error", err))
			if !sleep(ctx, d.opts.RetryInterval) {
				return
			}
			continue
		}
		observability.DispatchSentTotal.WithLabelValues("ok").Inc()
		if req.Callback != nil {
			sleep(ctx, d.opts.CallbackGrace)
			req.Callback()
		}
		d.pop()
	}
}

func (d *Dispatcher) head() (Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return Request{}, false
	}
	return d.queue[0], true
}

func (d *Dispatcher) pop() {
	d.mu.Lock()
	if len(d.queue) > 0 {
		d.queue = d.queue[1:]
	}
	depth := len(d.queue)
	d.mu.Unlock()
	observability.DispatchQueueDepth.WithLabelValues(d.destination).Set(float64(depth))
}

func (d *Dispatcher) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// waitForWork blocks until a request arrives, reporting false when the
// worker should exit instead.
func (d *Dispatcher) waitForWork(ctx context.Context) bool {
	if !d.opts.GarbageCollect || d.collect == nil {
		select {
		case <-ctx.Done():
			return false
		case <-d.wake:
			return true
		}
	}
	idle := time.NewTimer(d.opts.MaxIdle)
	defer idle.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-d.wake:
		return true
	case <-idle.C:
		select {
		case d.collect <- d.destination:
		case <-ctx.Done():
		}
		return false
	}
}

func (d *Dispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("op=dispatch.post: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("op=dispatch.post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("op=dispatch.post: destination replied %s", resp.Status)
	}
	return nil
}

// sleep waits for d, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
