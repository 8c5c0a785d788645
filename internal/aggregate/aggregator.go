// Package aggregate compacts latency samples into fixed windows and
// enforces retention. One Aggregator instance serves one tier: the first
// tier folds the raw table into aggregated rows, later tiers re-aggregate
// the aggregated table in place with a longer window.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hostpulse/hostpulse/internal/adapter/observability"
	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/stats"
)

// Params are the knobs of one tier. Operators retune them live through
// Configure; the next tick sees the new values.
type Params struct {
	// Period is the output window width.
	Period time.Duration
	// MaxAge is how old a row must be before it is folded into a window.
	MaxAge time.Duration
	// ExpungePeriod is the retention horizon for the sweep that follows
	// each pass. Zero disables the sweep for this tier.
	ExpungePeriod time.Duration
	// FromAggregated selects the input table: false reads raw samples,
	// true re-aggregates already aggregated rows.
	FromAggregated bool
}

func (p Params) Validate() error {
	if p.Period < time.Second {
		return fmt.Errorf("op=aggregate.params: period %v below one second: %w", p.Period, domain.ErrInvalidArgument)
	}
	if p.MaxAge < p.Period {
		return fmt.Errorf("op=aggregate.params: max age %v below period %v: %w", p.MaxAge, p.Period, domain.ErrInvalidArgument)
	}
	return nil
}

// label identifies the tier on metrics: its period in seconds.
func (p Params) label() string { return strconv.FormatInt(int64(p.Period/time.Second), 10) }

// Aggregator folds eligible rows from its input table into window summaries
// on a fixed cadence. A single worker drives it; Configure may be called
// from any goroutine.
type Aggregator struct {
	store domain.AggregationStore

	mu     sync.Mutex
	params Params

	rnd *rng
	now func() time.Time
}

// New constructs an Aggregator for one tier.
func New(store domain.AggregationStore, params Params) *Aggregator {
	return &Aggregator{store: store, params: params, rnd: newRNG(), now: time.Now}
}

// Configure swaps the tier parameters.
func (a *Aggregator) Configure(p Params) {
	a.mu.Lock()
	a.params = p
	a.mu.Unlock()
}

// Current reports the active tier parameters.
func (a *Aggregator) Current() Params {
	return a.snapshot()
}

func (a *Aggregator) snapshot() Params {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.params
}

// Run ticks every Period until ctx ends. The interval is re-read each
// iteration so a Configure call also retunes the cadence.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		p := a.snapshot()
		wait := p.Period
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			_ = a.Tick(ctx)
		}
	}
}

// Tick runs one aggregation pass followed by the retention sweep. The sweep
// is attempted even when the pass fails; a failed pass simply leaves its
// input rows for the next tick.
func (a *Aggregator) Tick(ctx context.Context) error {
	p := a.snapshot()
	label := p.label()
	start := a.now()
	aggErr := a.aggregate(ctx, p)
	if aggErr != nil {
		observability.AggregatorTickErrors.WithLabelValues(label).Inc()
		slog.Error("aggregation pass failed", slog.String("tier", label), slog.Any("error", aggErr))
	}
	if p.ExpungePeriod > 0 {
		a.expunge(ctx, p)
	}
	observability.AggregatorTickDuration.WithLabelValues(label).Observe(a.now().Sub(start).Seconds())
	return aggErr
}

func (a *Aggregator) aggregate(ctx context.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	threshold := a.threshold(p)
	contribs, err := a.eligible(ctx, p, threshold)
	if err != nil {
		return err
	}
	if len(contribs) == 0 {
		return nil
	}
	rows := a.windows(contribs, uint32(p.Period/time.Second))
	inserted, err := a.store.CommitWindows(ctx, threshold, p.FromAggregated, rows)
	if err != nil {
		return err
	}
	observability.AggregatorWindowsTotal.WithLabelValues(p.label()).Add(float64(inserted))
	slog.Info("aggregation pass",
		slog.String("tier", p.label()),
		slog.Int("inputs", len(contribs)),
		slog.Int("windows", len(rows)),
		slog.Int("inserted", inserted))
	return nil
}

// threshold is the eligibility cutoff: rows older than MaxAge, snapped down
// to a whole period so partial windows never form.
func (a *Aggregator) threshold(p Params) domain.ZoranTime {
	period := int64(p.Period / time.Second)
	z := int64(domain.ToZoran(a.now().Add(-p.MaxAge).Unix()))
	z -= z % period
	return domain.ZoranTime(z)
}

// contribution is one input row normalized to summary form. A raw sample
// contributes n=1 with zero variance; an aggregated row contributes its own
// summary and its stored representative.
type contribution struct {
	monitor  domain.MonitorID
	server   domain.ServerID
	end      domain.ZoranTime
	rep      domain.ShortSample
	n        uint32
	mean     float64
	variance float64
	min, max uint32
}

func (a *Aggregator) eligible(ctx context.Context, p Params, before domain.ZoranTime) ([]contribution, error) {
	if p.FromAggregated {
		rows, err := a.store.EligibleAggregated(ctx, before)
		if err != nil {
			return nil, err
		}
		out := make([]contribution, 0, len(rows))
		for _, r := range rows {
			out = append(out, contribution{
				monitor:  r.Monitor,
				server:   r.Server,
				end:      r.End,
				rep:      r.ShortSample,
				n:        r.Count,
				mean:     r.Mean,
				variance: r.Variance,
				min:      r.Min,
				max:      r.Max,
			})
		}
		return out, nil
	}
	rows, err := a.store.EligibleRaw(ctx, before)
	if err != nil {
		return nil, err
	}
	out := make([]contribution, 0, len(rows))
	for _, r := range rows {
		out = append(out, contribution{
			monitor: r.Monitor,
			server:  r.Server,
			end:     r.Timestamp,
			rep:     r.ShortSample,
			n:       1,
			mean:    float64(r.LatencyMicros),
			min:     r.LatencyMicros,
			max:     r.LatencyMicros,
		})
	}
	return out, nil
}

// windows partitions contributions, already ordered by (monitor, server,
// time), into aligned windows. A new window opens when the series changes
// or the contribution's end time reaches the current window's end.
func (a *Aggregator) windows(contribs []contribution, periodSec uint32) []domain.AggregatedSample {
	var (
		out []domain.AggregatedSample
		cur *windowState
	)
	for _, c := range contribs {
		if cur == nil || c.monitor != cur.monitor || c.server != cur.server || c.end >= cur.end {
			if cur != nil {
				out = append(out, cur.result())
			}
			cur = openWindow(c, periodSec)
		}
		cur.add(c, a.rnd)
	}
	if cur != nil {
		out = append(out, cur.result())
	}
	return out
}

type windowState struct {
	monitor    domain.MonitorID
	server     domain.ServerID
	start, end domain.ZoranTime
	acc        stats.Accumulator
	rep        domain.ShortSample
	candidates uint32
}

func openWindow(c contribution, periodSec uint32) *windowState {
	start := c.end - c.end%domain.ZoranTime(periodSec)
	return &windowState{
		monitor: c.monitor,
		server:  c.server,
		start:   start,
		end:     start + domain.ZoranTime(periodSec),
	}
}

func (w *windowState) add(c contribution, rnd *rng) {
	w.acc.AddSummary(c.n, c.mean, c.variance, c.min, c.max)
	// Size-one reservoir: the i-th candidate replaces the current pick with
	// probability 1/i, which keeps the pick uniform over all candidates.
	w.candidates++
	if w.candidates == 1 || rnd.next32()%w.candidates == 0 {
		w.rep = c.rep
	}
}

func (w *windowState) result() domain.AggregatedSample {
	return domain.AggregatedSample{
		Sample:   domain.Sample{ShortSample: w.rep, Monitor: w.monitor, Server: w.server},
		Start:    w.start,
		End:      w.end,
		Mean:     w.acc.Mean(),
		Variance: w.acc.Variance(),
		Min:      w.acc.Min(),
		Max:      w.acc.Max(),
		Count:    uint32(w.acc.Count()),
	}
}

// expunge removes rows past the retention horizon from both tables. Sweep
// failures only log; whatever was removed stays removed.
func (a *Aggregator) expunge(ctx context.Context, p Params) {
	cut := domain.ToZoran(a.now().Add(-p.ExpungePeriod).Unix())
	raw, agg, err := a.store.ExpungeBefore(ctx, cut)
	observability.AggregatorExpungedTotal.WithLabelValues("latency_seconds").Add(float64(raw))
	observability.AggregatorExpungedTotal.WithLabelValues("latency_aggregated").Add(float64(agg))
	if err != nil {
		slog.Warn("retention sweep failed", slog.String("tier", p.label()), slog.Any("error", err))
		return
	}
	if raw > 0 || agg > 0 {
		slog.Info("retention sweep",
			slog.String("tier", p.label()),
			slog.Int64("raw_removed", raw),
			slog.Int64("aggregated_removed", agg))
	}
}
