package usecase

import (
	"fmt"
	"log/slog"

	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/stats"
)

// LatencyService answers read queries over both latency tables.
type LatencyService struct {
	Repo domain.LatencyRepository
}

// NewLatencyService constructs a LatencyService.
func NewLatencyService(repo domain.LatencyRepository) LatencyService {
	return LatencyService{Repo: repo}
}

// Entries returns the raw and aggregated rows matching q. Store failures
// degrade to "no data": the caller sees empty results and the error only
// reaches the log.
func (s LatencyService) Entries(ctx domain.Context, q domain.LatencyQuery) ([]domain.Sample, []domain.AggregatedSample) {
	raw, err := s.Repo.RecentEntries(ctx, q)
	if err != nil {
		slog.Error("latency read failed", slog.Any("error", err))
		return nil, nil
	}
	aggregated, err := s.Repo.AggregatedEntries(ctx, q)
	if err != nil {
		slog.Error("latency read failed", slog.Any("error", err))
		return nil, nil
	}
	return raw, aggregated
}

// Statistics pools the SQL-side summary of the raw table with every
// aggregated row matching q into one figure. When nothing matches it
// reports ErrInvalidValue so callers can answer "no data".
func (s LatencyService) Statistics(ctx domain.Context, q domain.LatencyQuery) (domain.AggregatedSample, error) {
	summary, err := s.Repo.RawSummary(ctx, q)
	if err != nil {
		slog.Error("latency statistics failed", slog.Any("error", err))
		return domain.AggregatedSample{}, fmt.Errorf("op=latency.statistics: %w", domain.ErrInvalidValue)
	}
	aggregated, err := s.Repo.AggregatedEntries(ctx, q)
	if err != nil {
		slog.Error("latency statistics failed", slog.Any("error", err))
		return domain.AggregatedSample{}, fmt.Errorf("op=latency.statistics: %w", domain.ErrInvalidValue)
	}
	var acc stats.Accumulator
	if summary.Valid() {
		acc.AddSummary(summary.Count, summary.Mean, summary.Variance, summary.Min, summary.Max)
	}
	for _, row := range aggregated {
		acc.AddSummary(row.Count, row.Mean, row.Variance, row.Min, row.Max)
	}
	if acc.Count() == 0 {
		return domain.AggregatedSample{}, fmt.Errorf("op=latency.statistics: no matching samples: %w", domain.ErrInvalidValue)
	}
	return domain.AggregatedSample{
		Start:    q.Start,
		End:      q.End,
		Mean:     acc.Mean(),
		Variance: acc.Variance(),
		Min:      acc.Min(),
		Max:      acc.Max(),
		Count:    uint32(acc.Count()),
	}, nil
}
