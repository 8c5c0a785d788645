package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/internal/domain"
	"github.com/hostpulse/hostpulse/internal/usecase"
)

type stubLatencyRepo struct {
	raw        []domain.Sample
	aggregated []domain.AggregatedSample
	summary    domain.AggregatedSample
	rawErr     error
	aggErr     error
	summaryErr error
}

func (r *stubLatencyRepo) CommitRaw(ctx domain.Context, samples []domain.Sample) (int, error) {
	return len(samples), nil
}

func (r *stubLatencyRepo) RecentEntries(ctx domain.Context, q domain.LatencyQuery) ([]domain.Sample, error) {
	return r.raw, r.rawErr
}

func (r *stubLatencyRepo) AggregatedEntries(ctx domain.Context, q domain.LatencyQuery) ([]domain.AggregatedSample, error) {
	return r.aggregated, r.aggErr
}

func (r *stubLatencyRepo) RawSummary(ctx domain.Context, q domain.LatencyQuery) (domain.AggregatedSample, error) {
	return r.summary, r.summaryErr
}

func TestLatency_Entries_ReturnsBothTables(t *testing.T) {
	t.Parallel()
	repo := &stubLatencyRepo{
		raw: []domain.Sample{{ShortSample: domain.ShortSample{Timestamp: 100, LatencyMicros: 2500}, Monitor: 1, Server: 2}},
		aggregated: []domain.AggregatedSample{
			{Start: 0, End: 3600, Mean: 250, Variance: 12500, Min: 100, Max: 400, Count: 4},
		},
	}
	svc := usecase.NewLatencyService(repo)

	raw, aggregated := svc.Entries(context.Background(), domain.LatencyQuery{Monitor: 1})
	require.Len(t, raw, 1)
	require.Len(t, aggregated, 1)
	assert.Equal(t, uint32(4), aggregated[0].Count)
}

func TestLatency_Entries_StoreFailureMeansNoData(t *testing.T) {
	t.Parallel()
	for name, repo := range map[string]*stubLatencyRepo{
		"raw read fails":        {rawErr: assert.AnError},
		"aggregated read fails": {aggErr: assert.AnError},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			svc := usecase.NewLatencyService(repo)
			raw, aggregated := svc.Entries(context.Background(), domain.LatencyQuery{})
			assert.Nil(t, raw)
			assert.Nil(t, aggregated)
		})
	}
}

func TestLatency_Statistics_PoolsRawAndAggregated(t *testing.T) {
	t.Parallel()
	// Raw half: 2 samples at 100us. Aggregated half: 2 samples at 300us.
	// Pooled: n=4, mean 200, population variance 10000.
	repo := &stubLatencyRepo{
		summary: domain.AggregatedSample{Mean: 100, Variance: 0, Min: 100, Max: 100, Count: 2},
		aggregated: []domain.AggregatedSample{
			{Start: 0, End: 3600, Mean: 300, Variance: 0, Min: 300, Max: 300, Count: 2},
		},
	}
	svc := usecase.NewLatencyService(repo)

	got, err := svc.Statistics(context.Background(), domain.LatencyQuery{Start: 0, End: 7200})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), got.Count)
	assert.InDelta(t, 200.0, got.Mean, 1e-9)
	assert.InDelta(t, 10000.0, got.Variance, 1e-9)
	assert.Equal(t, uint32(100), got.Min)
	assert.Equal(t, uint32(300), got.Max)
	assert.Equal(t, domain.ZoranTime(0), got.Start)
	assert.Equal(t, domain.ZoranTime(7200), got.End)
}

func TestLatency_Statistics_AggregatedOnly(t *testing.T) {
	t.Parallel()
	// Raw summary is the zero row; only aggregated rows contribute.
	repo := &stubLatencyRepo{
		aggregated: []domain.AggregatedSample{
			{Mean: 500, Variance: 250, Min: 480, Max: 520, Count: 10},
		},
	}
	svc := usecase.NewLatencyService(repo)

	got, err := svc.Statistics(context.Background(), domain.LatencyQuery{})
	require.NoError(t, err)
	assert.Equal(t, uint32(10), got.Count)
	assert.InDelta(t, 500.0, got.Mean, 1e-9)
	assert.InDelta(t, 250.0, got.Variance, 1e-9)
}

func TestLatency_Statistics_NoMatches(t *testing.T) {
	t.Parallel()
	svc := usecase.NewLatencyService(&stubLatencyRepo{})

	_, err := svc.Statistics(context.Background(), domain.LatencyQuery{Monitor: 999})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestLatency_Statistics_StoreFailure(t *testing.T) {
	t.Parallel()
	for name, repo := range map[string]*stubLatencyRepo{
		"summary fails":    {summaryErr: assert.AnError},
		"aggregated fails": {aggErr: assert.AnError},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			svc := usecase.NewLatencyService(repo)
			_, err := svc.Statistics(context.Background(), domain.LatencyQuery{})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidValue)
		})
	}
}
