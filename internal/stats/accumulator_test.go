package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/internal/stats"
)

func TestAccumulatorRawPopulation(t *testing.T) {
	t.Parallel()

	// Population {100, 200, 300, 400}: mean 250, population variance 12500.
	var a stats.Accumulator
	for _, x := range []uint32{100, 200, 300, 400} {
		a.AddRaw(x)
	}

	assert.Equal(t, uint64(4), a.Count())
	assert.InDelta(t, 250, a.Mean(), 1e-12)
	assert.InDelta(t, 12500, a.Variance(), 1e-9)
	assert.Equal(t, uint32(100), a.Min())
	assert.Equal(t, uint32(400), a.Max())
}

func TestAccumulatorPoolsSummaries(t *testing.T) {
	t.Parallel()

	// (n=2, mean=100, var=0) + (n=2, mean=300, var=0) -> mean 200, var 10000.
	var a stats.Accumulator
	a.AddSummary(2, 100, 0, 100, 100)
	a.AddSummary(2, 300, 0, 300, 300)

	assert.Equal(t, uint64(4), a.Count())
	assert.InDelta(t, 200, a.Mean(), 1e-12)
	assert.InDelta(t, 10000, a.Variance(), 1e-9)
	assert.Equal(t, uint32(100), a.Min())
	assert.Equal(t, uint32(300), a.Max())
}

func TestAccumulatorSummaryEquivalentToRaw(t *testing.T) {
	t.Parallel()

	var raw stats.Accumulator
	for _, x := range []uint32{100, 100, 300, 300} {
		raw.AddRaw(x)
	}

	var pooled stats.Accumulator
	pooled.AddSummary(2, 100, 0, 100, 100)
	pooled.AddSummary(2, 300, 0, 300, 300)

	assert.Equal(t, raw.Count(), pooled.Count())
	assert.InDelta(t, raw.Mean(), pooled.Mean(), 1e-9)
	assert.InDelta(t, raw.Variance(), pooled.Variance(), 1e-9)
}

func TestAccumulatorReaggregationStable(t *testing.T) {
	t.Parallel()

	// First pass over the raw population.
	var first stats.Accumulator
	values := []uint32{483, 1290, 2750, 311, 990, 1204, 887, 5021}
	for _, x := range values {
		first.AddRaw(x)
	}

	// Second pass consumes only the first pass's summary.
	var second stats.Accumulator
	second.AddSummary(uint32(first.Count()), first.Mean(), first.Variance(), first.Min(), first.Max())

	require.Equal(t, first.Count(), second.Count())
	assert.Equal(t, first.Mean(), second.Mean())
	// Variance round-trips through one multiply/divide pair; allow 1 ULP.
	assert.InDelta(t, first.Variance(), second.Variance(), 1e-9)
	assert.Equal(t, first.Min(), second.Min())
	assert.Equal(t, first.Max(), second.Max())
}

func TestAccumulatorSplitMergeMatchesWhole(t *testing.T) {
	t.Parallel()

	values := []uint32{10, 20, 30, 40, 50, 60, 70, 80}

	var whole stats.Accumulator
	for _, x := range values {
		whole.AddRaw(x)
	}

	var left, right, merged stats.Accumulator
	for _, x := range values[:4] {
		left.AddRaw(x)
	}
	for _, x := range values[4:] {
		right.AddRaw(x)
	}
	merged.AddSummary(uint32(left.Count()), left.Mean(), left.Variance(), left.Min(), left.Max())
	merged.AddSummary(uint32(right.Count()), right.Mean(), right.Variance(), right.Min(), right.Max())

	assert.Equal(t, whole.Count(), merged.Count())
	assert.InDelta(t, whole.Mean(), merged.Mean(), 1e-9)
	assert.InDelta(t, whole.Variance(), merged.Variance(), 1e-9)
	assert.Equal(t, whole.Min(), merged.Min())
	assert.Equal(t, whole.Max(), merged.Max())
}

func TestAccumulatorEmptyAndSingle(t *testing.T) {
	t.Parallel()

	var empty stats.Accumulator
	assert.Zero(t, empty.Count())
	assert.Zero(t, empty.Mean())
	assert.Zero(t, empty.Variance())

	var one stats.Accumulator
	one.AddRaw(42)
	assert.Equal(t, uint64(1), one.Count())
	assert.Equal(t, float64(42), one.Mean())
	assert.Zero(t, one.Variance())
	assert.Equal(t, uint32(42), one.Min())
	assert.Equal(t, uint32(42), one.Max())
}

func TestAccumulatorIgnoresZeroCount(t *testing.T) {
	t.Parallel()

	var a stats.Accumulator
	a.AddRaw(100)
	a.AddSummary(0, 999, 999, 1, 999)

	assert.Equal(t, uint64(1), a.Count())
	assert.Equal(t, float64(100), a.Mean())
	assert.Equal(t, uint32(100), a.Min())
	assert.Equal(t, uint32(100), a.Max())
}
