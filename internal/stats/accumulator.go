// Package stats implements the pooled summary statistics shared by the
// aggregation and query layers.
package stats

// Accumulator merges weighted partial summaries into one population summary.
//
// Each contribution is (n, mean, variance, min, max); a raw observation is
// the degenerate case (1, x, 0, x, x). Pooling follows
//
//	mean_c = (sum n_i mean_i) / N
//	var_c  = (sum n_i [var_i + (mean_i - mean_c)^2]) / N
//
// computed incrementally in the numerically stable merge form, so partial
// results can be combined in any order without a second pass.
type Accumulator struct {
	count uint64
	mean  float64
	m2    float64
	min   uint32
	max   uint32
}

// AddRaw folds in one raw observation.
func (a *Accumulator) AddRaw(latencyMicros uint32) {
	a.AddSummary(1, float64(latencyMicros), 0, latencyMicros, latencyMicros)
}

// AddSummary folds in a partial summary of n observations. Zero-count
// contributions are ignored.
func (a *Accumulator) AddSummary(n uint32, mean, variance float64, min, max uint32) {
	if n == 0 {
		return
	}
	w := float64(n)
	if a.count == 0 {
		a.count = uint64(n)
		a.mean = mean
		a.m2 = w * variance
		a.min = min
		a.max = max
		return
	}
	total := float64(a.count) + w
	delta := mean - a.mean
	a.m2 += w*variance + delta*delta*float64(a.count)*w/total
	a.mean += delta * w / total
	a.count += uint64(n)
	if min < a.min {
		a.min = min
	}
	if max > a.max {
		a.max = max
	}
}

// Count returns the pooled observation count.
func (a *Accumulator) Count() uint64 { return a.count }

// Mean returns the pooled mean, 0 when empty.
func (a *Accumulator) Mean() float64 { return a.mean }

// Variance returns the pooled population variance, 0 when empty.
func (a *Accumulator) Variance() float64 {
	if a.count == 0 {
		return 0
	}
	v := a.m2 / float64(a.count)
	if v < 0 {
		// Guard against a tiny negative residue from float cancellation.
		return 0
	}
	return v
}

// Min returns the smallest pooled observation, 0 when empty.
func (a *Accumulator) Min() uint32 { return a.min }

// Max returns the largest pooled observation, 0 when empty.
func (a *Accumulator) Max() uint32 { return a.max }
