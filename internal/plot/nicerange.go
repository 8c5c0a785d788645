package plot

import "math"

// axisRange is a widened [Min, Max] whose bounds sit on Step multiples.
type axisRange struct {
	Min, Max, Step float64
}

// intervals is the number of Step-wide segments between Min and Max.
func (r axisRange) intervals() int {
	return int(math.Round((r.Max - r.Min) / r.Step))
}

// ticks returns the positions Min, Min+Step, ..., Max.
func (r axisRange) ticks() []float64 {
	n := r.intervals()
	out := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, r.Min+float64(i)*r.Step)
	}
	return out
}

// niceRange widens [min, max] outward to multiples of a step picked from
// 1x, 2x, 5x and 10x of 10^(floor(log10(span))-1). The winning step yields
// the interval count closest to eight; ties go to the coarser step.
func niceRange(min, max float64) axisRange {
	if !(max > min) {
		max = min + 1
	}
	base := math.Pow(10, math.Floor(math.Log10(max-min))-1)
	var best axisRange
	bestDist := math.MaxInt32
	for _, mult := range []float64{1, 2, 5, 10} {
		step := mult * base
		lo := math.Floor(min/step+1e-9) * step
		hi := math.Ceil(max/step-1e-9) * step
		cand := axisRange{Min: lo, Max: hi, Step: step}
		d := cand.intervals() - 8
		if d < 0 {
			d = -d
		}
		if d <= bestDist {
			best, bestDist = cand, d
		}
	}
	return best
}

// logRange widens [min, max] to the surrounding powers of ten. Non-positive
// bounds are clamped first; a log axis cannot show zero.
func logRange(min, max float64) (float64, float64) {
	if min <= 0 {
		min = logFloor
	}
	if max <= min {
		max = min * 10
	}
	lo := math.Pow(10, math.Floor(math.Log10(min)+1e-9))
	hi := math.Pow(10, math.Ceil(math.Log10(max)-1e-9))
	return lo, hi
}
