// Package fixedpoint converts between float64 and the unsigned fixed-point
// encodings used on the worker upload wire.
package fixedpoint

import "math"

// U24_8 encodes v as unsigned 24.8 fixed point (8 fraction bits), rounding
// to nearest and saturating at the representable range.
func U24_8(v float64) uint32 {
	return uint32(clamp(math.Round(v*256), 0, math.MaxUint32))
}

// FromU24_8 decodes unsigned 24.8 fixed point.
func FromU24_8(raw uint32) float64 { return float64(raw) / 256 }

// U4_12 encodes v as unsigned 4.12 fixed point (12 fraction bits). Values
// above 1.0 are representable up to just under 16.
func U4_12(v float64) uint16 {
	return uint16(clamp(math.Round(v*4096), 0, math.MaxUint16))
}

// FromU4_12 decodes unsigned 4.12 fixed point.
func FromU4_12(raw uint16) float64 { return float64(raw) / 4096 }

// U0_16 encodes a fraction in [0,1) as unsigned 0.16 fixed point. 1.0 and
// above saturate to the largest representable value.
func U0_16(v float64) uint16 {
	return uint16(clamp(math.Round(v*65536), 0, math.MaxUint16))
}

// FromU0_16 decodes unsigned 0.16 fixed point.
func FromU0_16(raw uint16) float64 { return float64(raw) / 65536 }

func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
