// Package numeric holds the small float helpers shared by the forecast
// engines: finite coercion, clamping, fixed-precision rounding and banded
// score lookup.
package numeric

import "math"

// BandEpsilon widens every band edge so that values computed a hair off a
// boundary still land in a band. Adjacent bands overlap by 2*BandEpsilon and
// the first match wins.
const BandEpsilon = 1e-6

// Band maps the closed interval [Min, Max] to Score.
type Band struct {
	Min   float64 `koanf:"min"`
	Max   float64 `koanf:"max"`
	Score float64 `koanf:"score"`
}

// Finite returns x, or 0 when x is NaN or infinite.
func Finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

// Clamp bounds x to [lo, hi]. NaN becomes lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}

// Clamp01 bounds x to [0, 1].
func Clamp01(x float64) float64 { return Clamp(x, 0, 1) }

// Round2 rounds to cents.
func Round2(x float64) float64 { return roundTo(x, 100) }

// Round6 rounds ratios and multipliers.
func Round6(x float64) float64 { return roundTo(x, 1e6) }

func roundTo(x, scale float64) float64 {
	x = Finite(x)
	return math.Round(x*scale) / scale
}

// WholeDays rounds a day count to a non-negative integer.
func WholeDays(x float64) int {
	x = Finite(x)
	if x <= 0 {
		return 0
	}
	return int(math.Round(x))
}

// BandScore returns the score of the first band containing x. Values below
// the first band take its score and values above the last take the last.
// ok is false only when bands is empty.
func BandScore(bands []Band, x float64) (score float64, ok bool) {
	if len(bands) == 0 {
		return 0, false
	}
	for _, b := range bands {
		if x >= b.Min-BandEpsilon && x <= b.Max+BandEpsilon {
			return b.Score, true
		}
	}
	if x < bands[0].Min {
		return bands[0].Score, true
	}
	return bands[len(bands)-1].Score, true
}
