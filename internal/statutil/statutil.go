// Package statutil holds the small outlier-filtering and descriptive
// statistics shared by the RPS Probe and Incentives Engine (spec
// §4.3/§4.4): IQR fences, MAD, z-score. No statistics library appears
// anywhere in the reference corpus, so this stays on math/sort.
package statutil

import (
	"math"
	"sort"
)

// Quartiles returns Q1 and Q3 of xs using linear interpolation.
func Quartiles(xs []float64) (q1, q3 float64) {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.25), percentile(sorted, 0.75)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// IQRFilterAdaptive removes outliers using an IQR fence whose lower
// multiplier is chosen from the data itself (Q1/IQR, spec §4.3) and
// an upper multiplier fixed at 1.5.
func IQRFilterAdaptive(xs []float64) []float64 {
	if len(xs) < 4 {
		return xs
	}
	q1, q3 := Quartiles(xs)
	iqr := q3 - q1
	if iqr == 0 {
		return xs
	}
	lowerMult := q1 / iqr
	lowerFence := q1 - lowerMult*iqr
	upperFence := q3 + 1.5*iqr
	return fence(xs, lowerFence, upperFence)
}

// IQRFilterFixed is the conventional 1.5/1.5-fence IQR filter used by
// the Incentives Engine's "otherwise" branch (spec §4.4) when a
// per-peer RPS sample set has ≥ 30 members.
func IQRFilterFixed(xs []float64) []float64 {
	if len(xs) < 4 {
		return xs
	}
	q1, q3 := Quartiles(xs)
	iqr := q3 - q1
	if iqr == 0 {
		return xs
	}
	lowerFence := q1 - 1.5*iqr
	upperFence := q3 + 1.5*iqr
	return fence(xs, lowerFence, upperFence)
}

func fence(xs []float64, lower, upper float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if x >= lower && x <= upper {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return xs
	}
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation around mean m.
func StdDev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// MedianAbsoluteDeviation returns the median and MAD of xs, spec
// §4.4's "MAD for < 10 samples".
func MedianAbsoluteDeviation(xs []float64) (median, mad float64) {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	median = medianOf(sorted)

	devs := make([]float64, len(sorted))
	for i, x := range sorted {
		devs[i] = math.Abs(x - median)
	}
	sort.Float64s(devs)
	mad = medianOf(devs)
	return median, mad
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
