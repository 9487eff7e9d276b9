// Package metrics provides perceptual metric aggregation and the bounded
// evaluation pool that scores encoded chunks against the source.
package metrics

import (
	"math"
	"sort"
)

// FilterSamples drops sentinel values. Metric engines report unscored frames
// as negative numbers; those never enter an aggregate.
func FilterSamples(samples []float64) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s >= 0 {
			out = append(out, s)
		}
	}
	return out
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// Percentile returns the p-th percentile using linear interpolation between
// the two nearest ranks, matching the numpy default used by the analysis
// tooling this format originated from. Returns 0 for an empty slice.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// CubeMean returns mean(samples^3)^(1/3). Distortion metrics are dominated by
// worst-case excursions, so outliers are weighted more heavily than an
// arithmetic mean would.
func CubeMean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s * s
	}
	return math.Cbrt(sum / float64(len(samples)))
}
