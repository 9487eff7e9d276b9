// Package qadjust converts per-chunk metric scores from one or more
// analysis passes into corrected per-chunk quantizers. Three policies are
// available: percentile match against the pooled average, a two-pass
// linear fit over the quantization-step scale, and a multi-probe curve
// with luma-aware damping.
package qadjust

import (
	"math"
	"sort"

	"github.com/chunkwise/chunkwise/internal/chunk"
)

// roundQuarter rounds to the nearest quarter step.
func roundQuarter(v float64) float64 {
	return math.Round(v*4) / 4
}

// ceilQuarter rounds up to the next quarter step.
func ceilQuarter(v float64) float64 {
	return math.Ceil(v*4) / 4
}

func clampQ(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WeightedCRF returns the length-weighted mean quantizer over non-credits
// chunks, rounded to two decimals. Credits chunks use a fixed quantizer
// policy and are excluded from the average.
func WeightedCRF(chunks []chunk.Chunk) float64 {
	var weightedSum float64
	var totalLength int
	for _, ch := range chunks {
		if ch.IsCredits {
			continue
		}
		weightedSum += ch.Q * float64(ch.Length)
		totalLength += ch.Length
	}
	if totalLength == 0 {
		return 0
	}
	return math.Round(weightedSum/float64(totalLength)*100) / 100
}

// sortedByID returns a copy of chunks ordered by id, so adjustment output
// is independent of the scheduler's completion order.
func sortedByID(chunks []chunk.Chunk) []chunk.Chunk {
	out := make([]chunk.Chunk, len(chunks))
	copy(out, chunks)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
