package qadjust

import (
	"sort"

	"github.com/chunkwise/chunkwise/internal/chunk"
)

// distributionRange limits the histogram to this many quantizer values on
// each side of the median.
const distributionRange = 5

// QShare is one quantizer's share of the total non-credits runtime.
type QShare struct {
	Q     float64
	Share float64
}

// QDistribution summarizes how the adjusted quantizers spread across the
// source, for display after an adjustment run.
type QDistribution struct {
	MedianQ     float64
	WeightedCRF float64
	// Shares holds up to distributionRange values above and below the
	// median plus the median itself, highest quantizer first.
	Shares []QShare
}

// Distribute buckets the non-credits chunks by quantizer and returns the
// length-weighted share per value, windowed around the median.
func Distribute(chunks []chunk.Chunk) QDistribution {
	var qs []float64
	lengthByQ := make(map[float64]int)
	totalLength := 0
	for _, ch := range chunks {
		if ch.IsCredits {
			continue
		}
		qs = append(qs, ch.Q)
		lengthByQ[ch.Q] += ch.Length
		totalLength += ch.Length
	}
	if totalLength == 0 {
		return QDistribution{}
	}

	median := medianOf(qs)
	if _, ok := lengthByQ[median]; !ok {
		// The median of an even count can land between two buckets: snap
		// to the next higher present value, else the closest lower one.
		median = snapToBucket(median, lengthByQ)
	}

	var higher, lower []QShare
	for q, length := range lengthByQ {
		share := QShare{Q: q, Share: float64(length) / float64(totalLength)}
		switch {
		case q > median:
			higher = append(higher, share)
		case q < median:
			lower = append(lower, share)
		}
	}
	higher = nearestWindow(higher, median)
	lower = nearestWindow(lower, median)

	shares := append(higher, QShare{Q: median, Share: float64(lengthByQ[median]) / float64(totalLength)})
	shares = append(shares, lower...)

	return QDistribution{
		MedianQ:     median,
		WeightedCRF: WeightedCRF(chunks),
		Shares:      shares,
	}
}

func medianOf(qs []float64) float64 {
	sorted := make([]float64, len(qs))
	copy(sorted, qs)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func snapToBucket(median float64, lengthByQ map[float64]int) float64 {
	var higher, lower []float64
	for q := range lengthByQ {
		if q > median {
			higher = append(higher, q)
		} else {
			lower = append(lower, q)
		}
	}
	if len(higher) > 0 {
		sort.Float64s(higher)
		return higher[0]
	}
	sort.Float64s(lower)
	return lower[len(lower)-1]
}

// nearestWindow keeps the distributionRange values closest to the median
// and orders them highest quantizer first.
func nearestWindow(shares []QShare, median float64) []QShare {
	sort.Slice(shares, func(i, j int) bool {
		di := shares[i].Q - median
		dj := shares[j].Q - median
		if di < 0 {
			di = -di
		}
		if dj < 0 {
			dj = -dj
		}
		return di < dj
	})
	if len(shares) > distributionRange {
		shares = shares[:distributionRange]
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Q > shares[j].Q })
	return shares
}
