package qadjust

import (
	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/metrics"
)

// Adjustment policy names, persisted in the record.
const (
	ModePercentile = "percentile"
	ModeButter     = "butter"
	ModeCurve      = "curve"
)

// PercentileOptions configures the percentile-match policy.
type PercentileOptions struct {
	// BaseQ is the run's default quantizer, the center of the allowed range.
	BaseQ float64
	// Bound is the half-range: adjusted values stay in [BaseQ-Bound, BaseQ+Bound].
	Bound float64
	// SVTScale halves the denominator, doubling the correction per unit of
	// score deviation. SVT's CRF scale reacts about half as strongly as the
	// other encoders'.
	SVTScale bool

	MinChunkLength int
	KeyInt         int
	AnalysisPreset int
}

// AdjustPercentile corrects each chunk's quantizer from a single analysis
// pass: chunks whose 5th-percentile score falls below the pooled average
// get a lower quantizer in proportion to the shortfall, and vice versa.
// Returns the adjusted chunks sorted by id and the persistable record.
func AdjustPercentile(chunks []chunk.Chunk, scores []metrics.ChunkScore, opts PercentileOptions) ([]chunk.Chunk, *Record) {
	average := metrics.PooledMean(scores)
	byID := make(map[int]metrics.ChunkScore, len(scores))
	for _, s := range scores {
		byID[s.ChunkID] = s
	}

	scale := 10.0
	if opts.SVTScale {
		scale = 20.0
	}

	out := sortedByID(chunks)
	rec := &Record{
		QualityParameters: Params{
			Mode:           ModePercentile,
			AnalysisPreset: opts.AnalysisPreset,
			MinChunkLength: opts.MinChunkLength,
			KeyInt:         opts.KeyInt,
			AverageScore:   average,
		},
	}

	for i := range out {
		if out[i].IsCredits {
			continue
		}
		p5 := byID[out[i].ID].P5

		newQ := opts.BaseQ
		if average > 0 {
			newQ = opts.BaseQ - roundQuarter((1.0-p5/average)*scale)
		}
		newQ = clampQ(newQ, opts.BaseQ-opts.Bound, opts.BaseQ+opts.Bound)

		p5Copy := p5
		rec.Chunks = append(rec.Chunks, ChunkAdjustment{
			ChunkNumber: out[i].ID,
			Length:      out[i].Length,
			Percentile5: &p5Copy,
			AdjustedQ:   newQ,
		})
		out[i].Q = newQ
	}

	rec.WeightedCRF = WeightedCRF(out)
	return out, rec
}
