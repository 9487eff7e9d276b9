package qadjust

import (
	"math"
	"sort"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/errors"
	"github.com/chunkwise/chunkwise/internal/metrics"
)

// probeSpreadExponent biases the probe quantizers toward the low end of
// the range, where the score curve bends fastest.
const probeSpreadExponent = 1.4

// CurvePoint is one probed (quantizer, score) observation.
type CurvePoint struct {
	Quantizer float64
	Score     float64
}

// CurveOptions configures the multi-probe curve policy.
type CurveOptions struct {
	// Target is the score every chunk should land on.
	Target float64
	// AnalysisQ is the global quantizer solved from the probe curve, at
	// which the full analysis pass ran. Per-chunk corrections are deltas
	// from it.
	AnalysisQ float64
	// MinQ and MaxQ bound the adjusted quantizer.
	MinQ float64
	MaxQ float64
	// MinLuma and MaxLuma bound the damping ramp: raises are fully
	// suppressed at or below MinLuma and fully trusted at or above MaxLuma.
	MinLuma float64
	MaxLuma float64
	// PQ selects the logarithmic ramp for PQ-transfer content, which needs
	// steeper protection near black than SDR.
	PQ bool

	MinChunkLength int
	KeyInt         int
	AnalysisPreset int
}

// sdrRampExponent shapes the SDR damping ramp. Values above 1 keep the
// ramp flat near the low-luma end, extending dark-scene protection.
const sdrRampExponent = 2.0

// ProbeQuantizers returns count quantizers spanning [minQ, maxQ), spaced
// by a power warp of a uniform sweep so the low end is sampled densest.
// Each value is rounded to a quarter step.
func ProbeQuantizers(minQ, maxQ float64, count int) []float64 {
	if count < 2 {
		count = 2
	}
	out := make([]float64, count)
	for i := range out {
		u := float64(i) / float64(count)
		out[i] = roundQuarter(minQ + (maxQ-minQ)*math.Pow(u, probeSpreadExponent))
	}
	return out
}

// SolveTargetQuantizer inverts the probe curve at the target score. Inside
// the probed score range the bracketing segment is interpolated; outside
// it the nearest edge segment is extended. At least two points with
// distinct scores are required.
func SolveTargetQuantizer(points []CurvePoint, target float64) (float64, error) {
	if len(points) < 2 {
		return 0, errors.NewAnalysisError("probe curve needs at least two points")
	}
	pts := make([]CurvePoint, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Quantizer < pts[j].Quantizer })

	for i := 0; i < len(pts)-1; i++ {
		lo, hi := pts[i].Score, pts[i+1].Score
		if lo > hi {
			lo, hi = hi, lo
		}
		if target >= lo && target <= hi {
			return lerpQuantizer(pts[i], pts[i+1], target)
		}
	}

	// Out of probed range: extend whichever edge segment is nearer the
	// target in score.
	first, last := edgeSegments(pts)
	if nearerToEdge(pts, target) {
		return lerpQuantizer(first[0], first[1], target)
	}
	return lerpQuantizer(last[0], last[1], target)
}

func edgeSegments(pts []CurvePoint) (first, last [2]CurvePoint) {
	first = [2]CurvePoint{pts[0], pts[1]}
	last = [2]CurvePoint{pts[len(pts)-2], pts[len(pts)-1]}
	return first, last
}

func nearerToEdge(pts []CurvePoint, target float64) bool {
	dFirst := math.Abs(target - pts[0].Score)
	dLast := math.Abs(target - pts[len(pts)-1].Score)
	return dFirst < dLast
}

func lerpQuantizer(a, b CurvePoint, target float64) (float64, error) {
	if b.Score == a.Score {
		return 0, errors.NewAnalysisError("probe curve is flat, cannot solve for target")
	}
	t := (target - a.Score) / (b.Score - a.Score)
	return a.Quantizer + t*(b.Quantizer-a.Quantizer), nil
}

// SlopeAt returns dScore/dQuantizer of the segment bracketing q, or the
// nearest edge segment when q lies outside the probed range.
func SlopeAt(points []CurvePoint, q float64) (float64, error) {
	if len(points) < 2 {
		return 0, errors.NewAnalysisError("probe curve needs at least two points")
	}
	pts := make([]CurvePoint, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Quantizer < pts[j].Quantizer })

	seg := [2]CurvePoint{pts[len(pts)-2], pts[len(pts)-1]}
	if q < pts[0].Quantizer {
		seg = [2]CurvePoint{pts[0], pts[1]}
	} else {
		for i := 0; i < len(pts)-1; i++ {
			if q >= pts[i].Quantizer && q <= pts[i+1].Quantizer {
				seg = [2]CurvePoint{pts[i], pts[i+1]}
				break
			}
		}
	}
	dq := seg[1].Quantizer - seg[0].Quantizer
	if dq == 0 {
		return 0, errors.NewAnalysisError("probe curve has duplicate quantizers")
	}
	slope := (seg[1].Score - seg[0].Score) / dq
	if slope == 0 {
		return 0, errors.NewAnalysisError("probe curve is flat, cannot estimate slope")
	}
	return slope, nil
}

// LumaScale maps a chunk's average luma onto [0, 1]: the fraction of a
// proposed quantizer raise to keep. Dark chunks show compression
// artifacts first, so raises there are suppressed.
func LumaScale(avgLuma float64, opts CurveOptions) float64 {
	if avgLuma <= opts.MinLuma {
		return 0
	}
	if avgLuma >= opts.MaxLuma {
		return 1
	}
	if opts.PQ {
		return math.Log(avgLuma/opts.MinLuma) / math.Log(opts.MaxLuma/opts.MinLuma)
	}
	t := (avgLuma - opts.MinLuma) / (opts.MaxLuma - opts.MinLuma)
	return math.Pow(t, sdrRampExponent)
}

// AdjustCurve corrects each chunk's quantizer from the full analysis pass
// at AnalysisQ, using the probe curve's local slope to convert score error
// into a quantizer delta. Raises are damped by the chunk's average luma;
// lowers are applied in full. Returns the adjusted chunks sorted by id and
// the persistable record.
func AdjustCurve(chunks []chunk.Chunk, scores []metrics.ChunkScore, points []CurvePoint, opts CurveOptions) ([]chunk.Chunk, *Record, error) {
	slope, err := SlopeAt(points, opts.AnalysisQ)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[int]metrics.ChunkScore, len(scores))
	for _, s := range scores {
		byID[s.ChunkID] = s
	}

	out := sortedByID(chunks)
	rec := &Record{
		QualityParameters: Params{
			Mode:           ModeCurve,
			AnalysisPreset: opts.AnalysisPreset,
			MinChunkLength: opts.MinChunkLength,
			KeyInt:         opts.KeyInt,
			Target:         opts.Target,
		},
	}

	for i := range out {
		if out[i].IsCredits {
			continue
		}
		score := byID[out[i].ID]

		deltaQ := -(score.Mean - opts.Target) / slope
		if deltaQ > 0 {
			deltaQ *= LumaScale(score.AverageLuma, opts)
		}

		newQ := clampQ(roundQuarter(opts.AnalysisQ+deltaQ), opts.MinQ, opts.MaxQ)

		meanCopy, lumaCopy := score.Mean, score.AverageLuma
		rec.Chunks = append(rec.Chunks, ChunkAdjustment{
			ChunkNumber: out[i].ID,
			Length:      out[i].Length,
			Score:       &meanCopy,
			AverageLuma: &lumaCopy,
			AdjustedQ:   newQ,
		})
		out[i].Q = newQ
	}

	rec.WeightedCRF = WeightedCRF(out)
	return out, rec, nil
}
