package qadjust

import (
	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/logging"
	"github.com/chunkwise/chunkwise/internal/metrics"
)

// Pass1ReferenceQ is the fixed quantizer for the first analysis pass. It
// sits near the middle of the usable CRF range so the second point can be
// placed on either side of it.
const Pass1ReferenceQ = 24.0

// Pass-2 reference quantizers. A chunk that already beats the target at
// the pass-1 reference gets re-encoded harsher to bracket the target from
// above; one that misses it gets a lighter second point.
const (
	pass2HarshQ = 33.0
	pass2LightQ = 10.5
)

// Quantization-step values for the fixed reference quantizers. The pairs
// are the (pass1, pass2) points the per-chunk line is fitted through.
const (
	qstepPass1      = 343 // 24.0
	qstepPass2Harsh = 592 // 33.0
	qstepPass2Light = 155 // 10.5
)

// dampingStart is the step value above which solved steps are pulled back
// toward the fit. The linear model overshoots at high steps, more so the
// faster the analysis preset.
const dampingStart = 163

// dcQStep maps quantizer (in quarter steps: index = CRF * 4) to the AV1
// DC quantization step. Solved step values are converted back to CRF by
// inverse interpolation into this table.
var dcQStep = []float64{
	4, 9, 10, 13, 15, 17, 20, 22, 25, 28, 31, 34, 37, 40, 43, 47, 50, 53,
	57, 60, 64, 68, 71, 75, 78, 82, 86, 90, 93, 97, 101, 105, 109, 113,
	116, 120, 124, 128, 132, 136, 140, 143, 147, 151, 155, 159, 163, 166,
	170, 174, 178, 182, 185, 189, 193, 197, 200, 204, 208, 212, 215, 219,
	223, 226, 230, 233, 237, 241, 244, 248, 251, 255, 259, 262, 266, 269,
	273, 276, 280, 283, 287, 290, 293, 297, 300, 304, 307, 310, 314, 317,
	321, 324, 327, 331, 334, 337, 343, 350, 356, 362, 369, 375, 381, 387,
	394, 400, 406, 412, 418, 424, 430, 436, 442, 448, 454, 460, 466, 472,
	478, 484, 490, 499, 507, 516, 525, 533, 542, 550, 559, 567, 576, 584,
	592, 601, 609, 617, 625, 634, 644, 655, 666, 676, 687, 698, 708, 718,
	729, 739, 749, 759, 770, 782, 795, 807, 819, 831, 844, 856, 868, 880,
	891, 906, 920, 933, 947, 961, 975, 988, 1001, 1015, 1030, 1045, 1061,
	1076, 1090, 1105, 1120, 1137, 1153, 1170, 1186, 1202, 1218, 1236,
	1253, 1271, 1288, 1306, 1323, 1342, 1361, 1379, 1398, 1416, 1436,
	1456, 1476, 1496, 1516, 1537, 1559, 1580, 1601, 1624, 1647, 1670,
	1692, 1717, 1741, 1766, 1791, 1817, 1844, 1871, 1900, 1929, 1958,
	1990, 2021, 2054, 2088, 2123, 2159, 2197, 2236, 2276, 2319, 2363,
	2410, 2458, 2508, 2561, 2616, 2675, 2737, 2802, 2871, 2944, 3020,
	3102, 3188, 3280, 3375, 3478, 3586, 3702, 3823, 3953, 4089, 4236,
	4394, 4559, 4737, 4929, 5130, 5347,
}

// ButterOptions configures the two-pass linear-fit policy.
type ButterOptions struct {
	// Target is the aggregate score every chunk should land on.
	Target float64
	// DefaultQ is the run's default quantizer, used when a chunk's fit is
	// ill-conditioned.
	DefaultQ float64
	// AnalysisPreset and FinalPreset select the high-step damping factor:
	// the analysis encode measures a faster preset than the final one, and
	// the wider that gap the more the solved step overshoots.
	AnalysisPreset int
	FinalPreset    int
	// MinQ and MaxQ bound the adjusted quantizer.
	MinQ float64
	MaxQ float64

	MinChunkLength int
	KeyInt         int
}

// Pass2ReferenceQ selects the second reference quantizer for a chunk from
// its pass-1 aggregate score.
func Pass2ReferenceQ(pass1Score, target float64) float64 {
	if pass1Score < target {
		return pass2HarshQ
	}
	return pass2LightQ
}

// AdjustButter fits a line through the two (score, qstep) points measured
// for each chunk and solves it at the target score. Chunks enter with
// their quantizer set to the pass-2 reference used for them. Returns the
// adjusted chunks sorted by id and the persistable record.
func AdjustButter(chunks []chunk.Chunk, pass1, pass2 []metrics.ChunkScore, opts ButterOptions) ([]chunk.Chunk, *Record) {
	score1 := make(map[int]float64, len(pass1))
	for _, s := range pass1 {
		score1[s.ChunkID] = s.CubeMean
	}
	score2 := make(map[int]float64, len(pass2))
	for _, s := range pass2 {
		score2[s.ChunkID] = s.CubeMean
	}

	out := sortedByID(chunks)
	rec := &Record{
		QualityParameters: Params{
			Mode:           ModeButter,
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
		s1 := score1[out[i].ID]
		s2 := score2[out[i].ID]
		pass2Ref := out[i].Q

		var newQ float64
		switch {
		case pass2Ref > Pass1ReferenceQ && s2 <= s1:
			// The harsher second encode did not score worse than the first.
			// The fit would extrapolate nonsense, so keep the run default.
			newQ = opts.DefaultQ
			logging.Warn("fallback quantizer used", "chunk", out[i].ID, "q", opts.DefaultQ)
		case pass2Ref > Pass1ReferenceQ:
			newQ = solveButter(s1, s2, qstepPass1, qstepPass2Harsh, opts)
		default:
			newQ = solveButter(s1, s2, qstepPass1, qstepPass2Light, opts)
		}

		s1Copy, s2Copy, refCopy := s1, s2, pass2Ref
		rec.Chunks = append(rec.Chunks, ChunkAdjustment{
			ChunkNumber: out[i].ID,
			Length:      out[i].Length,
			CRFPass2:    &refCopy,
			ScorePass1:  &s1Copy,
			ScorePass2:  &s2Copy,
			AdjustedQ:   newQ,
		})
		out[i].Q = newQ
	}

	rec.WeightedCRF = WeightedCRF(out)
	return out, rec
}

// solveButter fits qstep as a linear function of score through the two
// measured points, evaluates it at the target, damps high steps, and maps
// the step back to a quantizer.
func solveButter(score1, score2, qstep1, qstep2 float64, opts ButterOptions) float64 {
	if score2 == score1 {
		// Flat line: no usable slope.
		return opts.DefaultQ
	}
	slope := (qstep2 - qstep1) / (score2 - score1)
	qstep := qstep1 + slope*(opts.Target-score1)

	if qstep > dampingStart {
		if factor, ok := dampingFactor(opts.AnalysisPreset, opts.FinalPreset); ok {
			qstep = (qstep-dampingStart)*factor + dampingStart
		}
	}

	crf := interpIndex(qstep, dcQStep) / 4
	crf = clampQ(crf, opts.MinQ, opts.MaxQ)
	return ceilQuarter(crf)
}

// dampingFactor returns the high-step correction for the preset pair. The
// thresholds are checked slowest-first against the final preset; the first
// one at or above it wins.
func dampingFactor(analysisPreset, finalPreset int) (float64, bool) {
	type rule struct {
		threshold int
		factor    float64
	}
	var rules []rule
	switch {
	case analysisPreset >= 6:
		rules = []rule{{-1, 0.72}, {0, 0.73}, {2, 0.76}, {5, 0.84}}
	case analysisPreset >= 5:
		rules = []rule{{-1, 0.82}, {0, 0.83}, {2, 0.86}}
	case analysisPreset >= 3:
		rules = []rule{{-1, 0.90}, {0, 0.91}, {2, 0.94}}
	default:
		return 0, false
	}
	for _, r := range rules {
		if finalPreset <= r.threshold {
			return r.factor, true
		}
	}
	return 0, false
}

// interpIndex returns the fractional index of v in the ascending table,
// linearly interpolated between neighbors and clamped at the ends.
func interpIndex(v float64, table []float64) float64 {
	if v <= table[0] {
		return 0
	}
	last := len(table) - 1
	if v >= table[last] {
		return float64(last)
	}
	lo, hi := 0, last
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if table[mid] <= v {
			lo = mid
		} else {
			hi = mid
		}
	}
	return float64(lo) + (v-table[lo])/(table[hi]-table[lo])
}
