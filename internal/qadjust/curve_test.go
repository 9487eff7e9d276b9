package qadjust

import (
	"math"
	"testing"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/metrics"
)

func curveOpts() CurveOptions {
	return CurveOptions{
		Target:    9.0,
		AnalysisQ: 28,
		MinQ:      10,
		MaxQ:      50,
		MinLuma:   16,
		MaxLuma:   96,
	}
}

// testCurve is monotone decreasing: quality drops as the quantizer rises.
func testCurve() []CurvePoint {
	return []CurvePoint{
		{Quantizer: 16, Score: 9.6},
		{Quantizer: 24, Score: 9.2},
		{Quantizer: 32, Score: 8.8},
		{Quantizer: 40, Score: 8.2},
	}
}

func TestProbeQuantizers(t *testing.T) {
	qs := ProbeQuantizers(16, 48, 6)
	if len(qs) != 6 {
		t.Fatalf("got %d probes, want 6", len(qs))
	}
	if qs[0] != 16 {
		t.Errorf("first probe = %v, want the range minimum", qs[0])
	}
	for i := 1; i < len(qs); i++ {
		if qs[i] <= qs[i-1] {
			t.Errorf("probes not strictly increasing: %v", qs)
		}
		if qs[i] >= 48 {
			t.Errorf("probe %v reaches the range maximum", qs[i])
		}
	}
	// The power warp packs the low end denser than the high end.
	if qs[1]-qs[0] >= qs[5]-qs[4] {
		t.Errorf("expected denser sampling at the low end: %v", qs)
	}
	for _, q := range qs {
		if q != roundQuarter(q) {
			t.Errorf("probe %v is not quarter-aligned", q)
		}
	}
}

func TestSolveTargetQuantizer(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		want   float64
	}{
		{"interior segment", 9.0, 28},
		{"exact point", 9.2, 24},
		{"extrapolate high quality", 9.8, 12},
		{"extrapolate low quality", 8.0, 42.666666666666664},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SolveTargetQuantizer(testCurve(), tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("solved q = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSolveTargetQuantizerDegenerate(t *testing.T) {
	if _, err := SolveTargetQuantizer([]CurvePoint{{Quantizer: 20, Score: 9}}, 9); err == nil {
		t.Error("expected error for single-point curve")
	}
	flat := []CurvePoint{{Quantizer: 20, Score: 9}, {Quantizer: 30, Score: 9}}
	if _, err := SolveTargetQuantizer(flat, 8); err == nil {
		t.Error("expected error for flat curve")
	}
}

func TestSlopeAt(t *testing.T) {
	pts := testCurve()
	// Interior: segment [24, 32] has slope (8.8-9.2)/8 = -0.05.
	got, err := SlopeAt(pts, 28)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-(-0.05)) > 1e-12 {
		t.Errorf("slope = %v, want -0.05", got)
	}
	// Past the last point: the last segment's slope, (8.2-8.8)/8.
	got, err = SlopeAt(pts, 45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-(-0.075)) > 1e-12 {
		t.Errorf("edge slope = %v, want -0.075", got)
	}
}

func TestLumaScaleRamps(t *testing.T) {
	opts := curveOpts()
	if got := LumaScale(10, opts); got != 0 {
		t.Errorf("below minimum: scale = %v, want 0", got)
	}
	if got := LumaScale(16, opts); got != 0 {
		t.Errorf("at minimum: scale = %v, want 0", got)
	}
	if got := LumaScale(200, opts); got != 1 {
		t.Errorf("above maximum: scale = %v, want 1", got)
	}

	mid := LumaScale(56, opts)
	if mid <= 0 || mid >= 1 {
		t.Errorf("mid-range SDR scale = %v, want within (0, 1)", mid)
	}
	// SDR power ramp: ((56-16)/80)^2 = 0.25.
	if math.Abs(mid-0.25) > 1e-12 {
		t.Errorf("SDR ramp at 56 = %v, want 0.25", mid)
	}

	opts.PQ = true
	pqMid := LumaScale(56, opts)
	if pqMid <= 0 || pqMid >= 1 {
		t.Errorf("mid-range PQ scale = %v, want within (0, 1)", pqMid)
	}
	// The log ramp rises faster than the power ramp away from black.
	if pqMid <= mid {
		t.Errorf("PQ ramp %v should exceed SDR ramp %v at mid luma", pqMid, mid)
	}
}

func TestAdjustCurveDampingAsymmetry(t *testing.T) {
	// Slope at analysis q 28 is -0.05. Chunk 1 scores above target, so its
	// quantizer raises; at minimum luma the raise must be fully
	// suppressed. Chunk 2 scores below target, so its quantizer lowers;
	// lowering is never damped, even at the same dark luma.
	chunks := []chunk.Chunk{
		{ID: 1, Length: 500, Q: 28},
		{ID: 2, Length: 500, Q: 28},
	}
	scores := []metrics.ChunkScore{
		{ChunkID: 1, Mean: 9.4, AverageLuma: 10},
		{ChunkID: 2, Mean: 8.6, AverageLuma: 10},
	}

	adjusted, _, err := AdjustCurve(chunks, scores, testCurve(), curveOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adjusted[0].Q != 28 {
		t.Errorf("dark raised chunk q = %v, want unraised 28", adjusted[0].Q)
	}
	// deltaQ = -(8.6-9.0)/-0.05 = -8, applied in full.
	if adjusted[1].Q != 20 {
		t.Errorf("lowered chunk q = %v, want 20", adjusted[1].Q)
	}
}

func TestAdjustCurveBrightRaise(t *testing.T) {
	// Bright chunk above target: deltaQ = -(9.4-9.0)/-0.05 = +8, fully
	// trusted at high luma.
	chunks := []chunk.Chunk{{ID: 1, Length: 500, Q: 28}}
	scores := []metrics.ChunkScore{{ChunkID: 1, Mean: 9.4, AverageLuma: 200}}

	adjusted, _, err := AdjustCurve(chunks, scores, testCurve(), curveOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adjusted[0].Q != 36 {
		t.Errorf("bright raised chunk q = %v, want 36", adjusted[0].Q)
	}
}

func TestAdjustCurveBounds(t *testing.T) {
	opts := curveOpts()
	opts.MaxQ = 30
	chunks := []chunk.Chunk{{ID: 1, Length: 500, Q: 28}}
	scores := []metrics.ChunkScore{{ChunkID: 1, Mean: 9.4, AverageLuma: 200}}

	adjusted, _, err := AdjustCurve(chunks, scores, testCurve(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adjusted[0].Q != 30 {
		t.Errorf("adjusted q = %v, want MaxQ 30", adjusted[0].Q)
	}
}

func TestAdjustCurveSkipsCredits(t *testing.T) {
	chunks := []chunk.Chunk{
		{ID: 1, Length: 900, Q: 28},
		{ID: 2, Length: 100, IsCredits: true, Q: 38},
	}
	scores := []metrics.ChunkScore{{ChunkID: 1, Mean: 9.0, AverageLuma: 120}}

	adjusted, rec, err := AdjustCurve(chunks, scores, testCurve(), curveOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adjusted[1].Q != 38 {
		t.Errorf("credits q changed to %v", adjusted[1].Q)
	}
	if len(rec.Chunks) != 1 {
		t.Errorf("record has %d entries, want 1", len(rec.Chunks))
	}
}
