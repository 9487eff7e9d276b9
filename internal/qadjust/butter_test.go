package qadjust

import (
	"math"
	"testing"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/metrics"
)

func butterOpts() ButterOptions {
	return ButterOptions{
		Target:         3.0,
		DefaultQ:       24.0,
		AnalysisPreset: 8,
		FinalPreset:    2,
		MinQ:           10,
		MaxQ:           50,
	}
}

func TestPass2ReferenceQ(t *testing.T) {
	if got := Pass2ReferenceQ(1.2, 1.4); got != 33.0 {
		t.Errorf("below-target chunk: pass-2 ref = %v, want 33.0", got)
	}
	if got := Pass2ReferenceQ(1.6, 1.4); got != 10.5 {
		t.Errorf("above-target chunk: pass-2 ref = %v, want 10.5", got)
	}
}

func TestAdjustButterFallback(t *testing.T) {
	// The harsher pass-2 encode scored better than pass 1: the fit is
	// non-monotonic, so the chunk must get the run default exactly.
	chunks := []chunk.Chunk{{ID: 1, Length: 500, Q: 33.0}}
	pass1 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 2.5}}
	pass2 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 2.0}}

	adjusted, _ := AdjustButter(chunks, pass1, pass2, butterOpts())
	if adjusted[0].Q != 24.0 {
		t.Errorf("adjusted q = %v, want default 24.0", adjusted[0].Q)
	}
}

func TestAdjustButterHarshFit(t *testing.T) {
	// Fit through (2.0, 343) and (4.0, 592), solved at target 3.0:
	// qstep 467.5. High-step damping with analysis preset 8 and final
	// preset 2 uses factor 0.76: (467.5-163)*0.76+163 = 394.42. The step
	// table brackets that between 394 (index 104) and 400 (index 105), so
	// the fractional index is 104.07, CRF 26.0175, ceiled to 26.25.
	chunks := []chunk.Chunk{{ID: 1, Length: 500, Q: 33.0}}
	pass1 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 2.0}}
	pass2 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 4.0}}

	adjusted, rec := AdjustButter(chunks, pass1, pass2, butterOpts())
	if adjusted[0].Q != 26.25 {
		t.Errorf("adjusted q = %v, want 26.25", adjusted[0].Q)
	}
	if rec.Chunks[0].CRFPass2 == nil || *rec.Chunks[0].CRFPass2 != 33.0 {
		t.Errorf("record pass-2 ref = %+v, want 33.0", rec.Chunks[0].CRFPass2)
	}
}

func TestAdjustButterLightFit(t *testing.T) {
	// Chunk scored above target at pass 1, so pass 2 ran lighter (10.5)
	// and the fit uses the (343, 155) step pair. Pass-2 scoring better
	// than pass 1 is the expected monotonic shape here, not a fallback.
	chunks := []chunk.Chunk{{ID: 1, Length: 500, Q: 10.5}}
	pass1 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 3.4}}
	pass2 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 2.6}}

	adjusted, _ := AdjustButter(chunks, pass1, pass2, butterOpts())
	// Fit through (3.4, 343) and (2.6, 155): slope 235, qstep at 3.0 is
	// 249. Damped with factor 0.76 to 228.36, which interps between 226
	// (index 63) and 230 (index 64): index 63.59, CRF 15.90, ceiled to 16.
	if adjusted[0].Q != 16.0 {
		t.Errorf("adjusted q = %v, want 16.0", adjusted[0].Q)
	}
}

func TestAdjustButterBounds(t *testing.T) {
	// A target far below both scores solves to a tiny step; the result
	// must clamp to MinQ. The symmetric case clamps to MaxQ.
	opts := butterOpts()

	chunks := []chunk.Chunk{{ID: 1, Length: 500, Q: 33.0}}
	pass1 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 5.0}}
	pass2 := []metrics.ChunkScore{{ChunkID: 1, CubeMean: 9.0}}
	opts.Target = 0.1
	adjusted, _ := AdjustButter(chunks, pass1, pass2, opts)
	if adjusted[0].Q != opts.MinQ {
		t.Errorf("adjusted q = %v, want MinQ %v", adjusted[0].Q, opts.MinQ)
	}

	opts.Target = 500
	adjusted, _ = AdjustButter(chunks, pass1, pass2, opts)
	if adjusted[0].Q != opts.MaxQ {
		t.Errorf("adjusted q = %v, want MaxQ %v", adjusted[0].Q, opts.MaxQ)
	}
}

func TestDampingFactor(t *testing.T) {
	tests := []struct {
		analysis, final int
		want            float64
		ok              bool
	}{
		{8, -1, 0.72, true},
		{8, 0, 0.73, true},
		{8, 2, 0.76, true},
		{8, 5, 0.84, true},
		{8, 6, 0, false},
		{5, 2, 0.86, true},
		{5, 3, 0, false},
		{3, 0, 0.91, true},
		{2, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := dampingFactor(tt.analysis, tt.final)
		if ok != tt.ok || got != tt.want {
			t.Errorf("dampingFactor(%d, %d) = %v, %v; want %v, %v",
				tt.analysis, tt.final, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInterpIndex(t *testing.T) {
	table := []float64{10, 20, 40}
	tests := []struct {
		v, want float64
	}{
		{5, 0},    // below range clamps
		{10, 0},   // exact first entry
		{15, 0.5}, // halfway in first segment
		{30, 1.5}, // halfway in second segment
		{40, 2},   // exact last entry
		{99, 2},   // above range clamps
	}
	for _, tt := range tests {
		if got := interpIndex(tt.v, table); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("interpIndex(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestQuarterRounding(t *testing.T) {
	if got := roundQuarter(27.3); got != 27.25 {
		t.Errorf("roundQuarter(27.3) = %v", got)
	}
	if got := ceilQuarter(26.01); got != 26.25 {
		t.Errorf("ceilQuarter(26.01) = %v", got)
	}
	if got := ceilQuarter(26.25); got != 26.25 {
		t.Errorf("ceilQuarter(26.25) = %v", got)
	}
}
