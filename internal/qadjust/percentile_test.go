package qadjust

import (
	"testing"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/metrics"
)

// scoreWithSamples builds a ChunkScore whose pooled-mean contribution and
// 5th percentile are both controlled by a flat sample set.
func scoreWithSamples(id int, value float64, count int) metrics.ChunkScore {
	samples := make([]float64, count)
	for i := range samples {
		samples[i] = value
	}
	return metrics.ChunkScore{ChunkID: id, Mean: value, P5: value, Samples: samples}
}

func TestAdjustPercentileSVTFormula(t *testing.T) {
	// Pooled average 70, chunk p5 60, base q 30: the SVT scale doubles the
	// correction, (1 - 60/70) * 20 = 2.857..., rounded to quarters = 2.75.
	chunks := []chunk.Chunk{{ID: 1, Start: 0, End: 999, Length: 1000, Q: 30}}
	scores := []metrics.ChunkScore{
		{ChunkID: 1, P5: 60, Samples: []float64{70, 70}},
	}
	opts := PercentileOptions{BaseQ: 30, Bound: 10, SVTScale: true}

	adjusted, rec := AdjustPercentile(chunks, scores, opts)
	if got := adjusted[0].Q; got != 27.25 {
		t.Errorf("adjusted q = %v, want 27.25", got)
	}
	if rec.WeightedCRF != 27.25 {
		t.Errorf("weighted crf = %v, want 27.25", rec.WeightedCRF)
	}
	if len(rec.Chunks) != 1 || rec.Chunks[0].Percentile5 == nil || *rec.Chunks[0].Percentile5 != 60 {
		t.Errorf("record entry = %+v", rec.Chunks)
	}
}

func TestAdjustPercentileNonSVTScale(t *testing.T) {
	// Same input without the SVT divisor: (1 - 60/70) * 10 = 1.428...,
	// rounded to quarters = 1.5.
	chunks := []chunk.Chunk{{ID: 1, Length: 1000, Q: 30}}
	scores := []metrics.ChunkScore{
		{ChunkID: 1, P5: 60, Samples: []float64{70, 70}},
	}
	opts := PercentileOptions{BaseQ: 30, Bound: 10}

	adjusted, _ := AdjustPercentile(chunks, scores, opts)
	if got := adjusted[0].Q; got != 28.5 {
		t.Errorf("adjusted q = %v, want 28.5", got)
	}
}

func TestAdjustPercentileClamping(t *testing.T) {
	tests := []struct {
		name string
		p5   float64
		want float64
	}{
		// (1 - 10/70) * 20 = 17.14: far past the bound, clamp low.
		{"low clamp", 10, 28},
		// p5 above the average raises q, clamp high.
		{"high clamp", 150, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := []chunk.Chunk{{ID: 1, Length: 500, Q: 30}}
			scores := []metrics.ChunkScore{
				{ChunkID: 1, P5: tt.p5, Samples: []float64{70, 70}},
			}
			opts := PercentileOptions{BaseQ: 30, Bound: 2, SVTScale: true}
			adjusted, _ := AdjustPercentile(chunks, scores, opts)
			if got := adjusted[0].Q; got != tt.want {
				t.Errorf("adjusted q = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdjustPercentileSkipsCredits(t *testing.T) {
	chunks := []chunk.Chunk{
		{ID: 1, Length: 900, Q: 30},
		{ID: 2, Length: 100, IsCredits: true, Q: 38},
	}
	scores := []metrics.ChunkScore{scoreWithSamples(1, 70, 4)}
	opts := PercentileOptions{BaseQ: 30, Bound: 10, SVTScale: true}

	adjusted, rec := AdjustPercentile(chunks, scores, opts)
	if adjusted[1].Q != 38 {
		t.Errorf("credits q changed to %v", adjusted[1].Q)
	}
	if len(rec.Chunks) != 1 {
		t.Errorf("record has %d entries, want 1 (credits excluded)", len(rec.Chunks))
	}
	// p5 == average leaves the quantizer at base.
	if adjusted[0].Q != 30 {
		t.Errorf("balanced chunk q = %v, want 30", adjusted[0].Q)
	}
}

func TestAdjustPercentileAllInvalidSamples(t *testing.T) {
	// Every sample was a sentinel: no pooled average exists, so the
	// quantizer stays at base instead of dividing by zero.
	chunks := []chunk.Chunk{{ID: 1, Length: 100, Q: 30}}
	scores := []metrics.ChunkScore{{ChunkID: 1, Empty: true}}
	opts := PercentileOptions{BaseQ: 30, Bound: 10, SVTScale: true}

	adjusted, _ := AdjustPercentile(chunks, scores, opts)
	if adjusted[0].Q != 30 {
		t.Errorf("adjusted q = %v, want base 30", adjusted[0].Q)
	}
}

func TestAdjustPercentileOrderIndependent(t *testing.T) {
	scores := []metrics.ChunkScore{
		{ChunkID: 1, P5: 60, Samples: []float64{70}},
		{ChunkID: 2, P5: 75, Samples: []float64{70}},
		{ChunkID: 3, P5: 70, Samples: []float64{70}},
	}
	byID := []chunk.Chunk{
		{ID: 1, Length: 150, Q: 30},
		{ID: 2, Length: 550, Q: 30},
		{ID: 3, Length: 300, Q: 30},
	}
	longestFirst := []chunk.Chunk{byID[1], byID[2], byID[0]}
	opts := PercentileOptions{BaseQ: 30, Bound: 10, SVTScale: true}

	_, recA := AdjustPercentile(byID, scores, opts)
	_, recB := AdjustPercentile(longestFirst, scores, opts)
	if recA.WeightedCRF != recB.WeightedCRF {
		t.Errorf("weighted crf depends on input order: %v vs %v", recA.WeightedCRF, recB.WeightedCRF)
	}
	for i := range recA.Chunks {
		if recA.Chunks[i].ChunkNumber != recB.Chunks[i].ChunkNumber ||
			recA.Chunks[i].AdjustedQ != recB.Chunks[i].AdjustedQ {
			t.Errorf("record entry %d differs across input orders", i)
		}
	}
}
