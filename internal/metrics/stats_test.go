package metrics

import (
	"math"
	"testing"
)

func TestFilterSamples(t *testing.T) {
	in := []float64{70, -1, 65, -999, 0, 80}
	got := FilterSamples(in)
	want := []float64{70, 65, 0, 80}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMean(t *testing.T) {
	if got := Mean([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("Mean = %v, want 2.5", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
}

func TestPercentile(t *testing.T) {
	samples := []float64{10, 20, 30, 40, 50}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{50, 30},
		{100, 50},
		{5, 12},  // pos 0.2 between 10 and 20
		{25, 20}, // pos 1.0 exactly
	}
	for _, tt := range tests {
		if got := Percentile(samples, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := Percentile(nil, 5); got != 0 {
		t.Errorf("Percentile(nil) = %v, want 0", got)
	}
}

func TestCubeMean(t *testing.T) {
	// Uniform input: cube mean equals the value.
	if got := CubeMean([]float64{2, 2, 2}); math.Abs(got-2) > 1e-12 {
		t.Errorf("CubeMean uniform = %v, want 2", got)
	}

	// Outliers weigh more than in an arithmetic mean.
	samples := []float64{1, 1, 1, 4}
	arith := Mean(samples)
	cube := CubeMean(samples)
	if cube <= arith {
		t.Errorf("CubeMean %v not above arithmetic mean %v", cube, arith)
	}

	want := math.Cbrt((1 + 1 + 1 + 64) / 4.0)
	if math.Abs(cube-want) > 1e-12 {
		t.Errorf("CubeMean = %v, want %v", cube, want)
	}
}

func TestAggregateAllInvalid(t *testing.T) {
	ch := chunkWithID(3)
	score := aggregate(ch, Frames{Samples: []float64{-1, -1, -5}})
	if !score.Empty {
		t.Error("expected Empty for all-sentinel samples")
	}
	if score.Mean != 0 || score.P5 != 0 || score.CubeMean != 0 {
		t.Errorf("expected zero aggregates, got %+v", score)
	}
}

func TestPooledMean(t *testing.T) {
	scores := []ChunkScore{
		{ChunkID: 1, Samples: []float64{60, 70}},
		{ChunkID: 2, Samples: []float64{80}},
	}
	if got := PooledMean(scores); math.Abs(got-70) > 1e-12 {
		t.Errorf("PooledMean = %v, want 70", got)
	}
	if got := PooledMean(nil); got != 0 {
		t.Errorf("PooledMean(nil) = %v, want 0", got)
	}
}
