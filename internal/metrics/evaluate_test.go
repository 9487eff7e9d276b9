package metrics

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/chunkwise/chunkwise/internal/chunk"
)

func chunkWithID(id int) chunk.Chunk {
	return chunk.Chunk{ID: id, Start: (id - 1) * 100, End: id*100 - 1, Length: 100}
}

// fakeEngine returns a fixed score per chunk ID and counts invocations.
type fakeEngine struct {
	scores map[int][]float64
	luma   map[int]float64
	calls  atomic.Int32
}

func (e *fakeEngine) Score(_ context.Context, ch chunk.Chunk, _ string, _ int) (Frames, error) {
	e.calls.Add(1)
	return Frames{Samples: e.scores[ch.ID], AverageLuma: e.luma[ch.ID]}, nil
}

func TestEvaluateAll(t *testing.T) {
	chunks := []chunk.Chunk{
		chunkWithID(2),
		chunkWithID(1),
		{ID: 3, Start: 200, End: 299, Length: 100, IsCredits: true},
	}
	engine := &fakeEngine{
		scores: map[int][]float64{
			1: {70, 72, -1, 74},
			2: {60, -3, 66},
		},
		luma: map[int]float64{1: 120, 2: 30},
	}

	scores, err := EvaluateAll(context.Background(), chunks, func(ch chunk.Chunk) string { return "x" }, engine, 2, 1)
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}

	// Credits chunks are never scored.
	if got := engine.calls.Load(); got != 2 {
		t.Errorf("engine called %d times, want 2", got)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}

	// Results come back in chunk ID order regardless of input order.
	if scores[0].ChunkID != 1 || scores[1].ChunkID != 2 {
		t.Errorf("scores out of order: %d, %d", scores[0].ChunkID, scores[1].ChunkID)
	}
	if scores[0].Mean != 72 {
		t.Errorf("chunk 1 mean %v, want 72 (sentinel filtered)", scores[0].Mean)
	}
	if scores[1].Mean != 63 {
		t.Errorf("chunk 2 mean %v, want 63", scores[1].Mean)
	}
	if scores[0].AverageLuma != 120 {
		t.Errorf("chunk 1 luma %v, want 120", scores[0].AverageLuma)
	}
}

func TestEvaluateAllEmpty(t *testing.T) {
	scores, err := EvaluateAll(context.Background(), nil, nil, nil, 2, 1)
	if err != nil || scores != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", scores, err)
	}
}
