package metrics

import (
	"context"
	"sort"
	"sync"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/logging"
)

// ChunkScore is the aggregated metric result for one chunk.
type ChunkScore struct {
	ChunkID     int
	Mean        float64
	P5          float64
	CubeMean    float64
	Samples     []float64 // filtered, sentinel-free
	AverageLuma float64

	// Empty is set when every sample was a sentinel; the chunk reports
	// zero scores but does not block aggregation for other chunks.
	Empty bool
}

// PathFunc maps a chunk to the encoded file to score.
type PathFunc func(ch chunk.Chunk) string

// EvaluateAll scores every non-credits chunk under a bounded pool of
// workers. Metric computation is heavy and isolated per engine instance, so
// the pool size is configured independently of the encode worker count.
// Results are returned sorted by chunk ID regardless of completion order.
func EvaluateAll(ctx context.Context, chunks []chunk.Chunk, pathFor PathFunc, engine Engine, workers, stride int) ([]ChunkScore, error) {
	work := make([]chunk.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if !ch.IsCredits {
			work = append(work, ch)
		}
	}
	if len(work) == 0 {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan chunk.Chunk)
	scores := make([]ChunkScore, 0, len(work))
	var mu sync.Mutex
	var firstErr error

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range jobs {
				frames, err := engine.Score(ctx, ch, pathFor(ch), stride)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				scores = append(scores, aggregate(ch, frames))
				mu.Unlock()
			}
		}()
	}

	for _, ch := range work {
		select {
		case jobs <- ch:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].ChunkID < scores[j].ChunkID })
	return scores, nil
}

func aggregate(ch chunk.Chunk, frames Frames) ChunkScore {
	filtered := FilterSamples(frames.Samples)
	score := ChunkScore{
		ChunkID:     ch.ID,
		Samples:     filtered,
		AverageLuma: frames.AverageLuma,
	}
	if len(filtered) == 0 {
		logging.Warn("chunk has no valid metric samples", "chunk", ch.ID)
		score.Empty = true
		return score
	}
	score.Mean = Mean(filtered)
	score.P5 = Percentile(filtered, 5)
	score.CubeMean = CubeMean(filtered)
	return score
}

// PooledMean is the mean over every chunk's pooled samples, the global
// average used by the percentile policy.
func PooledMean(scores []ChunkScore) float64 {
	var sum float64
	var n int
	for _, s := range scores {
		for _, v := range s.Samples {
			sum += v
		}
		n += len(s.Samples)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// PooledCubeMean is the cube-power mean over every chunk's pooled samples,
// the global aggregate reported by the two-pass policy.
func PooledCubeMean(scores []ChunkScore) float64 {
	var all []float64
	for _, s := range scores {
		all = append(all, s.Samples...)
	}
	return CubeMean(all)
}
