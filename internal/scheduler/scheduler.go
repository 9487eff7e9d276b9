// Package scheduler runs chunk pipelines under a bounded worker pool with
// retry, cancellation, and running bitrate accounting.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/errors"
	"github.com/chunkwise/chunkwise/internal/logging"
	"github.com/chunkwise/chunkwise/internal/pipeline"
	"github.com/chunkwise/chunkwise/internal/reporter"
	"github.com/chunkwise/chunkwise/internal/util"
)

// defaultAttempts is how many times a failing pipeline is tried before the
// chunk is reported as failed.
const defaultAttempts = 2

// Config controls one scheduler pass.
type Config struct {
	// MaxParallel is the worker pool size, independent of CPU count.
	MaxParallel int
	// Attempts per pipeline; zero means the default of 2.
	Attempts int
	// FPS converts chunk frame counts to seconds for bitrate accounting.
	FPS float64
	// TimelineSeconds is the full source runtime, used to extrapolate the
	// estimated final size from the running average bitrate.
	TimelineSeconds float64
	// PassName labels progress reporting for this pass.
	PassName string
}

// Report summarizes a completed scheduler pass. A pass with failed chunks
// is not an error: their output files are simply missing, and the caller
// decides whether that is fatal.
type Report struct {
	Completed       int
	FailedChunks    []int
	AvgBitrateKbps  float64
	EstimatedSizeMB float64
	Interrupted     bool
}

// result is one chunk's terminal outcome, delivered to the single
// accounting goroutine.
type result struct {
	ch         chunk.Chunk
	outputPath string
	attempt    int
	err        error
}

// Run executes one pipeline per chunk under MaxParallel workers, longest
// chunk first. Failed pipelines are retried; exhausting attempts marks the
// chunk failed without aborting siblings. On context cancellation no new
// pipelines launch and in-flight processes are terminated; Run then
// returns a cancellation error alongside the partial report.
func Run(ctx context.Context, chunks []chunk.Chunk, factory pipeline.Factory, cfg Config, rep reporter.Reporter) (Report, error) {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	workers := cfg.MaxParallel
	if workers < 1 {
		workers = 1
	}

	ordered := chunk.LongestFirst(chunks)
	totalFrames := 0
	for _, ch := range ordered {
		totalFrames += ch.Length
	}
	rep.EncodingStarted(reporter.PassInfo{
		Name:        cfg.PassName,
		TotalFrames: totalFrames,
		Chunks:      len(ordered),
	})

	jobs := make(chan chunk.Chunk)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range jobs {
				results <- runChunk(ctx, ch, factory, attempts)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ch := range ordered {
			select {
			case jobs <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// All accounting happens here, on the single goroutine draining
	// results, so the running totals need no locking and each chunk is
	// counted exactly once regardless of retries.
	var report Report
	var totalKbits, totalSeconds float64
	framesDone := 0
	for res := range results {
		if res.err != nil {
			if errors.IsCancelled(res.err) {
				continue
			}
			report.FailedChunks = append(report.FailedChunks, res.ch.ID)
			rep.Warning(fmt.Sprintf("chunk %d failed after %d attempts: %v", res.ch.ID, attempts, res.err))
			continue
		}

		report.Completed++
		framesDone += res.ch.Length
		seconds := res.ch.Seconds(cfg.FPS)

		size, err := util.GetFileSize(res.outputPath)
		if err != nil {
			logging.Warn("cannot stat chunk output", "chunk", res.ch.ID, "error", err)
		} else if seconds > 0 {
			kbits := float64(size) * 8 / 1000
			totalKbits += kbits
			totalSeconds += seconds
			report.AvgBitrateKbps = totalKbits / totalSeconds
			report.EstimatedSizeMB = report.AvgBitrateKbps * cfg.TimelineSeconds / 8 / 1000

			rep.ChunkFinished(reporter.ChunkResult{
				ChunkID:     res.ch.ID,
				Frames:      res.ch.Length,
				Seconds:     seconds,
				SizeBytes:   size,
				BitrateKbps: kbits / seconds,
				Attempt:     res.attempt,
			})
			logging.Info("chunk finished",
				"chunk", res.ch.ID, "seconds", seconds, "kbps", kbits/seconds)
		}

		rep.EncodingProgress(reporter.ProgressSnapshot{
			FramesDone:      framesDone,
			TotalFrames:     totalFrames,
			ChunksComplete:  report.Completed,
			ChunksTotal:     len(ordered),
			AvgBitrateKbps:  report.AvgBitrateKbps,
			EstimatedSizeMB: report.EstimatedSizeMB,
		})
	}

	if ctx.Err() != nil {
		report.Interrupted = true
		return report, errors.NewCancelledError()
	}
	return report, nil
}

// runChunk attempts one chunk's pipeline up to the configured number of
// times. The cancellation flag is checked before every launch so an
// interrupt never starts a new process.
func runChunk(ctx context.Context, ch chunk.Chunk, factory pipeline.Factory, attempts int) result {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return result{ch: ch, err: errors.NewCancelledError()}
		}

		unit, err := factory.Build(ch)
		if err != nil {
			return result{ch: ch, err: errors.NewPipelineError(ch.ID, err)}
		}

		if err := unit.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return result{ch: ch, err: errors.NewCancelledError()}
			}
			lastErr = err
			logging.Warn("pipeline attempt failed",
				"chunk", ch.ID, "attempt", attempt, "error", err)
			continue
		}
		return result{ch: ch, outputPath: unit.OutputPath(), attempt: attempt}
	}
	logging.Error("pipeline failed permanently", "chunk", ch.ID, "error", lastErr)
	return result{ch: ch, err: errors.NewPipelineError(ch.ID, lastErr)}
}
