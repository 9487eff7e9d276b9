// Package run sequences an encoding run: chunk planning, analysis passes,
// quality adjustment, and the final pass.
package run

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/config"
	"github.com/chunkwise/chunkwise/internal/errors"
	"github.com/chunkwise/chunkwise/internal/logging"
	"github.com/chunkwise/chunkwise/internal/metrics"
	"github.com/chunkwise/chunkwise/internal/pipeline"
	"github.com/chunkwise/chunkwise/internal/qadjust"
	"github.com/chunkwise/chunkwise/internal/reporter"
	"github.com/chunkwise/chunkwise/internal/scheduler"
	"github.com/chunkwise/chunkwise/internal/util"
)

// Runner executes one encoding run end to end.
type Runner struct {
	cfg    *config.Config
	rep    reporter.Reporter
	engine metrics.Engine
}

// New creates a Runner. A nil engine wires the configured external metric
// command; a nil reporter discards events.
func New(cfg *config.Config, rep reporter.Reporter, engine metrics.Engine) *Runner {
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	if engine == nil {
		engine = &metrics.ProcessEngine{
			Command:       cfg.MetricCommand,
			ReferencePath: cfg.Input,
		}
	}
	return &Runner{cfg: cfg, rep: rep, engine: engine}
}

func (r *Runner) chunksDir() string  { return filepath.Join(r.cfg.WorkDir, "chunks") }
func (r *Runner) probesDir() string  { return filepath.Join(r.cfg.WorkDir, "probes") }
func (r *Runner) recordPath() string { return filepath.Join(r.cfg.WorkDir, "qadjust.json") }

// encoderParams assembles the final-pass encoder parameters from the
// configuration.
func (r *Runner) encoderParams() pipeline.EncoderParams {
	return pipeline.EncoderParams{
		Family:    pipeline.Family(r.cfg.Encoder),
		Quantizer: r.cfg.Q,
		Preset:    r.cfg.FinalPreset,
		Threads:   r.cfg.Threads,
		KeyInt:    r.cfg.KeyInt(),
		FilmGrain: r.cfg.FilmGrain,
		Extra:     r.cfg.ExtraParams,
	}
}

// Execute runs the full flow: plan chunks, derive per-chunk quantizers
// under the configured policy (or reuse a persisted record), then encode
// the final pass.
func (r *Runner) Execute(ctx context.Context) error {
	scenes, err := chunk.LoadSceneChanges(r.cfg.ScenesFile, r.cfg.SourceLength)
	if err != nil {
		return err
	}

	plan := chunk.PlanChunks(scenes, r.cfg.SourceLength, r.cfg.MinChunkLength, r.cfg.Q)
	if r.cfg.CreditsStartFrame >= 0 {
		plan = chunk.ApplyCredits(plan, r.cfg.CreditsStartFrame, r.cfg.MinChunkLength, r.cfg.CreditsQ)
	}

	r.rep.RunStarted(reporter.RunInfo{
		InputFile:   r.cfg.Input,
		OutputDir:   r.cfg.WorkDir,
		Encoder:     r.cfg.Encoder,
		Mode:        r.cfg.Mode,
		TotalChunks: len(plan),
		TotalFrames: r.cfg.SourceLength,
		Seconds:     float64(r.cfg.SourceLength) / r.cfg.FPS,
	})
	logging.Info("chunk plan ready", "chunks", len(plan), "minLength", r.cfg.MinChunkLength)

	for _, dir := range []string{r.chunksDir(), r.probesDir()} {
		if err := util.EnsureDirectory(dir); err != nil {
			return errors.NewIOError(fmt.Sprintf("failed to create work directory %s", dir), err)
		}
	}

	var adjusted []chunk.Chunk
	if r.cfg.Reuse {
		adjusted, err = r.reuse(plan)
	} else {
		switch r.cfg.Mode {
		case config.ModePercentile:
			adjusted, err = r.percentileFlow(ctx, plan)
		case config.ModeButter:
			adjusted, err = r.butterFlow(ctx, plan)
		case config.ModeCurve:
			adjusted, err = r.curveFlow(ctx, plan)
		default:
			return errors.NewConfigError(fmt.Sprintf("unknown adjustment mode %q", r.cfg.Mode))
		}
	}
	if err != nil {
		return err
	}

	return r.finalPass(ctx, adjusted)
}

// reuse loads the persisted adjustment record instead of re-running the
// analysis. The record's chunking parameters must match the current run.
func (r *Runner) reuse(plan []chunk.Chunk) ([]chunk.Chunk, error) {
	rec, err := qadjust.Load(r.recordPath())
	if err != nil {
		return nil, err
	}
	if err := rec.ValidateReuse(r.cfg.MinChunkLength, r.cfg.KeyInt()); err != nil {
		return nil, err
	}
	adjusted, err := rec.Apply(plan)
	if err != nil {
		return nil, err
	}
	logging.Info("reusing adjustment record", "path", r.recordPath(), "weightedCrf", rec.WeightedCRF)
	r.reportSummary(rec, adjusted)
	return adjusted, nil
}

// percentileFlow runs one relaxed analysis pass at the default quantizer
// and matches every chunk's 5th percentile against the pooled average.
func (r *Runner) percentileFlow(ctx context.Context, plan []chunk.Chunk) ([]chunk.Chunk, error) {
	factory := &CommandFactory{
		Input:     r.cfg.Input,
		OutputDir: r.chunksDir(),
		Prefix:    "analysis_chunk_",
		Params:    r.encoderParams().ForAnalysis(r.cfg.AnalysisPreset),
	}
	if err := r.analysisPass(ctx, plan, factory, "analysis pass"); err != nil {
		return nil, err
	}

	scores, err := metrics.EvaluateAll(ctx, plan, factory.OutputPath, r.engine, r.cfg.MetricWorkers, r.cfg.Stride)
	if err != nil {
		return nil, err
	}

	adjusted, rec := qadjust.AdjustPercentile(plan, scores, qadjust.PercentileOptions{
		BaseQ:          r.cfg.Q,
		Bound:          r.cfg.Bound,
		SVTScale:       r.cfg.Encoder == "svt",
		MinChunkLength: r.cfg.MinChunkLength,
		KeyInt:         r.cfg.KeyInt(),
		AnalysisPreset: r.cfg.AnalysisPreset,
	})
	return r.persist(rec, adjusted)
}

// butterFlow runs two analysis passes at fixed reference quantizers and
// fits a per-chunk line over the quantization-step scale.
func (r *Runner) butterFlow(ctx context.Context, plan []chunk.Chunk) ([]chunk.Chunk, error) {
	analysisParams := r.encoderParams().ForAnalysis(r.cfg.AnalysisPreset)

	pass1Chunks := withQuantizer(plan, qadjust.Pass1ReferenceQ)
	pass1Factory := &CommandFactory{
		Input:     r.cfg.Input,
		OutputDir: r.chunksDir(),
		Prefix:    "analysis_chunk_pass1_",
		Params:    analysisParams,
	}
	if err := r.analysisPass(ctx, pass1Chunks, pass1Factory, "analysis pass 1"); err != nil {
		return nil, err
	}
	pass1Scores, err := metrics.EvaluateAll(ctx, pass1Chunks, pass1Factory.OutputPath, r.engine, r.cfg.MetricWorkers, r.cfg.Stride)
	if err != nil {
		return nil, err
	}
	logging.Info("analysis pass 1 scored",
		"meanCube", metrics.PooledCubeMean(pass1Scores), "target", r.cfg.Target)

	// Each chunk's second reference depends on which side of the target
	// its first score landed.
	pass1ByID := make(map[int]float64, len(pass1Scores))
	for _, s := range pass1Scores {
		pass1ByID[s.ChunkID] = s.CubeMean
	}
	pass2Chunks := chunk.ByID(plan)
	for i := range pass2Chunks {
		if pass2Chunks[i].IsCredits {
			continue
		}
		pass2Chunks[i].Q = qadjust.Pass2ReferenceQ(pass1ByID[pass2Chunks[i].ID], r.cfg.Target)
	}

	pass2Factory := &CommandFactory{
		Input:     r.cfg.Input,
		OutputDir: r.chunksDir(),
		Prefix:    "analysis_chunk_pass2_",
		Params:    analysisParams,
	}
	if err := r.analysisPass(ctx, pass2Chunks, pass2Factory, "analysis pass 2"); err != nil {
		return nil, err
	}
	pass2Scores, err := metrics.EvaluateAll(ctx, pass2Chunks, pass2Factory.OutputPath, r.engine, r.cfg.MetricWorkers, r.cfg.Stride)
	if err != nil {
		return nil, err
	}

	adjusted, rec := qadjust.AdjustButter(pass2Chunks, pass1Scores, pass2Scores, qadjust.ButterOptions{
		Target:         r.cfg.Target,
		DefaultQ:       r.cfg.Q,
		AnalysisPreset: r.cfg.AnalysisPreset,
		FinalPreset:    r.cfg.FinalPreset,
		MinQ:           r.cfg.MinQ,
		MaxQ:           r.cfg.MaxQ,
		MinChunkLength: r.cfg.MinChunkLength,
		KeyInt:         r.cfg.KeyInt(),
	})
	return r.persist(rec, adjusted)
}

// curveFlow encodes short probe windows across a quantizer sweep, solves
// the probed curve for a global analysis quantizer, runs one full pass
// there, and converts each chunk's score error into a quantizer delta.
func (r *Runner) curveFlow(ctx context.Context, plan []chunk.Chunk) ([]chunk.Chunk, error) {
	analysisParams := r.encoderParams().ForAnalysis(r.cfg.AnalysisPreset)

	probes := chunk.PlanProbeChunks(r.cfg.SourceLength, r.cfg.ProbeCount,
		r.cfg.ProbeWindowLength, r.cfg.CreditsStartFrame, r.cfg.Q)
	if len(probes) < 2 {
		return nil, errors.NewAnalysisError("source too short to place probe windows")
	}

	quantizers := qadjust.ProbeQuantizers(r.cfg.MinQ, r.cfg.MaxQ, r.cfg.ProbeCount)
	points := make([]qadjust.CurvePoint, 0, len(quantizers))
	for _, q := range quantizers {
		factory := &CommandFactory{
			Input:     r.cfg.Input,
			OutputDir: r.probesDir(),
			Prefix:    fmt.Sprintf("probe_q%g_chunk_", q),
			Params:    analysisParams,
		}
		probePass := withQuantizer(probes, q)
		if err := r.analysisPass(ctx, probePass, factory, fmt.Sprintf("probe pass q=%g", q)); err != nil {
			return nil, err
		}
		scores, err := metrics.EvaluateAll(ctx, probePass, factory.OutputPath, r.engine, r.cfg.MetricWorkers, r.cfg.Stride)
		if err != nil {
			return nil, err
		}
		point := qadjust.CurvePoint{Quantizer: q, Score: metrics.PooledMean(scores)}
		points = append(points, point)
		logging.Info("probe scored", "q", point.Quantizer, "score", point.Score)
	}

	solved, err := qadjust.SolveTargetQuantizer(points, r.cfg.Target)
	if err != nil {
		return nil, err
	}
	analysisQ := math.Round(solved*4) / 4
	if analysisQ < r.cfg.MinQ {
		analysisQ = r.cfg.MinQ
	}
	if analysisQ > r.cfg.MaxQ {
		analysisQ = r.cfg.MaxQ
	}
	logging.Info("probe curve solved", "analysisQ", analysisQ, "target", r.cfg.Target)

	analysisChunks := withQuantizer(plan, analysisQ)
	factory := &CommandFactory{
		Input:     r.cfg.Input,
		OutputDir: r.chunksDir(),
		Prefix:    "analysis_chunk_",
		Params:    analysisParams,
	}
	if err := r.analysisPass(ctx, analysisChunks, factory, "analysis pass"); err != nil {
		return nil, err
	}
	scores, err := metrics.EvaluateAll(ctx, analysisChunks, factory.OutputPath, r.engine, r.cfg.MetricWorkers, r.cfg.Stride)
	if err != nil {
		return nil, err
	}

	adjusted, rec, err := qadjust.AdjustCurve(analysisChunks, scores, points, qadjust.CurveOptions{
		Target:         r.cfg.Target,
		AnalysisQ:      analysisQ,
		MinQ:           r.cfg.MinQ,
		MaxQ:           r.cfg.MaxQ,
		MinLuma:        r.cfg.MinLuma,
		MaxLuma:        r.cfg.MaxLuma,
		PQ:             r.cfg.PQ,
		MinChunkLength: r.cfg.MinChunkLength,
		KeyInt:         r.cfg.KeyInt(),
		AnalysisPreset: r.cfg.AnalysisPreset,
	})
	if err != nil {
		return nil, err
	}
	return r.persist(rec, adjusted)
}

// analysisPass schedules one encode pass over the non-credits chunks.
// Credits are excluded from analysis entirely; they keep their fixed
// quantizer. Failed chunks are fatal here: a missing analysis encode
// would silently skew the adjustment.
func (r *Runner) analysisPass(ctx context.Context, chunks []chunk.Chunk, factory pipeline.Factory, name string) error {
	work := make([]chunk.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if !ch.IsCredits {
			work = append(work, ch)
		}
	}
	report, err := scheduler.Run(ctx, work, factory, r.schedulerConfig(name), r.rep)
	if err != nil {
		return err
	}
	if len(report.FailedChunks) > 0 {
		return errors.NewAnalysisError(fmt.Sprintf(
			"%s failed for chunks %v", name, report.FailedChunks))
	}
	return nil
}

// finalPass encodes the adjusted chunks. Individual failures are reported
// but do not abort the run; their outputs are simply missing.
func (r *Runner) finalPass(ctx context.Context, chunks []chunk.Chunk) error {
	factory := &CommandFactory{
		Input:     r.cfg.Input,
		OutputDir: r.chunksDir(),
		Prefix:    "encoded_chunk_",
		Params:    r.encoderParams(),
	}
	report, err := scheduler.Run(ctx, chunks, factory, r.schedulerConfig("final pass"), r.rep)
	if err != nil {
		return err
	}
	if len(report.FailedChunks) > 0 {
		r.rep.Warning(fmt.Sprintf("%d chunk(s) failed and are missing from the output: %v",
			len(report.FailedChunks), report.FailedChunks))
	}
	r.rep.OperationComplete(fmt.Sprintf("Encoded %d chunks, average %s, estimated size %.0f MB",
		report.Completed, util.FormatBitrate(report.AvgBitrateKbps), report.EstimatedSizeMB))
	return nil
}

func (r *Runner) schedulerConfig(passName string) scheduler.Config {
	return scheduler.Config{
		MaxParallel:     r.cfg.MaxParallel,
		FPS:             r.cfg.FPS,
		TimelineSeconds: float64(r.cfg.SourceLength) / r.cfg.FPS,
		PassName:        passName,
	}
}

// persist writes the adjustment record and reports the outcome.
func (r *Runner) persist(rec *qadjust.Record, adjusted []chunk.Chunk) ([]chunk.Chunk, error) {
	if err := qadjust.Save(r.recordPath(), rec); err != nil {
		return nil, err
	}
	r.reportSummary(rec, adjusted)
	return adjusted, nil
}

func (r *Runner) reportSummary(rec *qadjust.Record, adjusted []chunk.Chunk) {
	dist := qadjust.Distribute(adjusted)
	shares := make([]reporter.QuantizerShare, len(dist.Shares))
	for i, s := range dist.Shares {
		shares[i] = reporter.QuantizerShare{Q: s.Q, Share: s.Share}
	}
	r.rep.AnalysisSummary(reporter.AnalysisSummary{
		Mode:         rec.QualityParameters.Mode,
		Target:       rec.QualityParameters.Target,
		AverageScore: rec.QualityParameters.AverageScore,
		WeightedCRF:  rec.WeightedCRF,
		MedianQ:      dist.MedianQ,
		Shares:       shares,
	})
}

// withQuantizer returns a copy of chunks with every non-credits quantizer
// set to q, ordered by id.
func withQuantizer(chunks []chunk.Chunk, q float64) []chunk.Chunk {
	out := chunk.ByID(chunks)
	for i := range out {
		if !out[i].IsCredits {
			out[i].Q = q
		}
	}
	return out
}
