// Package chunkwise provides a Go library for scene-based chunked video
// encoding with adaptive per-chunk quality control.
//
// Chunkwise splits a source into scene-aligned chunks, measures each chunk
// with a perceptual metric, derives a per-chunk quantizer from one of three
// adjustment policies, and encodes the chunks in parallel.
//
// Basic usage:
//
//	ctrl, err := chunkwise.New("input.vpy", "scenes.txt", 143682, 23.976,
//	    chunkwise.WithMode(chunkwise.ModeButter),
//	    chunkwise.WithTarget(1.2),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := ctrl.Run(ctx, nil); err != nil {
//	    log.Fatal(err)
//	}
package chunkwise

import (
	"context"

	"github.com/chunkwise/chunkwise/internal/config"
	"github.com/chunkwise/chunkwise/internal/reporter"
	"github.com/chunkwise/chunkwise/internal/run"
	"github.com/chunkwise/chunkwise/internal/util"
)

// Re-export the adjustment policy names.
const (
	ModePercentile = config.ModePercentile
	ModeButter     = config.ModeButter
	ModeCurve      = config.ModeCurve
)

// Reporter receives progress and result events during a run.
type Reporter = reporter.Reporter

// Controller is the main entry point for chunked encoding runs.
type Controller struct {
	config *config.Config
}

// Option configures the controller.
type Option func(*config.Config)

// New creates a Controller for one source. The scenes file lists
// scene-change frame indices, one per line; sourceLength and fps describe
// the decoded timeline.
func New(input, scenesFile string, sourceLength int, fps float64, opts ...Option) (*Controller, error) {
	cfg := config.NewConfig(input, scenesFile, "")
	cfg.SourceLength = sourceLength
	cfg.FPS = fps

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.ApplyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Controller{config: cfg}, nil
}

// WithWorkDir sets the working directory for chunk outputs.
func WithWorkDir(dir string) Option {
	return func(c *config.Config) {
		c.WorkDir = dir
	}
}

// WithEncoder selects the encoder family: svt, x265, rav1e, or aom.
func WithEncoder(name string) Option {
	return func(c *config.Config) {
		c.Encoder = name
	}
}

// WithQuantizer sets the default quantizer adjustments start from.
func WithQuantizer(q float64) Option {
	return func(c *config.Config) {
		c.Q = q
	}
}

// WithMode selects the quality adjustment policy.
func WithMode(mode string) Option {
	return func(c *config.Config) {
		c.Mode = mode
	}
}

// WithTarget sets the target metric score for butter and curve modes.
func WithTarget(target float64) Option {
	return func(c *config.Config) {
		c.Target = target
	}
}

// WithQuantizerRange bounds the adjusted quantizers.
func WithQuantizerRange(min, max float64) Option {
	return func(c *config.Config) {
		c.MinQ = min
		c.MaxQ = max
	}
}

// WithMaxParallel sets the encode worker pool size.
func WithMaxParallel(n int) Option {
	return func(c *config.Config) {
		c.MaxParallel = n
	}
}

// WithCredits marks everything from startFrame on as credits, encoded at
// a fixed quantizer without analysis.
func WithCredits(startFrame int, q float64) Option {
	return func(c *config.Config) {
		c.CreditsStartFrame = startFrame
		c.CreditsQ = q
	}
}

// WithFilmGrain enables film grain synthesis with the given strength.
func WithFilmGrain(strength int) Option {
	return func(c *config.Config) {
		c.FilmGrain = strength
	}
}

// WithProbeCount sets how many quantizers curve mode probes.
func WithProbeCount(n int) Option {
	return func(c *config.Config) {
		c.ProbeCount = n
	}
}

// WithPQ marks the source as PQ-transfer HDR, selecting the logarithmic
// luma damping ramp in curve mode.
func WithPQ() Option {
	return func(c *config.Config) {
		c.PQ = true
	}
}

// WithReuse replays the persisted adjustment record instead of
// re-running analysis.
func WithReuse() Option {
	return func(c *config.Config) {
		c.Reuse = true
	}
}

// Run plans, analyzes, and encodes the source. A nil reporter discards
// all events. Without WithWorkDir, outputs land in a directory named
// after the input next to the working directory.
func (c *Controller) Run(ctx context.Context, rep Reporter) error {
	cfg := *c.config
	if cfg.WorkDir == "" {
		cfg.WorkDir = util.GetFileStem(cfg.Input) + "_chunkwise"
	}
	if err := util.EnsureDirectory(cfg.WorkDir); err != nil {
		return err
	}
	return run.New(&cfg, rep, nil).Execute(ctx)
}
