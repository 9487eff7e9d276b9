// Package config provides configuration types and defaults for chunkwise.
package config

import (
	"fmt"
	"math"

	"github.com/chunkwise/chunkwise/internal/errors"
	"github.com/chunkwise/chunkwise/internal/keyint"
)

// Default constants
const (
	// DefaultMaxParallel is the encode worker pool size.
	DefaultMaxParallel = 4

	// DefaultMetricWorkers is the metric evaluation pool size.
	DefaultMetricWorkers = 1

	// DefaultAnalysisPreset is the relaxed encoder preset for analysis passes.
	DefaultAnalysisPreset = 7

	// DefaultFinalPreset is the encoder preset for the final pass.
	DefaultFinalPreset = 2

	// DefaultProbeCount is how many probe windows the curve policy encodes.
	DefaultProbeCount = 6

	// DefaultKeyIntSeconds is the keyframe interval target.
	DefaultKeyIntSeconds = 10

	// DefaultStartupMGSize is the SVT-AV1 startup mini-GOP size setting.
	DefaultStartupMGSize = 5

	// DefaultHierarchicalLevels is the SVT-AV1 hierarchical levels setting.
	DefaultHierarchicalLevels = 6

	// DefaultMinQ and DefaultMaxQ bound adjusted quantizers for the
	// two-pass and curve policies.
	DefaultMinQ = 10.0
	DefaultMaxQ = 50.0

	// DefaultMinLuma and DefaultMaxLuma bound the curve policy's damping
	// ramp, on the 8-bit luma scale.
	DefaultMinLuma = 16.0
	DefaultMaxLuma = 96.0

	// DefaultCreditsQOffset raises the credits chunk's quantizer above the
	// run default when no explicit credits quantizer is given.
	DefaultCreditsQOffset = 8.0
)

// Adjustment policy selection.
const (
	ModePercentile = "percentile"
	ModeButter     = "butter"
	ModeCurve      = "curve"
)

// Config holds all configuration for an encoding run.
type Config struct {
	// Input/output paths
	Input      string
	ScenesFile string
	WorkDir    string

	// Encoder selection: svt, x265, rav1e, or aom.
	Encoder string

	// Quantizer settings
	Q     float64
	MinQ  float64
	MaxQ  float64
	Bound float64 // percentile policy half-range; zero derives from Q

	// Encoder presets
	FinalPreset    int
	AnalysisPreset int
	Threads        int
	FilmGrain      int
	ExtraParams    []string

	// Chunking
	MinChunkLength    int // zero derives from the framerate
	CreditsStartFrame int // negative means no credits region
	CreditsQ          float64

	// Source properties
	SourceLength int
	FPS          float64

	// Workers
	MaxParallel   int
	MetricWorkers int

	// Quality adjustment
	Mode          string
	Target        float64
	Stride        int // score every Nth frame; zero scores all
	MetricCommand string
	Reuse         bool

	// Curve policy
	ProbeCount        int
	ProbeWindowLength int // zero derives from the framerate
	MinLuma           float64
	MaxLuma           float64
	PQ                bool

	// Keyframe interval derivation (SVT)
	KeyIntSeconds      int
	StartupMGSize      int
	HierarchicalLevels int
}

// NewConfig creates a Config with default values for everything except the
// source-specific fields.
func NewConfig(input, scenesFile, workDir string) *Config {
	return &Config{
		Input:              input,
		ScenesFile:         scenesFile,
		WorkDir:            workDir,
		Encoder:            "svt",
		Q:                  30,
		MinQ:               DefaultMinQ,
		MaxQ:               DefaultMaxQ,
		FinalPreset:        DefaultFinalPreset,
		AnalysisPreset:     DefaultAnalysisPreset,
		CreditsStartFrame:  -1,
		MaxParallel:        DefaultMaxParallel,
		MetricWorkers:      DefaultMetricWorkers,
		Mode:               ModePercentile,
		ProbeCount:         DefaultProbeCount,
		MinLuma:            DefaultMinLuma,
		MaxLuma:            DefaultMaxLuma,
		KeyIntSeconds:      DefaultKeyIntSeconds,
		StartupMGSize:      DefaultStartupMGSize,
		HierarchicalLevels: DefaultHierarchicalLevels,
	}
}

// KeyInt returns the mini-GOP-aligned keyframe interval for the source
// framerate.
func (c *Config) KeyInt() int {
	return keyint.Aligned(c.FPS, c.KeyIntSeconds, c.StartupMGSize, c.HierarchicalLevels)
}

// ApplyDerived fills the fields whose defaults depend on other settings.
// Call after the source framerate is known and before Validate.
func (c *Config) ApplyDerived() {
	if c.Bound == 0 {
		if c.Encoder == "svt" {
			c.Bound = math.Ceil(c.Q * 0.125)
		} else {
			c.Bound = 2
		}
	}
	if c.MinChunkLength == 0 {
		if c.Encoder == "svt" {
			c.MinChunkLength = keyint.Aligned(c.FPS, 2, c.StartupMGSize, c.HierarchicalLevels)
		} else {
			c.MinChunkLength = int(math.Ceil(c.FPS)) * 2
		}
	}
	if c.ProbeWindowLength == 0 {
		c.ProbeWindowLength = int(math.Ceil(c.FPS)) * 5
	}
	if c.CreditsQ == 0 {
		c.CreditsQ = c.Q + DefaultCreditsQOffset
	}
}

// quantizerRange returns the valid quantizer range for the encoder family.
func (c *Config) quantizerRange() (float64, float64) {
	switch c.Encoder {
	case "rav1e":
		return 0, 255
	case "x265":
		return 0, 51
	default:
		return 2, 64
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Encoder {
	case "svt", "x265", "rav1e", "aom":
	default:
		return errors.NewConfigError(fmt.Sprintf("unknown encoder %q", c.Encoder))
	}

	lo, hi := c.quantizerRange()
	if c.Q < lo || c.Q > hi {
		return errors.NewConfigError(fmt.Sprintf("q must be %g-%g for %s, got %g", lo, hi, c.Encoder, c.Q))
	}
	if c.CreditsQ < lo || c.CreditsQ > hi {
		return errors.NewConfigError(fmt.Sprintf("credits q must be %g-%g for %s, got %g", lo, hi, c.Encoder, c.CreditsQ))
	}
	if c.FinalPreset < -1 || c.FinalPreset > 12 {
		return errors.NewConfigError(fmt.Sprintf("preset must be -1..12, got %d", c.FinalPreset))
	}
	if c.AnalysisPreset < -1 || c.AnalysisPreset > 12 {
		return errors.NewConfigError(fmt.Sprintf("analysis preset must be -1..12, got %d", c.AnalysisPreset))
	}
	if c.MinQ >= c.MaxQ {
		return errors.NewConfigError(fmt.Sprintf("min q %g must be below max q %g", c.MinQ, c.MaxQ))
	}
	if c.MaxParallel < 1 {
		return errors.NewConfigError("max parallel encodes must be at least 1")
	}
	if c.MetricWorkers < 1 {
		return errors.NewConfigError("metric workers must be at least 1")
	}
	if c.SourceLength < 1 {
		return errors.NewConfigError("source length must be positive")
	}
	if c.FPS <= 0 {
		return errors.NewConfigError("framerate must be positive")
	}
	if c.CreditsStartFrame >= c.SourceLength {
		return errors.NewConfigError(fmt.Sprintf(
			"credits start frame %d is past the last frame %d", c.CreditsStartFrame, c.SourceLength-1))
	}

	switch c.Mode {
	case ModePercentile:
	case ModeButter, ModeCurve:
		if c.Target <= 0 {
			return errors.NewConfigError(fmt.Sprintf("%s mode needs a positive target score", c.Mode))
		}
	default:
		return errors.NewConfigError(fmt.Sprintf("unknown adjustment mode %q", c.Mode))
	}
	if c.Mode == ModeCurve {
		if c.ProbeCount < 2 {
			return errors.NewConfigError("curve mode needs at least 2 probes")
		}
		if c.MinLuma >= c.MaxLuma {
			return errors.NewConfigError(fmt.Sprintf(
				"min luma %g must be below max luma %g", c.MinLuma, c.MaxLuma))
		}
	}
	return nil
}
