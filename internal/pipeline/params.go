// Package pipeline models one chunk's decode|encode unit and the typed
// encoder parameters that configure it.
package pipeline

import (
	"fmt"
	"strconv"
)

// Family identifies the target encoder.
type Family string

const (
	FamilySVT   Family = "svt"
	FamilyX265  Family = "x265"
	FamilyRav1e Family = "rav1e"
	FamilyAom   Family = "aom"
)

// Binary returns the encoder executable name.
func (f Family) Binary() string {
	switch f {
	case FamilySVT:
		return "SvtAv1EncApp"
	case FamilyX265:
		return "x265"
	case FamilyRav1e:
		return "rav1e"
	case FamilyAom:
		return "aomenc"
	default:
		return string(f)
	}
}

// OutputExt returns the chunk container extension for the family.
func (f Family) OutputExt() string {
	if f == FamilyX265 {
		return ".hevc"
	}
	return ".ivf"
}

// EncoderParams is the typed parameter set handed to a formatter. The
// adjustment engine only ever touches Quantizer; everything else is owned by
// the run configuration.
type EncoderParams struct {
	Family      Family
	Quantizer   float64
	Preset      int
	Threads     int
	TileColumns int
	TileRows    int
	KeyInt      int
	FilmGrain   int

	// Extra carries preset-file parameters verbatim, already split into
	// single arguments.
	Extra []string
}

// ForAnalysis returns a copy relaxed for a metric analysis pass: faster
// preset, film grain synthesis off, and fixed tiling so the analysis encode
// measures the codec, not the tiling configuration.
func (p EncoderParams) ForAnalysis(analysisPreset int) EncoderParams {
	out := p
	out.Preset = analysisPreset
	out.FilmGrain = 0
	if p.Family == FamilySVT {
		out.TileColumns = 1
		out.TileRows = 0
	}
	return out
}

// WithQuantizer returns a copy at the given quantizer.
func (p EncoderParams) WithQuantizer(q float64) EncoderParams {
	out := p
	out.Quantizer = q
	return out
}

// Args formats the full encoder command for one chunk of frames frames,
// writing to outputPath and reading raw video from stdin.
func (p EncoderParams) Args(outputPath string, frames int) []string {
	q := strconv.FormatFloat(p.Quantizer, 'f', -1, 64)
	switch p.Family {
	case FamilySVT:
		args := []string{
			"--preset", strconv.Itoa(p.Preset),
			"--crf", q,
			"--keyint", strconv.Itoa(p.KeyInt),
			"--tile-columns", strconv.Itoa(p.TileColumns),
			"--tile-rows", strconv.Itoa(p.TileRows),
			"--film-grain", strconv.Itoa(p.FilmGrain),
		}
		if p.Threads > 0 {
			args = append(args, "--lp", strconv.Itoa(p.Threads))
		}
		args = append(args, p.Extra...)
		return append(args, "-b", outputPath, "-i", "-")
	case FamilyX265:
		args := []string{
			"--y4m", "--no-progress",
			"--frames", strconv.Itoa(frames),
			"--preset", x265Preset(p.Preset),
			"--crf", q,
			"--keyint", strconv.Itoa(p.KeyInt),
		}
		if p.Threads > 0 {
			args = append(args, "--pools", strconv.Itoa(p.Threads))
		}
		args = append(args, p.Extra...)
		return append(args, "--output", outputPath, "--input", "-")
	case FamilyRav1e:
		args := []string{
			"--speed", strconv.Itoa(p.Preset),
			"--quantizer", q,
			"--keyint", strconv.Itoa(p.KeyInt),
		}
		args = append(args, p.Extra...)
		return append(args, "-q", "-o", outputPath, "-")
	case FamilyAom:
		args := []string{
			"-q", "--ivf", "--passes=1",
			fmt.Sprintf("--cpu-used=%d", p.Preset),
			fmt.Sprintf("--cq-level=%s", q),
			fmt.Sprintf("--kf-max-dist=%d", p.KeyInt),
		}
		args = append(args, p.Extra...)
		return append(args, "-o", outputPath, "-")
	default:
		return append(p.Extra, "-o", outputPath, "-")
	}
}

// x265Preset maps a numeric speed level onto the named x265 presets, slowest
// first, clamping at the ends.
func x265Preset(level int) string {
	names := []string{
		"placebo", "veryslow", "slower", "slow", "medium",
		"fast", "faster", "veryfast", "superfast", "ultrafast",
	}
	if level < 0 {
		level = 0
	}
	if level >= len(names) {
		level = len(names) - 1
	}
	return names[level]
}
