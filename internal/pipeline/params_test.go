package pipeline

import (
	"slices"
	"testing"
)

func TestSVTArgs(t *testing.T) {
	p := EncoderParams{
		Family:      FamilySVT,
		Quantizer:   27.25,
		Preset:      2,
		KeyInt:      240,
		TileColumns: 2,
		TileRows:    1,
		FilmGrain:   8,
	}
	args := p.Args("/tmp/encoded_chunk_3.ivf", 150)

	for _, pair := range [][2]string{
		{"--crf", "27.25"},
		{"--preset", "2"},
		{"--keyint", "240"},
		{"--film-grain", "8"},
		{"-b", "/tmp/encoded_chunk_3.ivf"},
	} {
		i := slices.Index(args, pair[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != pair[1] {
			t.Errorf("args missing %q %q: %v", pair[0], pair[1], args)
		}
	}
	if args[len(args)-2] != "-i" || args[len(args)-1] != "-" {
		t.Errorf("SVT args must end with stdin input: %v", args)
	}
}

func TestX265ArgsIncludeFrameCount(t *testing.T) {
	p := EncoderParams{Family: FamilyX265, Quantizer: 18, Preset: 3, KeyInt: 250}
	args := p.Args("/tmp/encoded_chunk_1.hevc", 550)

	i := slices.Index(args, "--frames")
	if i < 0 || args[i+1] != "550" {
		t.Errorf("x265 args missing frame count: %v", args)
	}
	if slices.Index(args, "--y4m") < 0 {
		t.Errorf("x265 args missing --y4m: %v", args)
	}
	if i := slices.Index(args, "--preset"); i < 0 || args[i+1] != "slow" {
		t.Errorf("x265 preset mapping wrong: %v", args)
	}
}

func TestForAnalysis(t *testing.T) {
	p := EncoderParams{
		Family:      FamilySVT,
		Preset:      2,
		FilmGrain:   12,
		TileColumns: 0,
		TileRows:    2,
	}
	a := p.ForAnalysis(8)
	if a.Preset != 8 {
		t.Errorf("analysis preset %d, want 8", a.Preset)
	}
	if a.FilmGrain != 0 {
		t.Errorf("analysis film grain %d, want 0", a.FilmGrain)
	}
	if a.TileColumns != 1 || a.TileRows != 0 {
		t.Errorf("analysis tiling %d/%d, want 1/0", a.TileColumns, a.TileRows)
	}

	// Final-pass parameters are untouched.
	if p.Preset != 2 || p.FilmGrain != 12 {
		t.Error("ForAnalysis mutated the receiver")
	}
}

func TestWithQuantizer(t *testing.T) {
	p := EncoderParams{Family: FamilyRav1e, Quantizer: 80}
	q := p.WithQuantizer(100)
	if q.Quantizer != 100 || p.Quantizer != 80 {
		t.Errorf("WithQuantizer: got %v, receiver %v", q.Quantizer, p.Quantizer)
	}
}

func TestFamilyExtensions(t *testing.T) {
	if FamilySVT.OutputExt() != ".ivf" || FamilyX265.OutputExt() != ".hevc" {
		t.Error("wrong output extensions")
	}
	if FamilySVT.Binary() != "SvtAv1EncApp" {
		t.Errorf("SVT binary %q", FamilySVT.Binary())
	}
}
