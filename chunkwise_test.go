package chunkwise

import (
	"strings"
	"testing"
)

func TestNewRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{
			name: "unknown encoder",
			opts: []Option{WithEncoder("vp9")},
			want: "unknown encoder",
		},
		{
			name: "butter without target",
			opts: []Option{WithMode(ModeButter)},
			want: "target",
		},
		{
			name: "inverted quantizer range",
			opts: []Option{WithQuantizerRange(40, 20)},
			want: "min q",
		},
		{
			name: "credits past source end",
			opts: []Option{WithCredits(200000, 38)},
			want: "credits start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("input.vpy", "scenes.txt", 143682, 23.976, tt.opts...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestNewAppliesOptions(t *testing.T) {
	ctrl, err := New("input.vpy", "scenes.txt", 143682, 23.976,
		WithEncoder("x265"),
		WithQuantizer(20),
		WithMode(ModeCurve),
		WithTarget(9.0),
		WithMaxParallel(8),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := ctrl.config
	if cfg.Encoder != "x265" || cfg.Q != 20 || cfg.Mode != ModeCurve {
		t.Errorf("options not applied: %+v", cfg)
	}
	if cfg.MaxParallel != 8 {
		t.Errorf("max parallel = %d, want 8", cfg.MaxParallel)
	}
	// Non-SVT bound and minimum chunk length derive during New.
	if cfg.Bound != 2 {
		t.Errorf("bound = %v, want 2", cfg.Bound)
	}
	if cfg.MinChunkLength != 48 {
		t.Errorf("min chunk length = %d, want 48", cfg.MinChunkLength)
	}
}
