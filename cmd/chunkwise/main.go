// Package main provides the CLI entry point for chunkwise.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chunkwise/chunkwise/internal/config"
	"github.com/chunkwise/chunkwise/internal/logging"
	"github.com/chunkwise/chunkwise/internal/reporter"
	"github.com/chunkwise/chunkwise/internal/run"
	"github.com/chunkwise/chunkwise/internal/util"
)

const appVersion = "0.3.0"

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chunkwise",
		Short:         "Scene-based chunked video encoding with adaptive per-chunk quality",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       appVersion,
	}
	root.AddCommand(encodeCommand())
	return root
}

// encodeFlags carries the parsed encode command options.
type encodeFlags struct {
	input        string
	scenes       string
	workDir      string
	presetFile   string
	presetName   string
	sourceLength int
	fps          float64

	encoder        string
	q              float64
	finalPreset    int
	analysisPreset int
	threads        int
	filmGrain      int

	minChunkLength int
	maxParallel    int
	creditsStart   int
	creditsQ       float64

	mode          string
	target        float64
	stride        int
	metricWorkers int
	metricCommand string
	reuse         bool

	minQ       float64
	maxQ       float64
	bound      float64
	probes     int
	probeFrame int
	minLuma    float64
	maxLuma    float64
	pq         bool

	jsonOutput bool
	verbose    bool
}

func encodeCommand() *cobra.Command {
	var flags encodeFlags

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Plan chunks, derive per-chunk quantizers, and encode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, &flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.input, "input", "i", "", "source video or frame-server script")
	f.StringVar(&flags.scenes, "scenes", "", "scene-change list file, one frame index per line")
	f.StringVarP(&flags.workDir, "work-dir", "o", "", "working directory for chunk outputs")
	f.StringVar(&flags.presetFile, "preset-file", "", "YAML preset file")
	f.StringVar(&flags.presetName, "preset", "", "preset name from the preset file")
	f.IntVar(&flags.sourceLength, "source-length", 0, "source length in frames")
	f.Float64Var(&flags.fps, "fps", 0, "source framerate")

	f.StringVar(&flags.encoder, "encoder", "svt", "encoder family: svt, x265, rav1e, aom")
	f.Float64Var(&flags.q, "q", 30, "default quantizer")
	f.IntVar(&flags.finalPreset, "cpu", config.DefaultFinalPreset, "encoder preset for the final pass")
	f.IntVar(&flags.analysisPreset, "qadjust-cpu", config.DefaultAnalysisPreset, "encoder preset for analysis passes")
	f.IntVar(&flags.threads, "threads", 0, "encoder thread count, 0 for encoder default")
	f.IntVar(&flags.filmGrain, "film-grain", 0, "film grain synthesis strength")

	f.IntVar(&flags.minChunkLength, "min-chunk-length", 0, "minimum chunk length in frames, 0 derives from framerate")
	f.IntVar(&flags.maxParallel, "max-parallel-encodes", config.DefaultMaxParallel, "encode worker pool size")
	f.IntVar(&flags.creditsStart, "credits-start-frame", -1, "first frame of the credits region")
	f.Float64Var(&flags.creditsQ, "credits-q", 0, "credits quantizer, 0 derives from q")

	f.StringVar(&flags.mode, "mode", config.ModePercentile, "adjustment policy: percentile, butter, curve")
	f.Float64Var(&flags.target, "target", 0, "target metric score for butter and curve modes")
	f.IntVar(&flags.stride, "qadjust-skip", 0, "score every Nth frame, 0 scores all")
	f.IntVar(&flags.metricWorkers, "qadjust-workers", config.DefaultMetricWorkers, "metric evaluation pool size")
	f.StringVar(&flags.metricCommand, "metric-command", "", "external metric command")
	f.BoolVar(&flags.reuse, "qadjust-reuse", false, "reuse the persisted adjustment record instead of re-running analysis")

	f.Float64Var(&flags.minQ, "min-q", config.DefaultMinQ, "lowest adjusted quantizer")
	f.Float64Var(&flags.maxQ, "max-q", config.DefaultMaxQ, "highest adjusted quantizer")
	f.Float64Var(&flags.bound, "bound", 0, "percentile mode half-range, 0 derives from q")
	f.IntVar(&flags.probes, "probes", config.DefaultProbeCount, "probe count for curve mode")
	f.IntVar(&flags.probeFrame, "probe-window", 0, "probe window length in frames, 0 derives from framerate")
	f.Float64Var(&flags.minLuma, "min-luma", config.DefaultMinLuma, "luma at or below which quantizer raises are suppressed")
	f.Float64Var(&flags.maxLuma, "max-luma", config.DefaultMaxLuma, "luma at or above which quantizer raises are fully applied")
	f.BoolVar(&flags.pq, "pq", false, "source uses the PQ transfer, selects the HDR damping ramp")

	f.BoolVar(&flags.jsonOutput, "json", false, "emit NDJSON events instead of terminal output")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	for _, name := range []string{"input", "scenes", "source-length", "fps"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runEncode(cmd *cobra.Command, flags *encodeFlags) error {
	cfg := config.NewConfig(flags.input, flags.scenes, flags.workDir)
	if flags.presetFile != "" {
		pf, err := config.LoadPresets(flags.presetFile)
		if err != nil {
			return err
		}
		if err := cfg.ApplyPreset(pf, flags.presetName); err != nil {
			return err
		}
	}

	// Explicit flags override preset values.
	cfg.SourceLength = flags.sourceLength
	cfg.FPS = flags.fps
	cfg.MaxParallel = flags.maxParallel
	cfg.MetricWorkers = flags.metricWorkers
	cfg.CreditsStartFrame = flags.creditsStart
	cfg.Stride = flags.stride
	cfg.Reuse = flags.reuse
	cfg.MinQ = flags.minQ
	cfg.MaxQ = flags.maxQ
	cfg.PQ = flags.pq
	applyChanged(cmd, map[string]func(){
		"encoder":          func() { cfg.Encoder = flags.encoder },
		"q":                func() { cfg.Q = flags.q },
		"cpu":              func() { cfg.FinalPreset = flags.finalPreset },
		"qadjust-cpu":      func() { cfg.AnalysisPreset = flags.analysisPreset },
		"threads":          func() { cfg.Threads = flags.threads },
		"film-grain":       func() { cfg.FilmGrain = flags.filmGrain },
		"min-chunk-length": func() { cfg.MinChunkLength = flags.minChunkLength },
		"credits-q":        func() { cfg.CreditsQ = flags.creditsQ },
		"mode":             func() { cfg.Mode = flags.mode },
		"target":           func() { cfg.Target = flags.target },
		"metric-command":   func() { cfg.MetricCommand = flags.metricCommand },
		"bound":            func() { cfg.Bound = flags.bound },
		"probes":           func() { cfg.ProbeCount = flags.probes },
		"probe-window":     func() { cfg.ProbeWindowLength = flags.probeFrame },
		"min-luma":         func() { cfg.MinLuma = flags.minLuma },
		"max-luma":         func() { cfg.MaxLuma = flags.maxLuma },
	})

	cfg.ApplyDerived()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = util.GetFileStem(cfg.Input) + "_chunkwise"
	}
	if err := util.EnsureDirectory(cfg.WorkDir); err != nil {
		return err
	}
	initLogging(cfg.WorkDir, flags.verbose)

	rep := buildReporter(flags)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run.New(cfg, rep, nil).Execute(ctx)
}

// applyChanged invokes the setter for every flag the user set explicitly.
func applyChanged(cmd *cobra.Command, setters map[string]func()) {
	for name, set := range setters {
		if cmd.Flags().Changed(name) {
			set()
		}
	}
}

func initLogging(workDir string, verbose bool) {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	logPath := filepath.Join(workDir, "encode_log.txt")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", logPath, err)
		logging.Init(level, os.Stderr)
		return
	}
	logging.Init(level, logFile)
}

func buildReporter(flags *encodeFlags) reporter.Reporter {
	if flags.jsonOutput {
		return reporter.NewJSONReporter()
	}
	return reporter.NewTerminalReporter()
}
