package reporter

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/chunkwise/chunkwise/internal/util"
)

// distributionBarWidth is the width of the quantizer histogram bars.
const distributionBarWidth = 50

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu        sync.Mutex
	progress  *progressbar.ProgressBar
	lastStage string
	cyan      *color.Color
	green     *color.Color
	yellow    *color.Color
	red       *color.Color
	magenta   *color.Color
	bold      *color.Color
}

// NewTerminalReporter creates a new terminal reporter.
func NewTerminalReporter() *TerminalReporter {
	return &TerminalReporter{
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
	}
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
}

func (r *TerminalReporter) RunStarted(info RunInfo) {
	fmt.Println()
	_, _ = r.cyan.Println("SOURCE")
	r.printLabel(10, "File:", info.InputFile)
	r.printLabel(10, "Output:", info.OutputDir)
	r.printLabel(10, "Duration:", util.FormatDuration(info.Seconds))
	r.printLabel(10, "Frames:", fmt.Sprintf("%d", info.TotalFrames))
	r.printLabel(10, "Encoder:", info.Encoder)
	r.printLabel(10, "Mode:", info.Mode)
	r.printLabel(10, "Chunks:", fmt.Sprintf("%d", info.TotalChunks))
}

func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.mu.Lock()
	if r.lastStage != update.Stage {
		r.mu.Unlock()
		fmt.Println()
		_, _ = r.cyan.Println(strings.ToUpper(update.Stage))
		r.mu.Lock()
		r.lastStage = update.Stage
	}
	r.mu.Unlock()
	fmt.Printf("  %s %s\n", r.magenta.Sprint("›"), update.Message)
}

func (r *TerminalReporter) EncodingStarted(pass PassInfo) {
	r.finishProgress()

	fmt.Println()
	_, _ = r.cyan.Println(strings.ToUpper(pass.Name))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = progressbar.NewOptions(
		pass.TotalFrames,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) EncodingProgress(progress ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}
	_ = r.progress.Set(progress.FramesDone)

	desc := fmt.Sprintf("chunks %d/%d", progress.ChunksComplete, progress.ChunksTotal)
	if progress.AvgBitrateKbps > 0 {
		desc += fmt.Sprintf(", %s, est %.0f MB",
			util.FormatBitrate(progress.AvgBitrateKbps), progress.EstimatedSizeMB)
	}
	r.progress.Describe(desc)
}

func (r *TerminalReporter) ChunkFinished(result ChunkResult) {
	// Per-chunk lines would fight the progress bar; the snapshot carries
	// the aggregate, so completed chunks only go to the verbose stream.
}

func (r *TerminalReporter) AnalysisSummary(summary AnalysisSummary) {
	r.finishProgress()

	fmt.Println()
	_, _ = r.cyan.Println("QUALITY ADJUSTMENT")
	r.printLabel(14, "Mode:", summary.Mode)
	if summary.Target > 0 {
		r.printLabel(14, "Target:", fmt.Sprintf("%.2f", summary.Target))
	}
	if summary.AverageScore > 0 {
		r.printLabel(14, "Average:", fmt.Sprintf("%.5f", summary.AverageScore))
	}

	if len(summary.Shares) > 0 {
		fmt.Printf("  New q values centered around the median q %.2f\n", summary.MedianQ)
		for _, share := range summary.Shares {
			bar := strings.Repeat("#", int(share.Share*distributionBarWidth))
			fmt.Printf("  %.2f: %-*s %.2f%%\n", share.Q, distributionBarWidth, bar, share.Share*100)
		}
	}
	r.printLabel(14, "Weighted CRF:", r.bold.Sprintf("%.2f", summary.WeightedCRF))
}

func (r *TerminalReporter) Warning(message string) {
	fmt.Println()
	_, _ = r.yellow.Printf("WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	_, _ = fmt.Fprintln(os.Stderr)
	_, _ = r.red.Fprintf(os.Stderr, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(os.Stderr, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	r.finishProgress()
	fmt.Println()
	fmt.Printf("%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) Verbose(message string) {
	// Terminal output stays quiet; verbose messages go to the log file.
}
