package metrics

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/errors"
)

// Frames holds the raw output of one metric evaluation.
type Frames struct {
	// Samples are per-frame scores. Negative values are sentinels for
	// unscored frames and must be filtered before aggregation.
	Samples []float64

	// AverageLuma is the mean luma of the evaluated region, on the
	// engine's native scale. Zero when the engine does not report it.
	AverageLuma float64
}

// Engine scores an encoded rendition of a chunk against the reference.
// Implementations wrap an external metric process; the core never computes a
// metric itself.
type Engine interface {
	Score(ctx context.Context, ch chunk.Chunk, encodedPath string, stride int) (Frames, error)
}

// ProcessEngine runs an external metric command and parses one score per
// line from its stdout. Lines of the form "luma <value>" set the region's
// average luma; anything unparseable is an error.
type ProcessEngine struct {
	// Command is the executable to run.
	Command string

	// ReferencePath is the analysis reference the encodes are compared to.
	ReferencePath string

	// ExtraArgs are appended verbatim after the generated arguments.
	ExtraArgs []string
}

// Score invokes the metric command for one chunk region.
func (e *ProcessEngine) Score(ctx context.Context, ch chunk.Chunk, encodedPath string, stride int) (Frames, error) {
	args := []string{
		"--reference", e.ReferencePath,
		"--distorted", encodedPath,
		"--start", strconv.Itoa(ch.Start),
		"--end", strconv.Itoa(ch.End),
		"--every", strconv.Itoa(max(stride, 1)),
	}
	args = append(args, e.ExtraArgs...)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Frames{}, errors.NewCommandStartError(e.Command, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Frames{}, errors.NewCommandStartError(e.Command, err)
	}

	var frames Frames
	scanner := bufio.NewScanner(stdout)
	var parseErr error
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "luma "); ok {
			frames.AverageLuma, parseErr = strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if parseErr != nil {
				break
			}
			continue
		}
		var score float64
		score, parseErr = strconv.ParseFloat(line, 64)
		if parseErr != nil {
			parseErr = fmt.Errorf("unexpected metric output %q: %w", line, parseErr)
			break
		}
		frames.Samples = append(frames.Samples, score)
	}

	waitErr := cmd.Wait()
	if parseErr != nil {
		return Frames{}, errors.NewAnalysisError(parseErr.Error())
	}
	if waitErr != nil {
		return Frames{}, errors.WrapExecError(e.Command, waitErr, stderr.String())
	}
	if err := scanner.Err(); err != nil {
		return Frames{}, errors.NewAnalysisError(fmt.Sprintf("failed to read metric output: %v", err))
	}
	return frames, nil
}
