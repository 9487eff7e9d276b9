package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// JSONReporter outputs NDJSON events for machine consumers.
type JSONReporter struct {
	writer           io.Writer
	mu               sync.Mutex
	lastProgressTime time.Time
}

// NewJSONReporter creates a new JSON reporter that writes to stdout.
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{writer: os.Stdout}
}

// NewJSONReporterWithWriter creates a JSON reporter with a custom writer.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{writer: w}
}

func (r *JSONReporter) timestamp() int64 {
	return time.Now().Unix()
}

func (r *JSONReporter) write(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) RunStarted(info RunInfo) {
	r.write(map[string]interface{}{
		"type":         "run_started",
		"input_file":   info.InputFile,
		"output_dir":   info.OutputDir,
		"encoder":      info.Encoder,
		"mode":         info.Mode,
		"total_chunks": info.TotalChunks,
		"total_frames": info.TotalFrames,
		"seconds":      info.Seconds,
		"timestamp":    r.timestamp(),
	})
}

func (r *JSONReporter) StageProgress(update StageProgress) {
	r.write(map[string]interface{}{
		"type":      "stage_progress",
		"stage":     update.Stage,
		"message":   update.Message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) EncodingStarted(pass PassInfo) {
	r.mu.Lock()
	r.lastProgressTime = time.Time{}
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":         "encoding_started",
		"pass":         pass.Name,
		"total_frames": pass.TotalFrames,
		"chunks":       pass.Chunks,
		"timestamp":    r.timestamp(),
	})
}

func (r *JSONReporter) EncodingProgress(progress ProgressSnapshot) {
	const minInterval = 5 * time.Second

	now := time.Now()
	r.mu.Lock()
	final := progress.ChunksComplete >= progress.ChunksTotal
	if !final && !r.lastProgressTime.IsZero() && now.Sub(r.lastProgressTime) < minInterval {
		r.mu.Unlock()
		return
	}
	r.lastProgressTime = now
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":              "encoding_progress",
		"frames_done":       progress.FramesDone,
		"total_frames":      progress.TotalFrames,
		"chunks_complete":   progress.ChunksComplete,
		"chunks_total":      progress.ChunksTotal,
		"avg_bitrate_kbps":  progress.AvgBitrateKbps,
		"estimated_size_mb": progress.EstimatedSizeMB,
		"timestamp":         r.timestamp(),
	})
}

func (r *JSONReporter) ChunkFinished(result ChunkResult) {
	r.write(map[string]interface{}{
		"type":         "chunk_finished",
		"chunk":        result.ChunkID,
		"frames":       result.Frames,
		"seconds":      result.Seconds,
		"size_bytes":   result.SizeBytes,
		"bitrate_kbps": result.BitrateKbps,
		"attempt":      result.Attempt,
		"timestamp":    r.timestamp(),
	})
}

func (r *JSONReporter) AnalysisSummary(summary AnalysisSummary) {
	shares := make([]map[string]interface{}, len(summary.Shares))
	for i, s := range summary.Shares {
		shares[i] = map[string]interface{}{"q": s.Q, "share": s.Share}
	}

	r.write(map[string]interface{}{
		"type":          "analysis_summary",
		"mode":          summary.Mode,
		"target":        summary.Target,
		"average_score": summary.AverageScore,
		"weighted_crf":  summary.WeightedCRF,
		"median_q":      summary.MedianQ,
		"shares":        shares,
		"timestamp":     r.timestamp(),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.write(map[string]interface{}{
		"type":      "warning",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.write(map[string]interface{}{
		"type":       "error",
		"title":      err.Title,
		"message":    err.Message,
		"context":    err.Context,
		"suggestion": err.Suggestion,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) OperationComplete(message string) {
	r.write(map[string]interface{}{
		"type":      "operation_complete",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Verbose(message string) {
	r.write(map[string]interface{}{
		"type":      "verbose",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}
