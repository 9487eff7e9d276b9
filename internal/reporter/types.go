// Package reporter provides progress reporting interfaces and implementations.
package reporter

// RunInfo describes the encode before work starts.
type RunInfo struct {
	InputFile   string
	OutputDir   string
	Encoder     string
	Mode        string
	TotalChunks int
	TotalFrames int
	Seconds     float64
}

// StageProgress represents a generic stage update.
type StageProgress struct {
	Stage   string
	Message string
}

// PassInfo describes one scheduler pass over the chunk list.
type PassInfo struct {
	Name        string
	TotalFrames int
	Chunks      int
}

// ProgressSnapshot contains encoding progress for the current pass.
type ProgressSnapshot struct {
	FramesDone      int
	TotalFrames     int
	ChunksComplete  int
	ChunksTotal     int
	AvgBitrateKbps  float64
	EstimatedSizeMB float64
}

// ChunkResult contains one completed chunk's accounting.
type ChunkResult struct {
	ChunkID     int
	Frames      int
	Seconds     float64
	SizeBytes   uint64
	BitrateKbps float64
	Attempt     int
}

// QuantizerShare is one quantizer value's share of the source runtime.
type QuantizerShare struct {
	Q     float64
	Share float64
}

// AnalysisSummary contains the adjustment outcome for display.
type AnalysisSummary struct {
	Mode         string
	Target       float64
	AverageScore float64
	WeightedCRF  float64
	MedianQ      float64
	Shares       []QuantizerShare
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}
