// Package chunk provides the chunk data model and the scene-change planner.
package chunk

// Chunk is a contiguous frame range encoded independently.
type Chunk struct {
	// ID is a stable, 1-based ordering key independent of execution order.
	ID int

	// Start and End are inclusive frame indices into the source.
	Start int
	End   int

	// Length is End - Start + 1.
	Length int

	// IsCredits marks the trailing credits region, which is encoded with a
	// different quantizer and speed.
	IsCredits bool

	// Q is the current quantizer. Set by the planner, overwritten once by
	// the quality adjustment, then immutable for the final pass.
	Q float64
}

// Seconds returns the chunk duration at the given framerate.
func (c Chunk) Seconds(fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(c.Length) / fps
}

// TotalFrames sums the lengths of all chunks.
func TotalFrames(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.Length
	}
	return total
}

// AnalysisFrames sums the lengths of all non-credits chunks.
func AnalysisFrames(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		if !c.IsCredits {
			total += c.Length
		}
	}
	return total
}
