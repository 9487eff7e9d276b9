package qadjust

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/errors"
)

// Params captures the run settings the adjustment depended on. The chunking
// parameters are validated on reuse: a record produced under a different
// chunk plan cannot be applied to the current one.
type Params struct {
	Mode           string  `json:"mode"`
	AnalysisPreset int     `json:"analysis_preset"`
	MinChunkLength int     `json:"min_chunk_length"`
	KeyInt         int     `json:"keyint"`
	Target         float64 `json:"target,omitempty"`
	AverageScore   float64 `json:"average_score,omitempty"`
}

// ChunkAdjustment is one chunk's entry in the persisted record. Only the
// fields relevant to the producing policy are populated.
type ChunkAdjustment struct {
	ChunkNumber int      `json:"chunk_number"`
	Length      int      `json:"length"`
	Percentile5 *float64 `json:"percentile_5th,omitempty"`
	CRFPass2    *float64 `json:"crf_pass2,omitempty"`
	ScorePass1  *float64 `json:"score_pass1,omitempty"`
	ScorePass2  *float64 `json:"score_pass2,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	AverageLuma *float64 `json:"average_luma,omitempty"`
	AdjustedQ   float64  `json:"adjusted_q"`
}

// Record is the on-disk adjustment result, written after every analysis
// run and read back by a reuse run.
type Record struct {
	QualityParameters Params            `json:"quality_parameters"`
	WeightedCRF       float64           `json:"weighted_crf"`
	Chunks            []ChunkAdjustment `json:"chunks"`
}

// Save writes the record as indented JSON.
func Save(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return errors.NewJSONParseError("adjustment record", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewIOError(fmt.Sprintf("failed to write adjustment record %s", path), err)
	}
	return nil
}

// Load reads a previously saved record.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(fmt.Sprintf("failed to read adjustment record %s", path), err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.NewJSONParseError("adjustment record", err)
	}
	return &rec, nil
}

// ValidateReuse checks that the record was produced under the same chunking
// parameters as the current run. A mismatch means the persisted per-chunk
// quantizers index a different chunk plan, so reuse must abort before any
// encoding work starts.
func (r *Record) ValidateReuse(minChunkLength, keyInt int) error {
	if r.QualityParameters.MinChunkLength != minChunkLength {
		return errors.NewReuseError(fmt.Sprintf(
			"record was created with min chunk length %d, current run uses %d; re-run the analysis",
			r.QualityParameters.MinChunkLength, minChunkLength))
	}
	if r.QualityParameters.KeyInt != keyInt {
		return errors.NewReuseError(fmt.Sprintf(
			"record was created with keyint %d, current run uses %d; re-run the analysis",
			r.QualityParameters.KeyInt, keyInt))
	}
	return nil
}

// Apply sets each non-credits chunk's quantizer from the record, matching
// by chunk number. Every non-credits chunk must have an entry.
func (r *Record) Apply(chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	byNumber := make(map[int]float64, len(r.Chunks))
	for _, entry := range r.Chunks {
		byNumber[entry.ChunkNumber] = entry.AdjustedQ
	}

	out := sortedByID(chunks)
	for i := range out {
		if out[i].IsCredits {
			continue
		}
		q, ok := byNumber[out[i].ID]
		if !ok {
			return nil, errors.NewReuseError(fmt.Sprintf(
				"record has no entry for chunk %d; re-run the analysis", out[i].ID))
		}
		out[i].Q = q
	}
	return out, nil
}
