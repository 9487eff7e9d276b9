package run

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/pipeline"
)

// CommandFactory builds decode|encode pipelines for chunks: an ffmpeg
// y4m decode of the chunk's frame range piped into the encoder.
type CommandFactory struct {
	// Input is the source the decode command reads.
	Input string
	// OutputDir receives the encoded chunk files.
	OutputDir string
	// Prefix distinguishes pass outputs, e.g. "encoded_chunk_pass1_".
	Prefix string
	// Params configures the encoder. A chunk's own quantizer overrides
	// Params.Quantizer, so one factory serves per-chunk adjusted values.
	Params pipeline.EncoderParams
}

// OutputPath returns where a chunk's encoded output lands.
func (f *CommandFactory) OutputPath(ch chunk.Chunk) string {
	name := fmt.Sprintf("%s%d%s", f.Prefix, ch.ID, f.Params.Family.OutputExt())
	return filepath.Join(f.OutputDir, name)
}

// Build implements pipeline.Factory.
func (f *CommandFactory) Build(ch chunk.Chunk) (pipeline.Unit, error) {
	output := f.OutputPath(ch)
	params := f.Params.WithQuantizer(ch.Q)
	return &pipeline.ProcessPipeline{
		ChunkRef:   ch,
		DecodeArgs: decodeArgs(f.Input, ch),
		EncodeArgs: append([]string{params.Family.Binary()}, params.Args(output, ch.Length)...),
		Output:     output,
	}, nil
}

// decodeArgs produces the y4m frame-source command for one chunk's
// inclusive frame range.
func decodeArgs(input string, ch chunk.Chunk) []string {
	return []string{
		"ffmpeg", "-v", "error", "-nostdin",
		"-i", input,
		"-vf", fmt.Sprintf("select=between(n\\,%d\\,%d),setpts=N/FRAME_RATE/TB", ch.Start, ch.End),
		"-frames:v", strconv.Itoa(ch.Length),
		"-f", "yuv4mpegpipe", "-strict", "-1",
		"-",
	}
}
