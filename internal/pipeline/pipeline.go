package pipeline

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/chunkwise/chunkwise/internal/chunk"
	"github.com/chunkwise/chunkwise/internal/errors"
)

// termGrace is how long a terminated pipeline gets to exit before SIGKILL.
const termGrace = 5 * time.Second

// Unit is one chunk's decode|encode pipeline as the scheduler sees it:
// launch, wait, one combined exit status, one output path.
type Unit interface {
	Chunk() chunk.Chunk
	OutputPath() string
	Run(ctx context.Context) error
}

// Factory builds the pipeline unit for a chunk. The run orchestrator owns
// the concrete command construction; the scheduler only consumes Units.
type Factory interface {
	Build(ch chunk.Chunk) (Unit, error)
}

// ProcessPipeline runs a frame-source decode process piped into an encoder
// process. The pair is a single unit of failure: the encoder's exit status
// is the pipeline's exit status.
type ProcessPipeline struct {
	ChunkRef   chunk.Chunk
	DecodeArgs []string
	EncodeArgs []string
	Output     string
}

// Chunk returns the chunk this pipeline encodes.
func (p *ProcessPipeline) Chunk() chunk.Chunk { return p.ChunkRef }

// OutputPath returns the encoded chunk file path.
func (p *ProcessPipeline) OutputPath() string { return p.Output }

// Run launches both processes and waits for completion. On context
// cancellation each process group receives SIGTERM and, after a bounded
// grace period, SIGKILL. Already-written output files are left in place.
func (p *ProcessPipeline) Run(ctx context.Context) error {
	if len(p.DecodeArgs) == 0 || len(p.EncodeArgs) == 0 {
		return errors.NewAnalysisError("pipeline has no commands")
	}

	decode := exec.CommandContext(ctx, p.DecodeArgs[0], p.DecodeArgs[1:]...)
	encode := exec.CommandContext(ctx, p.EncodeArgs[0], p.EncodeArgs[1:]...)
	for _, cmd := range []*exec.Cmd{decode, encode} {
		cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
		c := cmd
		cmd.Cancel = func() error {
			// Negative pid signals the whole process group.
			return unix.Kill(-c.Process.Pid, unix.SIGTERM)
		}
		cmd.WaitDelay = termGrace
	}

	pipe, err := decode.StdoutPipe()
	if err != nil {
		return errors.NewIOError("failed to create decode pipe", err)
	}
	encode.Stdin = pipe

	var encStderr strings.Builder
	encode.Stderr = &encStderr

	if err := decode.Start(); err != nil {
		return errors.NewCommandStartError(p.DecodeArgs[0], err)
	}
	if err := encode.Start(); err != nil {
		_ = decode.Cancel()
		_ = decode.Wait()
		return errors.NewCommandStartError(p.EncodeArgs[0], err)
	}

	encErr := encode.Wait()
	decErr := decode.Wait()

	if encErr != nil {
		return errors.WrapExecError(p.EncodeArgs[0], encErr, strings.TrimSpace(encStderr.String()))
	}
	if decErr != nil {
		// The encoder accepted the full stream, but the decoder still
		// failed: treat the unit as failed so the chunk is retried.
		return errors.WrapExecError(p.DecodeArgs[0], decErr, "")
	}
	return nil
}
