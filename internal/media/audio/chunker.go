package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"chaffee-ingest/internal/media/ffprobe"
)

// Chunk is one windowed slice of 16kHz mono PCM, with its offset into the
// full recording so callers can re-anchor timestamps.
type Chunk struct {
	Samples []float32
	OffsetS float64
}

// Chunker streams a long recording's PCM in fixed windows, backed by an
// ffmpeg subprocess piped through stdout rather than a single in-memory
// decode, so a multi-hour recording doesn't have to fit in RAM at once.
type Chunker struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	reader     *bufio.Reader
	windowSize int
	offset     float64
}

const defaultChunkWindowS = 120

func newChunker(ctx context.Context, cfg DecodeConfig, path string, probe ffprobe.Result) *Chunker {
	_ = probe // duration is informational only; the stream is read until EOF regardless
	binary := cfg.FFmpegBinary
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{
		"-v", "error",
		"-i", path,
		"-f", "f32le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", targetSampleRate),
		"-",
	}
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return &Chunker{cmd: cmd, windowSize: defaultChunkWindowS * targetSampleRate}
}

// Start launches the decode subprocess. Must be called before Next.
func (c *Chunker) Start() error {
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("chunker stdout pipe: %w", err)
	}
	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("start chunked ffmpeg decode: %w", err)
	}
	c.stdout = stdout
	c.reader = bufio.NewReaderSize(stdout, c.windowSize*4)
	return nil
}

// Next returns the next chunk of PCM, or io.EOF once the stream is exhausted.
func (c *Chunker) Next() (Chunk, error) {
	buf := make([]byte, c.windowSize*4)
	n, err := io.ReadFull(c.reader, buf)
	if n == 0 && err != nil {
		return Chunk{}, io.EOF
	}
	samples := bytesToFloat32LE(buf[:n-(n%4)])
	chunk := Chunk{Samples: samples, OffsetS: c.offset}
	c.offset += float64(len(samples)) / float64(targetSampleRate)

	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return chunk, fmt.Errorf("read chunk: %w", err)
	}
	return chunk, nil
}

// Close waits for the decode subprocess to exit and releases its pipe.
func (c *Chunker) Close() error {
	if c.stdout != nil {
		_ = c.stdout.Close()
	}
	return c.cmd.Wait()
}
