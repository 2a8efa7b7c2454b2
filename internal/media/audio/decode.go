package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	waudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"chaffee-ingest/internal/media/ffprobe"
)

const targetSampleRate = 16000

// PCM16kMono is mono PCM audio resampled to 16kHz, the format every model
// wrapper in this pipeline (ASR, diarization, voice embedding) expects.
type PCM16kMono struct {
	Samples   []float32
	DurationS float64
}

// DecodeConfig selects the binaries and thresholds used for decoding.
type DecodeConfig struct {
	FFmpegBinary    string
	FFprobeBinary   string
	ChunkThresholdS int
}

// Decode loads path into 16kHz mono PCM. The RIFF/WAVE fast path is tried
// first; any other container (or a WAVE file the fast path can't parse)
// falls back to an ffmpeg subprocess decode.
func Decode(ctx context.Context, cfg DecodeConfig, path string) (PCM16kMono, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		pcm, err := decodeWav(path)
		if err == nil {
			return pcm, nil
		}
	}
	return decodeWithFFmpeg(ctx, cfg, path)
}

// ShouldChunk reports whether a recording of the given duration should go
// through DecodeChunked rather than Decode, per cfg.ChunkThresholdS.
func ShouldChunk(durationS float64, cfg DecodeConfig) bool {
	return cfg.ChunkThresholdS > 0 && durationS > float64(cfg.ChunkThresholdS)
}

// DecodeChunked is used for recordings whose probed duration exceeds
// cfg.ChunkThresholdS. It returns a Chunker that decodes path through an
// ffmpeg subprocess (there is no WAV fast path here); callers call Start and
// then read fixed windows with Next. Whether the windows are kept in memory
// together is up to the caller.
func DecodeChunked(ctx context.Context, cfg DecodeConfig, path string) (*Chunker, error) {
	probe, err := ffprobe.Inspect(ctx, cfg.FFprobeBinary, path)
	if err != nil {
		return nil, fmt.Errorf("probe before chunked decode: %w", err)
	}
	return newChunker(ctx, cfg, path, probe), nil
}

func decodeWav(path string) (PCM16kMono, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM16kMono{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return PCM16kMono{}, fmt.Errorf("not a valid wav file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM16kMono{}, fmt.Errorf("read wav pcm: %w", err)
	}

	mono := downmixToMono(buf)
	sourceRate := int(dec.SampleRate)
	if sourceRate <= 0 {
		sourceRate = buf.Format.SampleRate
	}

	resampled := resampleLinear(mono, sourceRate, targetSampleRate)
	return PCM16kMono{
		Samples:   resampled,
		DurationS: float64(len(resampled)) / float64(targetSampleRate),
	}, nil
}

func downmixToMono(buf *waudio.IntBuffer) []float32 {
	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	maxAmplitude := float32(int(1) << (buf.SourceBitDepth - 1))
	if buf.SourceBitDepth <= 0 {
		maxAmplitude = float32(1 << 15)
	}

	frameCount := len(buf.Data) / channels
	mono := make([]float32, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c])
		}
		mono[i] = (sum / float32(channels)) / maxAmplitude
	}
	return mono
}

// resampleLinear does linear interpolation resampling, adequate for the
// speech-only 16kHz target this pipeline needs; it is not a general-purpose
// audio resampler.
func resampleLinear(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else if idx < len(samples) {
			out[i] = samples[idx]
		}
	}
	return out
}

func decodeWithFFmpeg(ctx context.Context, cfg DecodeConfig, path string) (PCM16kMono, error) {
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
	out, err := cmd.Output()
	if err != nil {
		return PCM16kMono{}, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}
	samples := bytesToFloat32LE(out)
	return PCM16kMono{
		Samples:   samples,
		DurationS: float64(len(samples)) / float64(targetSampleRate),
	}, nil
}

func bytesToFloat32LE(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
