package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"chaffee-ingest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DatabasePath = filepath.Join(base, "segments.db")
	cfgVal.Paths.VoicesDir = filepath.Join(base, "voices")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Source.Kind = "local_listing"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithSourceKind overrides the video source adapter kind.
func WithSourceKind(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.Kind = kind
	}
}

// WithModelDirs points every model directory config field at dir, writing a
// placeholder file into each so preflight.CheckModelDir passes.
func WithModelDirs(dir string) ConfigOption {
	return func(b *configBuilder) {
		for _, sub := range []string{"asr", "diarizer", "speaker", "text_embedding"} {
			modelDir := filepath.Join(dir, sub)
			if err := os.MkdirAll(modelDir, 0o755); err != nil {
				b.t.Fatalf("mkdir model dir %s: %v", sub, err)
			}
			if err := os.WriteFile(filepath.Join(modelDir, "model.onnx"), []byte("stub"), 0o644); err != nil {
				b.t.Fatalf("write stub model file: %v", err)
			}
		}
		b.cfg.ASR.ModelDir = filepath.Join(dir, "asr")
		b.cfg.Diarizer.ModelDir = filepath.Join(dir, "diarizer")
		b.cfg.SpeakerModel.ModelDir = filepath.Join(dir, "speaker")
		b.cfg.TextEmbedding.ModelDir = filepath.Join(dir, "text_embedding")
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default ingestion pipeline
// binaries are stubbed (yt-dlp, ffmpeg, ffprobe).
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})

		b.cfg.Fetch.YtDlpBinary = "yt-dlp"
		b.cfg.Audio.FFmpegBinary = "ffmpeg"
		b.cfg.Audio.FFprobeBinary = "ffprobe"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DatabasePath)
}
