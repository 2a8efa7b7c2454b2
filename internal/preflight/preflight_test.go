package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chaffee-ingest/internal/config"
	"chaffee-ingest/internal/stage"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckModelDir_OK(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckModelDir("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for populated model dir, got: %s", result.Detail)
	}
}

func TestCheckModelDir_Empty(t *testing.T) {
	result := CheckModelDir("test", t.TempDir())
	if result.Passed {
		t.Fatal("expected failure for empty model dir")
	}
}

func TestCheckModelDir_NotConfigured(t *testing.T) {
	result := CheckModelDir("test", "")
	if result.Passed {
		t.Fatal("expected failure when not configured")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ScratchDir = t.TempDir()
	cfg.Paths.VoicesDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.ASR.ModelDir = populatedDir(t)
	cfg.Diarizer.ModelDir = populatedDir(t)
	cfg.SpeakerModel.ModelDir = populatedDir(t)
	cfg.TextEmbedding.ModelDir = populatedDir(t)
	cfg.Fetch.YtDlpBinary = "sh"
	cfg.Audio.FFmpegBinary = "sh"
	cfg.Audio.FFprobeBinary = "sh"

	results := RunAll(context.Background(), &cfg)
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func populatedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

type fakeChecker struct {
	health stage.Health
}

func (f fakeChecker) HealthCheck() stage.Health { return f.health }

func TestCheckComponents(t *testing.T) {
	results := CheckComponents(
		fakeChecker{health: stage.Healthy("asr")},
		fakeChecker{health: stage.Unhealthy("store", "db unreachable")},
	)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Passed || results[1].Passed {
		t.Fatalf("unexpected results: %+v", results)
	}
}
