package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	cfg.Source.ChannelFeedURL = "https://www.youtube.com/feeds/videos.xml?channel_id=UC123"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for missing file")
	}
	if resolved == "" {
		t.Fatalf("expected a resolved path")
	}
	if cfg.Workflow.IOWorkers != defaultIOWorkers {
		t.Fatalf("io_workers = %d, want %d", cfg.Workflow.IOWorkers, defaultIOWorkers)
	}
}

func TestLoadParsesTOMLAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[paths]
database_path = "~/segments.db"

[source]
kind = "local_listing"
channel_feed_url = "https://example.com/feed.xml"

[workflow]
io_workers = 4
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatalf("expected exists=true")
	}
	if cfg.Workflow.IOWorkers != 4 {
		t.Fatalf("io_workers = %d, want 4", cfg.Workflow.IOWorkers)
	}
	if filepath.Base(cfg.Paths.DatabasePath) != "segments.db" {
		t.Fatalf("database_path = %q", cfg.Paths.DatabasePath)
	}
	if !filepath.IsAbs(cfg.Paths.DatabasePath) {
		t.Fatalf("expected absolute database_path, got %q", cfg.Paths.DatabasePath)
	}
}

func TestValidateRejectsUnknownSourceKind(t *testing.T) {
	cfg := Default()
	cfg.Source.Kind = "bogus"
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unsupported source.kind")
	}
}

func TestValidateRequiresPositiveWorkers(t *testing.T) {
	cfg := Default()
	cfg.Source.ChannelFeedURL = "https://example.com/feed.xml"
	cfg.Workflow.IOWorkers = 0
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	// normalize refills zero values with defaults, so force it back to zero
	// after normalization to exercise the validator directly.
	cfg.Workflow.IOWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for io_workers = 0")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("CHAFFEE_MIN_SIM", "0.75")
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Attribution.ChaffeeMinSim != 0.75 {
		t.Fatalf("chaffee_min_sim = %v, want 0.75", cfg.Attribution.ChaffeeMinSim)
	}
}
