package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSeedListParsesIDsAndURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.txt")
	content := "# comment\nabc123\nxyz789 https://example.com/watch?v=xyz789\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed list: %v", err)
	}

	entries, err := LoadSeedList(path)
	if err != nil {
		t.Fatalf("LoadSeedList failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].VideoID != "abc123" || entries[0].URL != "https://www.youtube.com/watch?v=abc123" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].URL != "https://example.com/watch?v=xyz789" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestWindowSpansKeepsOnlyFullWindows(t *testing.T) {
	spans := windowSpans(95, 30)
	if len(spans) != 3 {
		t.Fatalf("expected 3 windows for 95s at 30s window, got %d", len(spans))
	}
	if spans[2].StartS != 60 || spans[2].EndS != 90 {
		t.Fatalf("unexpected last span: %+v", spans[2])
	}
}

func TestWindowSpansEmptyWhenTooShort(t *testing.T) {
	spans := windowSpans(10, 30)
	if len(spans) != 0 {
		t.Fatalf("expected no spans for a too-short recording, got %d", len(spans))
	}
}
