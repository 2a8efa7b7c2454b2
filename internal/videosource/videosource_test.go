package videosource_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"chaffee-ingest/internal/videosource"
)

func drain(t *testing.T, src videosource.Source) ([]*videosource.VideoDescriptor, error) {
	t.Helper()
	ctx := context.Background()
	var out []*videosource.VideoDescriptor
	for {
		desc, ok, err := src.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, desc)
	}
}

func TestExplicitVideoIDsTakePrecedence(t *testing.T) {
	src, err := videosource.New(videosource.Config{
		Kind:     "external_api",
		VideoIDs: []string{"abc123", "def456"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := drain(t, src)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(got))
	}
	if got[0].VideoID != "abc123" || got[1].VideoID != "def456" {
		t.Fatalf("unexpected descriptors: %+v", got)
	}
}

func TestVideoIDsFileIsMerged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte("id-one\nid-two\n\n"), 0o644); err != nil {
		t.Fatalf("write ids file: %v", err)
	}
	src, err := videosource.New(videosource.Config{Kind: "external_api", VideoIDsFile: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := drain(t, src)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(got) != 2 || got[0].VideoID != "id-one" || got[1].VideoID != "id-two" {
		t.Fatalf("unexpected descriptors: %+v", got)
	}
}

func TestExplicitIDsRespectLimit(t *testing.T) {
	src, err := videosource.New(videosource.Config{
		Kind:     "external_api",
		VideoIDs: []string{"a", "b", "c"},
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := drain(t, src)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit to cap at 2, got %d", len(got))
	}
}

func TestUnknownKindIsRejected(t *testing.T) {
	_, err := videosource.New(videosource.Config{Kind: "nonsense"})
	if err == nil {
		t.Fatal("expected error for unknown source kind")
	}
}

func TestExplicitIDsGetConstructedWatchURL(t *testing.T) {
	src, err := videosource.New(videosource.Config{Kind: "external_api", VideoIDs: []string{"xyz"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := drain(t, src)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if got[0].URL == "" {
		t.Fatal("expected a constructed watch URL for explicit ids")
	}
}
