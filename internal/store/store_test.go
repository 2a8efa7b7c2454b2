package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chaffee-ingest/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "segments.db")
	s, err := store.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertSourceIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	desc := store.SourceDescriptor{SourceID: "vid-1", Title: "Episode 1", SourceType: "youtube"}
	id1, err := s.UpsertSource(ctx, desc)
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	id2, err := s.UpsertSource(ctx, desc)
	if err != nil {
		t.Fatalf("second UpsertSource failed: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected idempotent id, got %q and %q", id1, id2)
	}
}

func TestInsertSegmentsSetsIngestedAndClassifies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSource(ctx, store.SourceDescriptor{SourceID: "vid-2", Title: "Monologue"})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}

	segments := []store.Segment{
		{SegID: "seg-1", SourceID: "vid-2", StartS: 0, EndS: 2, Text: "hello", SpeakerLabel: store.SpeakerPrimary, SpeakerConfidence: 0.9, TextEmbedding: []float32{0.1, 0.2, 0.3}},
		{SegID: "seg-2", SourceID: "vid-2", StartS: 2, EndS: 4, Text: "world", SpeakerLabel: store.SpeakerPrimary, SpeakerConfidence: 0.9, TextEmbedding: []float32{0.15, 0.22, 0.29}},
	}
	if err := s.InsertSegments(ctx, "vid-2", segments); err != nil {
		t.Fatalf("InsertSegments failed: %v", err)
	}

	ingested, err := s.IsIngested(ctx, "vid-2")
	if err != nil {
		t.Fatalf("IsIngested failed: %v", err)
	}
	if !ingested {
		t.Fatal("expected source to be marked ingested")
	}

	// Re-inserting must fail: a source is only ever committed once.
	if err := s.InsertSegments(ctx, "vid-2", segments); err == nil {
		t.Fatal("expected second insert for the same source to fail")
	}
}

func TestNearestTextFindsClosestVector(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSource(ctx, store.SourceDescriptor{SourceID: "vid-3"})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	segments := []store.Segment{
		{SegID: "a", SourceID: "vid-3", StartS: 0, EndS: 1, Text: "a", SpeakerLabel: store.SpeakerPrimary, TextEmbedding: []float32{1, 0, 0}},
		{SegID: "b", SourceID: "vid-3", StartS: 1, EndS: 2, Text: "b", SpeakerLabel: store.SpeakerPrimary, TextEmbedding: []float32{0, 1, 0}},
	}
	if err := s.InsertSegments(ctx, "vid-3", segments); err != nil {
		t.Fatalf("InsertSegments failed: %v", err)
	}

	matches := s.NearestText([]float32{0.9, 0.1, 0}, 1)
	if len(matches) != 1 || matches[0].SegID != "a" {
		t.Fatalf("expected nearest match 'a', got %#v", matches)
	}
}

func TestCheckpointShouldSkipRespectsForce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.WriteCheckpoint(ctx, store.IngestionCheckpoint{
		SourceID: "vid-4", Phase: "complete", Status: store.CheckpointSuccess, SegmentCount: 3,
	}); err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}

	skip, err := s.ShouldSkip(ctx, "vid-4", false)
	if err != nil {
		t.Fatalf("ShouldSkip failed: %v", err)
	}
	if !skip {
		t.Fatal("expected to skip an already-successful source")
	}

	skip, err = s.ShouldSkip(ctx, "vid-4", true)
	if err != nil {
		t.Fatalf("ShouldSkip with force failed: %v", err)
	}
	if skip {
		t.Fatal("expected force=true to never skip")
	}
}

func TestGetCachedVoiceEmbeddingsRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSource(ctx, store.SourceDescriptor{SourceID: "vid-5", PublishedAt: time.Now()})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	segments := []store.Segment{
		{SegID: "seg-5a", SourceID: "vid-5", StartS: 0, EndS: 1, Text: "x", SpeakerLabel: store.SpeakerPrimary, VoiceEmbedding: []float32{0.1, 0.2}},
	}
	if err := s.InsertSegments(ctx, "vid-5", segments); err != nil {
		t.Fatalf("InsertSegments failed: %v", err)
	}

	cached, err := s.GetCachedVoiceEmbeddings(ctx, "vid-5")
	if err != nil {
		t.Fatalf("GetCachedVoiceEmbeddings failed: %v", err)
	}
	if len(cached) != 1 || len(cached[0].Embedding) != 2 {
		t.Fatalf("unexpected cached embeddings: %#v", cached)
	}
}

func TestStatsCountsLatestCheckpointPerSource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	writeCheckpoint := func(sourceID string, status store.CheckpointStatus) {
		if err := s.WriteCheckpoint(ctx, store.IngestionCheckpoint{SourceID: sourceID, Phase: "persist", Status: status}); err != nil {
			t.Fatalf("WriteCheckpoint failed: %v", err)
		}
	}
	writeCheckpoint("vid-6", store.CheckpointTransientFail)
	writeCheckpoint("vid-6", store.CheckpointSuccess) // latest should win
	writeCheckpoint("vid-7", store.CheckpointPermanentFail)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[store.CheckpointSuccess] != 1 {
		t.Fatalf("expected 1 success (latest checkpoint), got %d", stats[store.CheckpointSuccess])
	}
	if stats[store.CheckpointPermanentFail] != 1 {
		t.Fatalf("expected 1 permanent failure, got %d", stats[store.CheckpointPermanentFail])
	}
	if stats[store.CheckpointTransientFail] != 0 {
		t.Fatalf("expected superseded transient failure to be excluded, got %d", stats[store.CheckpointTransientFail])
	}
}

func TestListBySourceIDStatusReturnsOnlyMatching(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.WriteCheckpoint(ctx, store.IngestionCheckpoint{SourceID: "vid-8", Phase: "fetch", Status: store.CheckpointTransientFail}); err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}
	if err := s.WriteCheckpoint(ctx, store.IngestionCheckpoint{SourceID: "vid-9", Phase: "persist", Status: store.CheckpointSuccess}); err != nil {
		t.Fatalf("WriteCheckpoint failed: %v", err)
	}

	ids, err := s.ListBySourceIDStatus(ctx, store.CheckpointTransientFail)
	if err != nil {
		t.Fatalf("ListBySourceIDStatus failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "vid-8" {
		t.Fatalf("expected only vid-8, got %#v", ids)
	}
}
