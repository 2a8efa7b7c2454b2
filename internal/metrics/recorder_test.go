package metrics_test

import (
	"testing"

	"chaffee-ingest/internal/metrics"
	"chaffee-ingest/internal/pipeline"
	"chaffee-ingest/internal/store"
)

func TestSummarizeCountsByStatus(t *testing.T) {
	r := metrics.New(nil)
	r.RecordVideo(pipeline.VideoOutcome{VideoID: "a", Status: store.CheckpointSuccess, SegmentCount: 10})
	r.RecordVideo(pipeline.VideoOutcome{VideoID: "b", Status: store.CheckpointPermanentFail})
	r.RecordVideo(pipeline.VideoOutcome{VideoID: "c", Status: store.CheckpointTransientFail})

	summary := r.Summarize()
	if summary.Total != 3 || summary.Succeeded != 1 || summary.PermanentFailed != 1 || summary.TransientFailed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.SegmentsWritten != 10 {
		t.Fatalf("expected 10 segments written, got %d", summary.SegmentsWritten)
	}
}

func TestRenderTableIncludesVideoTitles(t *testing.T) {
	s := metrics.Summary{Outcomes: []pipeline.VideoOutcome{
		{VideoID: "a", Title: "Episode One", Status: store.CheckpointSuccess, SegmentCount: 5},
	}, Total: 1, SegmentsWritten: 5}
	out := s.RenderTable()
	if out == "" {
		t.Fatal("expected non-empty rendered table")
	}
}
