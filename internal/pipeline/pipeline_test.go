package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"chaffee-ingest/internal/pipeline"
	"chaffee-ingest/internal/store"
	"chaffee-ingest/internal/testsupport"
	"chaffee-ingest/internal/videosource"
)

// fakeSource yields a fixed list of descriptors, then optionally fails.
type fakeSource struct {
	descs   []videosource.VideoDescriptor
	i       int
	failErr error
}

func (f *fakeSource) Next(ctx context.Context) (*videosource.VideoDescriptor, bool, error) {
	if f.i >= len(f.descs) {
		if f.failErr != nil {
			return nil, false, f.failErr
		}
		return nil, false, nil
	}
	d := f.descs[f.i]
	f.i++
	return &d, true, nil
}

func TestRunDryRunReportsCandidatesWithoutFetching(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.DryRun = true
	st := testsupport.MustOpenStore(t)

	source := &fakeSource{descs: []videosource.VideoDescriptor{
		{VideoID: "vid-1", Title: "Episode 1"},
		{VideoID: "vid-2", Title: "Episode 2"},
	}}

	p := pipeline.New(cfg, source, nil, nil, nil, nil, nil, nil, nil, st, nil, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if source.i != len(source.descs) {
		t.Fatalf("expected dry run to drain the source, consumed %d of %d", source.i, len(source.descs))
	}
}

func TestRunDryRunSkipsAlreadySucceededSources(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.DryRun = true
	st := testsupport.MustOpenStore(t)

	if err := st.WriteCheckpoint(context.Background(), store.IngestionCheckpoint{
		SourceID: "vid-1", Phase: "persist", Status: store.CheckpointSuccess,
	}); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	source := &fakeSource{descs: []videosource.VideoDescriptor{{VideoID: "vid-1"}}}
	p := pipeline.New(cfg, source, nil, nil, nil, nil, nil, nil, nil, st, nil, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("dry run: %v", err)
	}
}

func TestRunSurfacesSourceUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t)

	wantErr := errors.New("listing API returned 500")
	source := &fakeSource{failErr: wantErr}

	p := pipeline.New(cfg, source, nil, nil, nil, nil, nil, nil, nil, st, nil, nil)
	err := p.Run(context.Background())
	if !errors.Is(err, pipeline.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestRunSucceedsWithNoVideos(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t)

	p := pipeline.New(cfg, &fakeSource{}, nil, nil, nil, nil, nil, nil, nil, st, nil, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("expected nil error for an empty source, got %v", err)
	}
}
