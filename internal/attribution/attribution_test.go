package attribution_test

import (
	"testing"

	"chaffee-ingest/internal/asr"
	"chaffee-ingest/internal/attribution"
	"chaffee-ingest/internal/diarize"
	"chaffee-ingest/internal/store"
	"chaffee-ingest/internal/voiceembed"
)

// fakeEmbedder returns a fixed embedding for every span it is asked to
// embed, and counts how many times it was called.
type fakeEmbedder struct {
	vec   []float32
	calls int
}

func (f *fakeEmbedder) EmbedBatch(pcm []float32, sampleRate int, spans []voiceembed.Span) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(spans))
	for i := range spans {
		out[i] = f.vec
	}
	return out, nil
}

// fakeProfile reports a fixed similarity for every embedding.
type fakeProfile struct {
	exists bool
	sim    float64
}

func (f *fakeProfile) Exists() bool { return f.exists }

func (f *fakeProfile) Similarity(embedding []float32) (float64, error) {
	return f.sim, nil
}

func TestAttributeFastPathSkipsDiarizer(t *testing.T) {
	cfg := attribution.Config{
		ChaffeeMinSim: 0.5, FastPathEnabled: true, AssumeMonologue: true,
		VarianceSplitRange: 0.2, VarianceProbeK: 3,
	}
	a := attribution.New(cfg, &fakeProfile{exists: true, sim: 0.9}, &fakeEmbedder{vec: []float32{1, 0}})

	segments := []asr.Segment{{StartS: 0, EndS: 10, Text: "hello there"}}
	diarizeCalls := 0
	runDiarize := func(constraint *diarize.Constraint) ([]diarize.Turn, error) {
		diarizeCalls++
		return nil, nil
	}

	result, err := a.Attribute(make([]float32, 16000*20), 16000, segments, "Solo Monologue", runDiarize, nil)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if diarizeCalls != 0 {
		t.Fatalf("expected the diarizer never invoked when the fast path fires, got %d calls", diarizeCalls)
	}
	if !result.FastPathUsed {
		t.Fatalf("expected FastPathUsed=true")
	}
	for i, seg := range result.Segments {
		if seg.SpeakerLabel != store.SpeakerPrimary {
			t.Errorf("segment %d: expected label %q, got %q", i, store.SpeakerPrimary, seg.SpeakerLabel)
		}
		if len(seg.VoiceEmbedding) == 0 {
			t.Errorf("segment %d: expected a non-null voice embedding on the fast path", i)
		}
	}
}

func TestAttributeInterviewTitleConstrainsDiarizer(t *testing.T) {
	cfg := attribution.Config{
		ChaffeeMinSim: 0.5, FastPathEnabled: true, AssumeMonologue: true,
		VarianceSplitRange: 0.9, VarianceProbeK: 2,
	}
	// No profile yet, so the fast path can never fire and diarization always runs.
	a := attribution.New(cfg, &fakeProfile{exists: false}, &fakeEmbedder{vec: []float32{1, 0}})

	segments := []asr.Segment{{StartS: 0, EndS: 5, Text: "hi"}, {StartS: 5, EndS: 10, Text: "there"}}
	turns := []diarize.Turn{{StartS: 0, EndS: 10, ClusterID: 0}}

	var gotConstraint *diarize.Constraint
	runDiarize := func(constraint *diarize.Constraint) ([]diarize.Turn, error) {
		gotConstraint = constraint
		return turns, nil
	}

	if _, err := a.Attribute(make([]float32, 16000*10), 16000, segments, "X | Y interview", runDiarize, nil); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if gotConstraint == nil || gotConstraint.MinSpeakers != 2 || gotConstraint.MaxSpeakers != 2 {
		t.Fatalf("expected min_speakers=max_speakers=2 for an interview-titled video, got %+v", gotConstraint)
	}
}

func TestAttributeNonMatchingTitleLeavesDiarizerUnconstrained(t *testing.T) {
	cfg := attribution.Config{
		ChaffeeMinSim: 0.5, FastPathEnabled: false, AssumeMonologue: false,
		VarianceSplitRange: 0.9, VarianceProbeK: 2,
	}
	a := attribution.New(cfg, &fakeProfile{exists: false}, &fakeEmbedder{vec: []float32{1, 0}})

	var gotConstraint *diarize.Constraint
	seen := false
	runDiarize := func(constraint *diarize.Constraint) ([]diarize.Turn, error) {
		seen = true
		gotConstraint = constraint
		return []diarize.Turn{{StartS: 0, EndS: 10, ClusterID: 0}}, nil
	}

	segments := []asr.Segment{{StartS: 0, EndS: 10, Text: "hello"}}
	if _, err := a.Attribute(make([]float32, 16000*10), 16000, segments, "Episode 42", runDiarize, nil); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if !seen {
		t.Fatalf("expected the diarizer to run for a non-matching title")
	}
	if gotConstraint != nil {
		t.Fatalf("expected no speaker-count constraint for a non-matching title, got %+v", gotConstraint)
	}
}

func TestAttributeFirstIngestionPopulatesVoiceEmbeddings(t *testing.T) {
	cfg := attribution.Config{
		ChaffeeMinSim: 0.5, FastPathEnabled: false, AssumeMonologue: false,
		VarianceSplitRange: 0.9, VarianceProbeK: 3,
	}
	a := attribution.New(cfg, &fakeProfile{exists: true, sim: 0.9}, &fakeEmbedder{vec: []float32{1, 0}})

	segments := []asr.Segment{
		{StartS: 0, EndS: 5, Text: "hello"},
		{StartS: 5, EndS: 10, Text: "world"},
	}
	turns := []diarize.Turn{{StartS: 0, EndS: 10, ClusterID: 0}}
	runDiarize := func(constraint *diarize.Constraint) ([]diarize.Turn, error) { return turns, nil }

	// cache is nil: nothing was persisted from a prior run, as on a source's
	// first ingestion.
	result, err := a.Attribute(make([]float32, 16000*10), 16000, segments, "Untitled", runDiarize, nil)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	for i, seg := range result.Segments {
		if len(seg.VoiceEmbedding) == 0 {
			t.Errorf("segment %d: expected a non-null voice embedding on an empty cache, got none", i)
		}
	}
}

// variableEmbedder assigns each requested span a distinct single-value
// vector, so alternatingProfile can report different similarities per span
// and exercise the heterogeneous-cluster split.
type variableEmbedder struct {
	next int
}

func (v *variableEmbedder) EmbedBatch(pcm []float32, sampleRate int, spans []voiceembed.Span) ([][]float32, error) {
	out := make([][]float32, len(spans))
	for i := range spans {
		out[i] = []float32{float32(v.next)}
		v.next++
	}
	return out, nil
}

type alternatingProfile struct{}

func (alternatingProfile) Exists() bool { return true }

func (alternatingProfile) Similarity(embedding []float32) (float64, error) {
	if int(embedding[0])%2 == 0 {
		return 0.95, nil
	}
	return 0.05, nil
}

func TestAttributeHeterogeneousClusterFallsBackToPerSegment(t *testing.T) {
	cfg := attribution.Config{
		ChaffeeMinSim: 0.5, FastPathEnabled: false, AssumeMonologue: false,
		VarianceSplitRange: 0.1, VarianceProbeK: 2,
	}
	a := attribution.New(cfg, alternatingProfile{}, &variableEmbedder{})

	segments := []asr.Segment{
		{StartS: 0, EndS: 5, Text: "hello"},
		{StartS: 5, EndS: 10, Text: "world"},
	}
	// Both turns share cluster 0, so classifyCluster probes two spans whose
	// alternating similarities (0.95, 0.05) exceed VarianceSplitRange.
	turns := []diarize.Turn{
		{StartS: 0, EndS: 5, ClusterID: 0},
		{StartS: 5, EndS: 10, ClusterID: 0},
	}
	runDiarize := func(constraint *diarize.Constraint) ([]diarize.Turn, error) { return turns, nil }

	result, err := a.Attribute(make([]float32, 16000*10), 16000, segments, "Untitled", runDiarize, nil)
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if result.HeterogeneousClusters != 1 {
		t.Fatalf("expected 1 heterogeneous cluster, got %d", result.HeterogeneousClusters)
	}
	var primary, guest int
	for _, seg := range result.Segments {
		switch seg.SpeakerLabel {
		case store.SpeakerPrimary:
			primary++
		case store.SpeakerGuest:
			guest++
		}
	}
	if primary == 0 || guest == 0 {
		t.Fatalf("expected both primary and guest labels after per-segment fallback, got primary=%d guest=%d", primary, guest)
	}
}
