// Package attribution implements the speaker-attribution algorithm at the
// heart of the pipeline's correctness: aligning ASR segments to diarization
// turns, then labeling each as primary/guest/unknown against the primary
// speaker's voice profile. It is pure orchestration over internal/asr,
// internal/diarize, internal/voiceembed, and internal/voiceprofile results —
// no model forward pass of its own beyond what those packages expose.
package attribution

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"chaffee-ingest/internal/asr"
	"chaffee-ingest/internal/diarize"
	"chaffee-ingest/internal/store"
	"chaffee-ingest/internal/voiceembed"
)

// Config mirrors config.Attribution plus the knobs the algorithm needs.
type Config struct {
	ChaffeeMinSim      float64
	FastPathEnabled    bool
	AssumeMonologue    bool
	VarianceSplitRange float64
	VarianceProbeK     int
}

// Segment is one attributed, pre-embedding-ready output segment.
type Segment struct {
	StartS            float64
	EndS              float64
	Text              string
	SpeakerLabel      store.SpeakerLabel
	SpeakerConfidence float64
	VoiceEmbedding    []float32
	AvgLogprob        float64
	CompressionRatio  float64
	NoSpeechProb      float64
}

// Result carries the attributed segments plus run counters the metrics
// stage aggregates.
type Result struct {
	Segments              []Segment
	FastPathUsed          bool
	HeterogeneousClusters int
}

// embedBatcher extracts voice embeddings for arbitrary audio spans.
// Satisfied by *voiceembed.Extractor; narrowed to an interface so the
// algorithm can be exercised against a fake in tests.
type embedBatcher interface {
	EmbedBatch(pcm []float32, sampleRate int, spans []voiceembed.Span) ([][]float32, error)
}

// profileScorer scores a voice embedding's similarity to the primary
// speaker's centroid. Satisfied by *voiceprofile.Store.
type profileScorer interface {
	Exists() bool
	Similarity(embedding []float32) (float64, error)
}

// diarizeFunc runs diarization on demand, letting the fast path (step 2)
// decide whether the diarizer runs at all before any native call is made.
type diarizeFunc func(constraint *diarize.Constraint) ([]diarize.Turn, error)

// Attributor runs the 6-step attribution algorithm.
type Attributor struct {
	cfg      Config
	profile  profileScorer
	embedder embedBatcher
}

// New constructs an Attributor bound to the process-wide voice profile and
// embedding extractor.
func New(cfg Config, profile profileScorer, embedder embedBatcher) *Attributor {
	if cfg.VarianceProbeK <= 0 {
		cfg.VarianceProbeK = 10
	}
	return &Attributor{cfg: cfg, profile: profile, embedder: embedder}
}

// Attribute runs steps 1-6 of the algorithm against one video's ASR output.
// diarize is only invoked when the fast path (step 2) doesn't fire: a
// monologue bypass assumes a single synthetic turn (0, duration, 0) and
// never calls the diarizer at all, per the interview-title heuristic that
// otherwise constrains clustering to a known speaker count (title).
func (a *Attributor) Attribute(pcm []float32, sampleRate int, segments []asr.Segment, title string, runDiarize diarizeFunc, cache []store.CachedVoiceEmbedding) (Result, error) {
	if a.cfg.AssumeMonologue && a.cfg.FastPathEnabled {
		if used, sim, probed, err := a.tryFastPath(pcm, sampleRate); err == nil && used {
			durationS := float64(len(pcm)) / float64(sampleRate)
			turns := []diarize.Turn{{StartS: 0, EndS: durationS, ClusterID: 0}}
			aligned := alignToTurns(segments, turns)
			merged := mergeCache(cache, probed)
			return a.attachVoiceEmbeddings(labelAllPrimary(aligned, sim), pcm, sampleRate, merged, true, 0)
		}
	}

	turns, err := runDiarize(interviewConstraint(title))
	if err != nil {
		return Result{}, fmt.Errorf("diarize: %w", err)
	}
	aligned := alignToTurns(segments, turns)

	clusters := groupByTurn(aligned, turns)
	labeled := make([]labeledSegment, 0, len(aligned))
	heterogeneous := 0
	var extra []store.CachedVoiceEmbedding

	for clusterID, members := range clusters {
		label, confidence, isHeterogeneous, probed, err := a.classifyCluster(pcm, sampleRate, clusterID, turns, cache)
		extra = append(extra, probed...)
		if err != nil {
			label, confidence = store.SpeakerUnknown, 0
		}
		if isHeterogeneous {
			heterogeneous++
			perSeg, probedSeg, err := a.classifyPerSegment(pcm, sampleRate, members, cache)
			extra = append(extra, probedSeg...)
			if err != nil {
				for _, m := range members {
					labeled = append(labeled, labeledSegment{alignedSegment: m, label: store.SpeakerUnknown, confidence: 0})
				}
				continue
			}
			labeled = append(labeled, perSeg...)
			continue
		}
		for _, m := range members {
			labeled = append(labeled, labeledSegment{alignedSegment: m, label: label, confidence: confidence})
		}
	}

	sort.Slice(labeled, func(i, j int) bool { return labeled[i].startS < labeled[j].startS })
	smoothed := temporalSmooth(labeled)

	merged := mergeCache(cache, extra)
	return a.attachVoiceEmbeddings(smoothed, pcm, sampleRate, merged, false, heterogeneous)
}

// mergeCache grows cache with embeddings this run just extracted, so step 6
// can draw on them even on a source's first ingestion, when the persisted
// cache is still empty.
func mergeCache(cache, extra []store.CachedVoiceEmbedding) []store.CachedVoiceEmbedding {
	if len(extra) == 0 {
		return cache
	}
	merged := make([]store.CachedVoiceEmbedding, 0, len(cache)+len(extra))
	merged = append(merged, cache...)
	merged = append(merged, extra...)
	return merged
}

// interviewConstraint matches the title heuristic ("interview", "|", "with",
// "feat.") that constrains clustering to two speakers.
func interviewConstraint(title string) *diarize.Constraint {
	lower := strings.ToLower(title)
	for _, marker := range []string{"interview", "|", "with", "feat."} {
		if strings.Contains(lower, marker) {
			return &diarize.Constraint{MinSpeakers: 2, MaxSpeakers: 2}
		}
	}
	return nil
}

// --- Step 1: segment alignment ---

type alignedSegment struct {
	startS           float64
	endS             float64
	text             string
	avgLogprob       float64
	compressionRatio float64
	noSpeechProb     float64
	clusterID        int
}

// alignToTurns splits each ASR segment at any turn boundary it crosses,
// using word timestamps to find the cut point, and carries quality metadata
// to each piece.
func alignToTurns(segments []asr.Segment, turns []diarize.Turn) []alignedSegment {
	if len(turns) == 0 {
		out := make([]alignedSegment, len(segments))
		for i, seg := range segments {
			out[i] = alignedSegment{
				startS: seg.StartS, endS: seg.EndS, text: seg.Text,
				avgLogprob: seg.AvgLogprob, compressionRatio: seg.CompressionRatio, noSpeechProb: seg.NoSpeechProb,
			}
		}
		return out
	}

	var out []alignedSegment
	for _, seg := range segments {
		boundaries := crossingBoundaries(seg, turns)
		if len(boundaries) == 0 {
			out = append(out, alignedSegment{
				startS: seg.StartS, endS: seg.EndS, text: seg.Text,
				avgLogprob: seg.AvgLogprob, compressionRatio: seg.CompressionRatio, noSpeechProb: seg.NoSpeechProb,
				clusterID: turnAt(turns, seg.StartS),
			})
			continue
		}
		cursor := seg.StartS
		for _, b := range append(boundaries, seg.EndS) {
			text := wordsBetween(seg.Words, cursor, b)
			if text != "" {
				out = append(out, alignedSegment{
					startS: cursor, endS: b, text: text,
					avgLogprob: seg.AvgLogprob, compressionRatio: seg.CompressionRatio, noSpeechProb: seg.NoSpeechProb,
					clusterID: turnAt(turns, cursor),
				})
			}
			cursor = b
		}
	}
	return out
}

func crossingBoundaries(seg asr.Segment, turns []diarize.Turn) []float64 {
	var bounds []float64
	for _, t := range turns {
		if t.StartS > seg.StartS && t.StartS < seg.EndS {
			bounds = append(bounds, t.StartS)
		}
	}
	sort.Float64s(bounds)
	return bounds
}

func wordsBetween(words []asr.Word, start, end float64) string {
	text := ""
	for _, w := range words {
		mid := (w.StartS + w.EndS) / 2
		if mid >= start && mid < end {
			if text != "" {
				text += " "
			}
			text += w.Text
		}
	}
	return text
}

func turnAt(turns []diarize.Turn, t float64) int {
	for _, turn := range turns {
		if t >= turn.StartS && t < turn.EndS {
			return turn.ClusterID
		}
	}
	return -1
}

// --- Step 2: fast path ---

func (a *Attributor) tryFastPath(pcm []float32, sampleRate int) (used bool, similarity float64, probed []store.CachedVoiceEmbedding, err error) {
	if !a.profile.Exists() {
		return false, 0, nil, nil
	}
	durationS := float64(len(pcm)) / float64(sampleRate)
	spans := sampleSpans(durationS, a.cfg.VarianceProbeK)
	embeddings, err := a.embedder.EmbedBatch(pcm, sampleRate, spans)
	if err != nil {
		return false, 0, nil, err
	}
	probed = embeddingsToCache(spans, embeddings)

	var sum float64
	for _, emb := range embeddings {
		sim, err := a.profile.Similarity(emb)
		if err != nil {
			return false, 0, nil, err
		}
		sum += sim
	}
	mean := sum / float64(len(embeddings))
	return mean >= a.cfg.ChaffeeMinSim, mean, probed, nil
}

func sampleSpans(durationS float64, k int) []voiceembed.Span {
	if durationS <= 0 || k <= 0 {
		return nil
	}
	spanLen := 5.0
	spans := make([]voiceembed.Span, 0, k)
	for i := 0; i < k; i++ {
		start := rand.Float64() * (durationS - spanLen)
		if start < 0 {
			start = 0
		}
		spans = append(spans, voiceembed.Span{StartS: start, EndS: start + spanLen})
	}
	return spans
}

func labelAllPrimary(segments []alignedSegment, confidence float64) []labeledSegment {
	out := make([]labeledSegment, len(segments))
	for i, s := range segments {
		out[i] = labeledSegment{alignedSegment: s, label: store.SpeakerPrimary, confidence: confidence}
	}
	return out
}

// --- Step 3/4: cluster-level and per-segment ID ---

type labeledSegment struct {
	alignedSegment
	label      store.SpeakerLabel
	confidence float64
}

func groupByTurn(segments []alignedSegment, turns []diarize.Turn) map[int][]alignedSegment {
	groups := map[int][]alignedSegment{}
	for _, s := range segments {
		groups[s.clusterID] = append(groups[s.clusterID], s)
	}
	return groups
}

func (a *Attributor) classifyCluster(pcm []float32, sampleRate int, clusterID int, turns []diarize.Turn, cache []store.CachedVoiceEmbedding) (label store.SpeakerLabel, confidence float64, heterogeneous bool, probed []store.CachedVoiceEmbedding, err error) {
	spans := probeSpans(turns, clusterID, a.cfg.VarianceProbeK)
	if len(spans) == 0 {
		return store.SpeakerUnknown, 0, false, nil, fmt.Errorf("no spans for cluster %d", clusterID)
	}

	embeddings := resolveEmbeddings(a.embedder, pcm, sampleRate, spans, cache)
	probed = embeddingsToCache(spans, embeddings)

	sims := make([]float64, 0, len(embeddings))
	for _, emb := range embeddings {
		if emb == nil {
			continue
		}
		sim, err := a.profile.Similarity(emb)
		if err != nil {
			continue
		}
		sims = append(sims, sim)
	}
	if len(sims) == 0 {
		return store.SpeakerUnknown, 0, false, probed, fmt.Errorf("no similarities computed for cluster %d", clusterID)
	}

	simMin, simMax, simMean := statSummary(sims)
	if (simMax - simMin) > a.cfg.VarianceSplitRange {
		return "", 0, true, probed, nil
	}
	if simMean >= a.cfg.ChaffeeMinSim {
		return store.SpeakerPrimary, simMean, false, probed, nil
	}
	return store.SpeakerGuest, simMean, false, probed, nil
}

// embeddingsToCache pairs spans with their resolved embeddings so callers
// can fold newly-extracted embeddings into the voice-embedding cache for
// step 6, even when nothing was persisted from a prior run.
func embeddingsToCache(spans []voiceembed.Span, embeddings [][]float32) []store.CachedVoiceEmbedding {
	out := make([]store.CachedVoiceEmbedding, 0, len(spans))
	for i, span := range spans {
		if i < len(embeddings) && embeddings[i] != nil {
			out = append(out, store.CachedVoiceEmbedding{StartS: span.StartS, EndS: span.EndS, Embedding: embeddings[i]})
		}
	}
	return out
}

func probeSpans(turns []diarize.Turn, clusterID int, k int) []voiceembed.Span {
	var spans []voiceembed.Span
	for _, t := range turns {
		if t.ClusterID == clusterID {
			spans = append(spans, voiceembed.Span{StartS: t.StartS, EndS: t.EndS})
		}
	}
	if len(spans) > k {
		spans = spans[:k]
	}
	return spans
}

func resolveEmbeddings(embedder embedBatcher, pcm []float32, sampleRate int, spans []voiceembed.Span, cache []store.CachedVoiceEmbedding) [][]float32 {
	out := make([][]float32, len(spans))
	var misses []int
	var missSpans []voiceembed.Span
	for i, span := range spans {
		if hit := findCached(cache, span.StartS, span.EndS); hit != nil {
			out[i] = hit
			continue
		}
		misses = append(misses, i)
		missSpans = append(missSpans, span)
	}
	if len(missSpans) > 0 {
		embedded, err := embedder.EmbedBatch(pcm, sampleRate, missSpans)
		if err == nil {
			for j, idx := range misses {
				if j < len(embedded) {
					out[idx] = embedded[j]
				}
			}
		}
	}
	return out
}

func findCached(cache []store.CachedVoiceEmbedding, start, end float64) []float32 {
	for _, c := range cache {
		if c.StartS == start && c.EndS == end {
			return c.Embedding
		}
	}
	return nil
}

func statSummary(sims []float64) (min, max, mean float64) {
	min, max = sims[0], sims[0]
	sum := 0.0
	for _, s := range sims {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	return min, max, sum / float64(len(sims))
}

func (a *Attributor) classifyPerSegment(pcm []float32, sampleRate int, members []alignedSegment, cache []store.CachedVoiceEmbedding) ([]labeledSegment, []store.CachedVoiceEmbedding, error) {
	spans := make([]voiceembed.Span, len(members))
	for i, m := range members {
		spans[i] = voiceembed.Span{StartS: m.startS, EndS: m.endS}
	}
	embeddings := resolveEmbeddings(a.embedder, pcm, sampleRate, spans, cache)
	probed := embeddingsToCache(spans, embeddings)

	out := make([]labeledSegment, len(members))
	for i, m := range members {
		label, confidence := store.SpeakerUnknown, 0.0
		if emb := embeddings[i]; emb != nil {
			if sim, err := a.profile.Similarity(emb); err == nil {
				confidence = sim
				if sim >= a.cfg.ChaffeeMinSim {
					label = store.SpeakerPrimary
				} else {
					label = store.SpeakerGuest
				}
			}
		}
		out[i] = labeledSegment{alignedSegment: m, label: label, confidence: confidence}
	}
	return out, probed, nil
}

// --- Step 5: temporal smoothing ---

const smoothDurationS = 60.0
const smoothConfidenceMargin = 0.05

func temporalSmooth(segments []labeledSegment) []labeledSegment {
	if len(segments) < 3 {
		return segments
	}
	out := make([]labeledSegment, len(segments))
	copy(out, segments)

	for i := 1; i < len(out)-1; i++ {
		cur := out[i]
		if cur.endS-cur.startS >= smoothDurationS {
			continue
		}
		prev, next := out[i-1], out[i+1]
		if prev.label != next.label || prev.label == cur.label {
			continue
		}
		if absDiff(cur.confidence, prev.confidence) <= smoothConfidenceMargin && absDiff(cur.confidence, next.confidence) <= smoothConfidenceMargin {
			out[i].label = prev.label
		}
	}
	return out
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// --- Step 6: voice embedding attachment ---

func (a *Attributor) attachVoiceEmbeddings(segments []labeledSegment, pcm []float32, sampleRate int, cache []store.CachedVoiceEmbedding, fastPath bool, heterogeneous int) (Result, error) {
	out := make([]Segment, len(segments))
	for i, s := range segments {
		emb := bestOverlapEmbedding(s, cache)
		if emb == nil {
			emb = nearestInTime(s, cache, 10)
		}
		if emb == nil {
			emb = closestAny(s, cache)
		}
		out[i] = Segment{
			StartS: s.startS, EndS: s.endS, Text: s.text,
			SpeakerLabel: s.label, SpeakerConfidence: s.confidence,
			VoiceEmbedding:   emb,
			AvgLogprob:       s.avgLogprob,
			CompressionRatio: s.compressionRatio,
			NoSpeechProb:     s.noSpeechProb,
		}
	}
	return Result{Segments: out, FastPathUsed: fastPath, HeterogeneousClusters: heterogeneous}, nil
}

func bestOverlapEmbedding(s labeledSegment, cache []store.CachedVoiceEmbedding) []float32 {
	var best []float32
	bestOverlap := 0.0
	for _, c := range cache {
		overlap := minF(s.endS, c.EndS) - maxF(s.startS, c.StartS)
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = c.Embedding
		}
	}
	return best
}

func nearestInTime(s labeledSegment, cache []store.CachedVoiceEmbedding, windowS float64) []float32 {
	var best []float32
	bestDist := windowS
	mid := (s.startS + s.endS) / 2
	for _, c := range cache {
		cMid := (c.StartS + c.EndS) / 2
		dist := absDiff(mid, cMid)
		if dist <= bestDist {
			bestDist = dist
			best = c.Embedding
		}
	}
	return best
}

func closestAny(s labeledSegment, cache []store.CachedVoiceEmbedding) []float32 {
	if len(cache) == 0 {
		return nil
	}
	mid := (s.startS + s.endS) / 2
	best := cache[0].Embedding
	bestDist := absDiff(mid, (cache[0].StartS+cache[0].EndS)/2)
	for _, c := range cache[1:] {
		dist := absDiff(mid, (c.StartS+c.EndS)/2)
		if dist < bestDist {
			bestDist = dist
			best = c.Embedding
		}
	}
	return best
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
