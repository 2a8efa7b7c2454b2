package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"chaffee-ingest/internal/attribution"
	"chaffee-ingest/internal/audiofetch"
	"chaffee-ingest/internal/diarize"
	"chaffee-ingest/internal/logging"
	"chaffee-ingest/internal/media/audio"
	"chaffee-ingest/internal/store"
	"chaffee-ingest/internal/videosource"
)

func (p *Pipeline) recordFetchFailure(ctx context.Context, desc videosource.VideoDescriptor, err error) {
	class, status := classifyFetchError(err)
	logger := p.logger.With(logging.String("video_id", desc.VideoID))
	logger.Error("audio fetch failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "fetch_failed"),
		logging.String(logging.FieldErrorHint, "check network connectivity and yt-dlp binary"),
	)
	if writeErr := p.st.WriteCheckpoint(ctx, store.IngestionCheckpoint{
		SourceID: desc.VideoID, Phase: "fetch", Status: status, ErrorClass: class,
	}); writeErr != nil {
		logger.Error("failed to persist checkpoint for fetch failure", logging.Error(writeErr))
	}
	p.record(VideoOutcome{VideoID: desc.VideoID, Title: desc.Title, Status: status, ErrorClass: class})
}

func classifyFetchError(err error) (class string, status store.CheckpointStatus) {
	switch {
	case errors.Is(err, audiofetch.ErrNetwork):
		return "network_error", store.CheckpointTransientFail
	case errors.Is(err, audiofetch.ErrUnavailable):
		return "unavailable", store.CheckpointPermanentFail
	case errors.Is(err, audiofetch.ErrFormat):
		return "format_error", store.CheckpointPermanentFail
	default:
		return "unknown", store.CheckpointTransientFail
	}
}

func (p *Pipeline) processVideo(ctx context.Context, fv fetchedVideo) {
	start := time.Now()
	desc := fv.Descriptor
	logger := p.logger.With(logging.String("video_id", desc.VideoID))

	outcome, err := p.runStages(ctx, fv)
	outcome.Duration = time.Since(start)

	if err != nil {
		logger.Error("video processing failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "process_failed"),
			logging.String(logging.FieldErrorHint, "check asr/diarizer model health and scratch disk space"),
		)
		if outcome.Status == "" {
			outcome.Status = store.CheckpointTransientFail
			outcome.ErrorClass = "processing_error"
		}
	} else {
		outcome.Status = store.CheckpointSuccess
	}

	if writeErr := p.st.WriteCheckpoint(ctx, store.IngestionCheckpoint{
		SourceID: desc.VideoID, Phase: "persist", Status: outcome.Status,
		ErrorClass: outcome.ErrorClass, SegmentCount: outcome.SegmentCount,
	}); writeErr != nil {
		logger.Error("failed to persist final checkpoint", logging.Error(writeErr))
	}

	if p.cfg.Audio.CleanupAfter {
		if rmErr := os.Remove(fv.AudioPath); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove scratch audio file", logging.Error(rmErr))
		}
	}

	p.record(outcome)
}

func (p *Pipeline) record(outcome VideoOutcome) {
	if p.recorder != nil {
		p.recorder.RecordVideo(outcome)
	}
}

func (p *Pipeline) runStages(ctx context.Context, fv fetchedVideo) (VideoOutcome, error) {
	desc := fv.Descriptor
	outcome := VideoOutcome{VideoID: desc.VideoID, Title: desc.Title}

	sourceID, err := p.st.UpsertSource(ctx, store.SourceDescriptor{
		SourceID: desc.VideoID, Title: desc.Title, Description: desc.Description,
		URL: desc.URL, PublishedAt: desc.PublishedAt, DurationS: desc.DurationS, SourceType: "youtube",
	})
	if err != nil {
		return outcome, fmt.Errorf("upsert source: %w", err)
	}

	durationS := probeDuration(ctx, p.cfg, fv.AudioPath)
	decCfg := decodeConfig(p.cfg)

	pcm, err := p.decodeAudio(ctx, decCfg, fv.AudioPath, durationS)
	if err != nil {
		return outcome, fmt.Errorf("decode audio: %w", err)
	}

	asrSegments, err := p.asrEng.Transcribe(pcm.Samples)
	if err != nil {
		return outcome, fmt.Errorf("transcribe: %w", err)
	}
	if len(asrSegments) == 0 {
		return outcome, fmt.Errorf("transcribe: no speech segments detected")
	}

	cached, err := p.st.GetCachedVoiceEmbeddings(ctx, sourceID)
	if err != nil {
		return outcome, fmt.Errorf("load cached voice embeddings: %w", err)
	}

	runDiarize := func(constraint *diarize.Constraint) ([]diarize.Turn, error) {
		return p.diarizer.Diarize(pcm.Samples, constraint)
	}
	result, err := p.attrib.Attribute(pcm.Samples, 16000, asrSegments, desc.Title, runDiarize, cached)
	if err != nil {
		return outcome, fmt.Errorf("attribute: %w", err)
	}
	outcome.FastPathUsed = result.FastPathUsed
	outcome.HeterogeneousClusters = result.HeterogeneousClusters

	texts := make([]string, len(result.Segments))
	for i, seg := range result.Segments {
		texts[i] = seg.Text
	}
	textEmbeddings, err := p.textEmb.Encode(texts)
	if err != nil {
		return outcome, fmt.Errorf("embed text: %w", err)
	}

	segments := buildSegments(sourceID, result.Segments, textEmbeddings)
	if err := p.st.InsertSegments(ctx, sourceID, segments); err != nil {
		return outcome, fmt.Errorf("persist segments: %w", err)
	}
	outcome.SegmentCount = len(segments)

	if videoType, err := p.st.GetVideoType(ctx, sourceID); err == nil {
		outcome.VideoType = videoType
	}

	if err := p.maybeAppendToVoiceProfile(result, pcm.Samples, sourceID); err != nil {
		logger := p.logger.With(logging.String("video_id", desc.VideoID))
		logger.Warn("failed to append high-confidence monologue embeddings to voice profile", logging.Error(err))
	}

	return outcome, nil
}

// decodeAudio decodes path to 16kHz mono PCM. Recordings over the chunk
// threshold are read through audio.DecodeChunked window by window, but the
// windows are concatenated into one buffer, so the whole recording is still
// held in memory for transcription. A read error from the chunker ends the
// loop and the samples read so far are returned.
func (p *Pipeline) decodeAudio(ctx context.Context, decCfg audio.DecodeConfig, path string, durationS float64) (audio.PCM16kMono, error) {
	if !audio.ShouldChunk(durationS, decCfg) {
		return audio.Decode(ctx, decCfg, path)
	}

	chunker, err := audio.DecodeChunked(ctx, decCfg, path)
	if err != nil {
		return audio.PCM16kMono{}, err
	}
	if err := chunker.Start(); err != nil {
		return audio.PCM16kMono{}, err
	}
	defer chunker.Close()

	var all []float32
	for {
		chunk, err := chunker.Next()
		if err != nil {
			break
		}
		all = append(all, chunk.Samples...)
	}
	return audio.PCM16kMono{Samples: all, DurationS: float64(len(all)) / 16000}, nil
}

func buildSegments(sourceID string, segments []attribution.Segment, textEmbeddings [][]float32) []store.Segment {
	out := make([]store.Segment, len(segments))
	for i, seg := range segments {
		var textVec []float32
		if i < len(textEmbeddings) {
			textVec = textEmbeddings[i]
		}
		out[i] = store.Segment{
			SegID:             uuid.NewString(),
			SourceID:          sourceID,
			StartS:            seg.StartS,
			EndS:              seg.EndS,
			Text:              seg.Text,
			SpeakerLabel:      seg.SpeakerLabel,
			SpeakerConfidence: seg.SpeakerConfidence,
			TextEmbedding:     textVec,
			VoiceEmbedding:    seg.VoiceEmbedding,
			AvgLogprob:        seg.AvgLogprob,
			CompressionRatio:  seg.CompressionRatio,
			NoSpeechProb:      seg.NoSpeechProb,
		}
	}
	return out
}

// maybeAppendToVoiceProfile grows the primary speaker's voice profile from a
// monologue source attributed with high confidence, per spec.md's bootstrap
// auto-expansion note: confident, fully-primary videos are free training
// data for future runs' fast path.
func (p *Pipeline) maybeAppendToVoiceProfile(result attribution.Result, pcm []float32, sourceID string) error {
	if !result.FastPathUsed || p.profile == nil {
		return nil
	}
	var embeddings [][]float32
	for _, seg := range result.Segments {
		if seg.SpeakerLabel == store.SpeakerPrimary && len(seg.VoiceEmbedding) > 0 {
			embeddings = append(embeddings, seg.VoiceEmbedding)
		}
	}
	if len(embeddings) == 0 {
		return nil
	}
	return p.profile.Append(p.cfg.SpeakerModel.ModelID, embeddings, sourceID)
}
