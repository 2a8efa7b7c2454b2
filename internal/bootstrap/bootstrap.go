// Package bootstrap builds the initial primary-speaker voice profile (C14)
// from a fixed seed list of known primary-only recordings, the first time
// VoiceProfile.Exists() is false. It runs a restricted C3->C4->C7 pipeline:
// fetch audio, decode to PCM, extract voice embeddings over fixed windows,
// skipping ASR/diarization/attribution entirely since every seed recording
// is already known to be the primary speaker alone.
package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"chaffee-ingest/internal/audiofetch"
	"chaffee-ingest/internal/logging"
	"chaffee-ingest/internal/media/audio"
	"chaffee-ingest/internal/voiceembed"
	"chaffee-ingest/internal/voiceprofile"
)

const windowS = 30.0

// SeedEntry is one line of the seed list: a video id and its watch URL.
type SeedEntry struct {
	VideoID string
	URL     string
}

// LoadSeedList reads one "video_id url" pair per line (or a bare video id,
// from which the standard YouTube watch URL is derived).
func LoadSeedList(path string) ([]SeedEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed list: %w", err)
	}
	defer f.Close()

	var entries []SeedEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 1:
			entries = append(entries, SeedEntry{VideoID: fields[0], URL: "https://www.youtube.com/watch?v=" + fields[0]})
		default:
			entries = append(entries, SeedEntry{VideoID: fields[0], URL: fields[1]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seed list: %w", err)
	}
	return entries, nil
}

// Runner builds the initial voice profile from a seed list.
type Runner struct {
	fetcher *audiofetch.Fetcher
	decCfg  audio.DecodeConfig
	voiceEx *voiceembed.Extractor
	profile *voiceprofile.Store
	modelID string
	logger  *slog.Logger
}

// New constructs a bootstrap Runner from already-built components.
func New(fetcher *audiofetch.Fetcher, decCfg audio.DecodeConfig, voiceEx *voiceembed.Extractor, profile *voiceprofile.Store, modelID string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{fetcher: fetcher, decCfg: decCfg, voiceEx: voiceEx, profile: profile, modelID: modelID, logger: logger}
}

// Run processes every seed entry and rebuilds the voice profile centroid
// from the union of all extracted embeddings. A single seed recording that
// fails to fetch or decode is logged and skipped; bootstrap only fails
// outright if no usable embeddings were extracted at all.
func (r *Runner) Run(ctx context.Context, seeds []SeedEntry) error {
	var allEmbeddings [][]float32
	var sourceIDs []string

	for _, seed := range seeds {
		embeddings, err := r.processSeed(ctx, seed)
		if err != nil {
			r.logger.Warn("skipping seed recording",
				logging.String("video_id", seed.VideoID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "bootstrap_seed_failed"),
			)
			continue
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
		sourceIDs = append(sourceIDs, seed.VideoID)
	}

	if len(allEmbeddings) == 0 {
		return fmt.Errorf("bootstrap: no usable embeddings extracted from %d seed recordings", len(seeds))
	}

	if err := r.profile.Rebuild(r.modelID, allEmbeddings, sourceIDs); err != nil {
		return fmt.Errorf("rebuild voice profile: %w", err)
	}
	r.logger.Info("voice profile bootstrapped",
		logging.Int("seed_count", len(sourceIDs)),
		logging.Int("embedding_count", len(allEmbeddings)),
		logging.String(logging.FieldEventType, "bootstrap_complete"),
	)
	return nil
}

func (r *Runner) processSeed(ctx context.Context, seed SeedEntry) ([][]float32, error) {
	result, err := r.fetcher.Fetch(ctx, seed.VideoID, seed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer os.Remove(result.Path)

	pcm, err := audio.Decode(ctx, r.decCfg, result.Path)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	spans := windowSpans(pcm.DurationS, windowS)
	if len(spans) == 0 {
		return nil, fmt.Errorf("recording too short for a single %gs window", windowS)
	}

	embeddings, err := r.voiceEx.EmbedBatch(pcm.Samples, 16000, spans)
	if err != nil {
		return nil, fmt.Errorf("extract voice embeddings: %w", err)
	}
	return embeddings, nil
}

func windowSpans(durationS, window float64) []voiceembed.Span {
	var spans []voiceembed.Span
	for start := 0.0; start+window <= durationS; start += window {
		spans = append(spans, voiceembed.Span{StartS: start, EndS: start + window})
	}
	return spans
}
