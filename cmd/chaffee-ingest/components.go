package main

import (
	"fmt"

	"chaffee-ingest/internal/asr"
	"chaffee-ingest/internal/attribution"
	"chaffee-ingest/internal/audiofetch"
	"chaffee-ingest/internal/config"
	"chaffee-ingest/internal/diarize"
	"chaffee-ingest/internal/textembed"
	"chaffee-ingest/internal/videosource"
	"chaffee-ingest/internal/voiceembed"
	"chaffee-ingest/internal/voiceprofile"
)

// newAudioFetcher builds the yt-dlp wrapper shared by the ingest and
// bootstrap commands.
func newAudioFetcher(cfg *config.Config) *audiofetch.Fetcher {
	return audiofetch.New(audiofetch.Config{
		Binary:     cfg.Fetch.YtDlpBinary,
		TimeoutS:   cfg.Fetch.TimeoutS,
		ScratchDir: cfg.Paths.ScratchDir,
	})
}

// newVideoSource builds the source adapter. When LimitUnprocessed is set,
// the raw Limit is withheld here and enforced instead in the pipeline's
// prefilter stage, after the checkpoint-skip filter has run, so --limit
// counts against unprocessed videos rather than every video the adapter
// considers.
func newVideoSource(cfg *config.Config) (videosource.Source, error) {
	limit := cfg.Source.Limit
	if cfg.Source.LimitUnprocessed {
		limit = 0
	}
	return videosource.New(videosource.Config{
		Kind:                   cfg.Source.Kind,
		APIBaseURL:             cfg.Source.APIBaseURL,
		APIKey:                 cfg.Source.APIKey,
		ChannelFeedURL:         cfg.Source.ChannelFeedURL,
		VideoIDs:               cfg.Source.VideoIDs,
		VideoIDsFile:           cfg.Source.VideoIDsFile,
		DaysBack:               cfg.Source.DaysBack,
		Limit:                  limit,
		NewestFirst:            cfg.Source.NewestFirst,
		SkipShorts:             cfg.Source.SkipShorts,
		ShortsThresholdSeconds: cfg.Source.ShortsThresholdSeconds,
	})
}

func newASREngine(cfg *config.Config) (*asr.Engine, error) {
	eng, err := asr.New(asr.Config{
		ModelDir: cfg.ASR.ModelDir,
		ModelID:  cfg.ASR.ModelID,
		Compute:  cfg.ASR.Compute,
		Provider: cfg.ASR.Provider,
		Threads:  cfg.ASR.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("init ASR engine: %w", err)
	}
	return eng, nil
}

func newDiarizer(cfg *config.Config) (*diarize.Diarizer, error) {
	d, err := diarize.New(diarize.Config{
		ModelDir:            cfg.Diarizer.ModelDir,
		Provider:            cfg.Diarizer.Provider,
		ClusteringThreshold: float32(cfg.Diarizer.ClusteringThreshold),
		MinDurationOn:       float32(cfg.Diarizer.MinDurationOn),
		MinDurationOff:      float32(cfg.Diarizer.MinDurationOff),
	})
	if err != nil {
		return nil, fmt.Errorf("init diarizer: %w", err)
	}
	return d, nil
}

func newVoiceEmbedder(cfg *config.Config) (*voiceembed.Extractor, error) {
	ex, err := voiceembed.New(voiceembed.Config{
		ModelDir: cfg.SpeakerModel.ModelDir,
		ModelID:  cfg.SpeakerModel.ModelID,
		Provider: cfg.SpeakerModel.Provider,
		MaxSpanS: cfg.SpeakerModel.MaxSpanS,
	})
	if err != nil {
		return nil, fmt.Errorf("init voice embedding model: %w", err)
	}
	return ex, nil
}

func newTextEmbedder(cfg *config.Config) (*textembed.Embedder, error) {
	emb, err := textembed.New(textembed.Config{
		ModelDir:  cfg.TextEmbedding.ModelDir,
		ModelID:   cfg.TextEmbedding.ModelID,
		Dim:       cfg.TextEmbedding.Dim,
		BatchSize: cfg.TextEmbedding.Batch,
		Device:    cfg.TextEmbedding.Device,
	})
	if err != nil {
		return nil, fmt.Errorf("init text embedding model: %w", err)
	}
	return emb, nil
}

func newAttributor(cfg *config.Config, profile *voiceprofile.Store, voiceEx *voiceembed.Extractor) *attribution.Attributor {
	return attribution.New(attribution.Config{
		ChaffeeMinSim:      cfg.Attribution.ChaffeeMinSim,
		FastPathEnabled:    cfg.Attribution.FastPathEnabled,
		AssumeMonologue:    cfg.Attribution.AssumeMonologue,
		VarianceSplitRange: cfg.Attribution.VarianceSplitRange,
		VarianceProbeK:     cfg.Attribution.VarianceProbeK,
	}, profile, voiceEx)
}
