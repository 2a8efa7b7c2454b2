// Package pipeline implements the three-phase producer/consumer orchestrator
// (C12): Prefilter -> Fetch -> Transcribe+Attribute+Embed+Persist, run over
// bounded worker pools connected by buffered channels, replacing the
// teacher's single-lane serial poll loop with genuine per-phase parallelism.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chaffee-ingest/internal/asr"
	"chaffee-ingest/internal/attribution"
	"chaffee-ingest/internal/audiofetch"
	"chaffee-ingest/internal/config"
	"chaffee-ingest/internal/diarize"
	"chaffee-ingest/internal/logging"
	"chaffee-ingest/internal/media/audio"
	"chaffee-ingest/internal/media/ffprobe"
	"chaffee-ingest/internal/store"
	"chaffee-ingest/internal/textembed"
	"chaffee-ingest/internal/videosource"
	"chaffee-ingest/internal/voiceembed"
	"chaffee-ingest/internal/voiceprofile"
)

// ErrSourceUnavailable is returned by Run when the video source adapter
// (C2) failed outright rather than simply running out of candidates,
// mapping to the CLI's documented exit code 3. Per-video failures never
// produce this error; the run still exits 0 in that case.
var ErrSourceUnavailable = errors.New("video source unavailable")

// Recorder receives per-video outcomes for the run summary (C13). A nil
// Recorder is valid; Pipeline skips recording in that case.
type Recorder interface {
	RecordVideo(outcome VideoOutcome)
}

// VideoOutcome summarizes one video's run through the pipeline.
type VideoOutcome struct {
	VideoID               string
	Title                 string
	Status                store.CheckpointStatus
	ErrorClass            string
	SegmentCount          int
	VideoType             store.VideoType
	FastPathUsed          bool
	HeterogeneousClusters int
	Duration              time.Duration
}

// Pipeline wires every model/storage component into the three-phase run
// loop. Exactly one Pipeline exists per process; its model wrappers
// (asr.Engine, diarize.Diarizer, voiceembed.Extractor, textembed.Embedder)
// are long-lived singletons shared by every worker goroutine.
type Pipeline struct {
	cfg *config.Config

	source   videosource.Source
	fetcher  *audiofetch.Fetcher
	asrEng   *asr.Engine
	diarizer *diarize.Diarizer
	voiceEx  *voiceembed.Extractor
	profile  *voiceprofile.Store
	textEmb  *textembed.Embedder
	attrib   *attribution.Attributor
	st       *store.Store
	recorder Recorder

	logger *slog.Logger

	sourceErr        error
	unprocessedAdmit atomic.Int64
}

// admitUnprocessed reports whether another unprocessed video may still be
// accepted, when source.limit_unprocessed caps --limit against videos that
// survive the checkpoint-skip filter rather than every video the source
// adapter yields. Returns true unconditionally when the cap doesn't apply.
func (p *Pipeline) admitUnprocessed() bool {
	limit := p.cfg.Source.Limit
	if !p.cfg.Source.LimitUnprocessed || limit <= 0 {
		return true
	}
	for {
		cur := p.unprocessedAdmit.Load()
		if cur >= int64(limit) {
			return false
		}
		if p.unprocessedAdmit.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// New assembles a Pipeline from its already-constructed components. Callers
// build each component (asr.New, diarize.New, ...) during preflight and pass
// them in here so construction failures surface before the run starts.
func New(
	cfg *config.Config,
	source videosource.Source,
	fetcher *audiofetch.Fetcher,
	asrEng *asr.Engine,
	diarizer *diarize.Diarizer,
	voiceEx *voiceembed.Extractor,
	profile *voiceprofile.Store,
	textEmb *textembed.Embedder,
	attrib *attribution.Attributor,
	st *store.Store,
	recorder Recorder,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg: cfg, source: source, fetcher: fetcher, asrEng: asrEng, diarizer: diarizer,
		voiceEx: voiceEx, profile: profile, textEmb: textEmb, attrib: attrib, st: st,
		recorder: recorder, logger: logger,
	}
}

// Run drives every video from the configured source through all three
// phases to completion and returns once every worker has exited. On ctx
// cancellation the workers stop taking new work and the per-video context
// of an in-flight video is cancelled too; the grace_period_s wait on a stop
// signal is applied by RunWithSignals, not here.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.cfg.Workflow.DryRun {
		return p.runDryRun(ctx)
	}

	ioWorkers := positive(p.cfg.Workflow.IOWorkers, 2)
	asrWorkers := positive(p.cfg.ASR.Workers, 1)

	videos := make(chan videosource.VideoDescriptor, ioWorkers*2)
	accepted := make(chan videosource.VideoDescriptor, ioWorkers*2)
	asrQueue := make(chan fetchedVideo, asrWorkers*2)

	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		defer close(videos)
		p.readSource(ctx, videos)
	}()

	var prefilterWg sync.WaitGroup
	for i := 0; i < ioWorkers; i++ {
		prefilterWg.Add(1)
		go func() {
			defer prefilterWg.Done()
			p.runPrefilter(ctx, videos, accepted)
		}()
	}
	go func() {
		prefilterWg.Wait()
		close(accepted)
	}()

	var fetchWg sync.WaitGroup
	for i := 0; i < ioWorkers; i++ {
		fetchWg.Add(1)
		go func() {
			defer fetchWg.Done()
			p.runFetch(ctx, accepted, asrQueue)
		}()
	}
	go func() {
		fetchWg.Wait()
		close(asrQueue)
	}()

	var workWg sync.WaitGroup
	for i := 0; i < asrWorkers; i++ {
		workWg.Add(1)
		go func() {
			defer workWg.Done()
			p.runTranscribeAttributeEmbedPersist(ctx, asrQueue)
		}()
	}

	readerWg.Wait()
	prefilterWg.Wait()
	fetchWg.Wait()
	workWg.Wait()

	if p.sourceErr != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, p.sourceErr)
	}
	return nil
}

// runDryRun resolves and prefilters the source without fetching, transcribing,
// or persisting anything: it reports which videos would be ingested.
func (p *Pipeline) runDryRun(ctx context.Context) error {
	force := p.cfg.Workflow.Force
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		desc, ok, err := p.source.Next(ctx)
		if err != nil {
			p.sourceErr = err
			return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		if !ok {
			return nil
		}

		status, found, err := p.st.LatestCheckpointStatus(ctx, desc.VideoID)
		if err != nil {
			p.logger.Error("checkpoint lookup failed during dry run",
				logging.Error(err), logging.String("video_id", desc.VideoID),
			)
			continue
		}
		if found && !force && (status == store.CheckpointSuccess || status == store.CheckpointPermanentFail) {
			continue
		}
		if !p.admitUnprocessed() {
			continue
		}

		p.logger.Info("would ingest video",
			logging.String(logging.FieldEventType, "dry_run_candidate"),
			logging.String("video_id", desc.VideoID),
			logging.String("title", desc.Title),
		)
	}
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

type fetchedVideo struct {
	Descriptor videosource.VideoDescriptor
	AudioPath  string
}

func (p *Pipeline) readSource(ctx context.Context, out chan<- videosource.VideoDescriptor) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		desc, ok, err := p.source.Next(ctx)
		if err != nil {
			p.logger.Warn("video source reported a failure; continuing with videos already queued",
				logging.Error(err),
				logging.String(logging.FieldEventType, "source_unavailable"),
				logging.String(logging.FieldErrorHint, "check source.kind connectivity"),
			)
			p.sourceErr = err
			return
		}
		if !ok {
			return
		}
		select {
		case out <- *desc:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) runPrefilter(ctx context.Context, in <-chan videosource.VideoDescriptor, out chan<- videosource.VideoDescriptor) {
	force := p.cfg.Workflow.Force
	for {
		select {
		case <-ctx.Done():
			return
		case desc, ok := <-in:
			if !ok {
				return
			}
			status, found, err := p.st.LatestCheckpointStatus(ctx, desc.VideoID)
			if err != nil {
				p.logger.Error("checkpoint lookup failed; skipping video defensively",
					logging.Error(err), logging.String("video_id", desc.VideoID),
					logging.String(logging.FieldEventType, "checkpoint_lookup_failed"),
					logging.String(logging.FieldErrorHint, "check database connectivity"),
				)
				continue
			}
			if found && !force && (status == store.CheckpointSuccess || status == store.CheckpointPermanentFail) {
				continue
			}
			if !p.admitUnprocessed() {
				continue
			}
			select {
			case out <- desc:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) runFetch(ctx context.Context, in <-chan videosource.VideoDescriptor, out chan<- fetchedVideo) {
	for {
		select {
		case <-ctx.Done():
			return
		case desc, ok := <-in:
			if !ok {
				return
			}
			bar := audiofetch.NewProgressBar(desc.VideoID, p.cfg.Logging.Format == "json")
			result, err := p.fetcher.Fetch(ctx, desc.VideoID, desc.URL, bar)
			if err != nil {
				p.recordFetchFailure(ctx, desc, err)
				continue
			}
			select {
			case out <- fetchedVideo{Descriptor: desc, AudioPath: result.Path}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) runTranscribeAttributeEmbedPersist(ctx context.Context, in <-chan fetchedVideo) {
	for {
		select {
		case <-ctx.Done():
			return
		case fv, ok := <-in:
			if !ok {
				return
			}
			timeout := time.Duration(positive(p.cfg.Workflow.PerVideoTimeoutS, 1800)) * time.Second
			videoCtx, cancel := context.WithTimeout(ctx, timeout)
			p.processVideo(videoCtx, fv)
			cancel()
		}
	}
}

func probeDuration(ctx context.Context, cfg *config.Config, path string) float64 {
	result, err := ffprobe.Inspect(ctx, cfg.Audio.FFprobeBinary, path)
	if err != nil {
		return 0
	}
	return result.DurationSeconds()
}

func decodeConfig(cfg *config.Config) audio.DecodeConfig {
	return audio.DecodeConfig{
		FFmpegBinary:    cfg.Audio.FFmpegBinary,
		FFprobeBinary:   cfg.Audio.FFprobeBinary,
		ChunkThresholdS: cfg.Audio.ChunkThresholdS,
	}
}
