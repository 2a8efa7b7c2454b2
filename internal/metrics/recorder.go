// Package metrics implements the run-summary recorder (C13): structured
// per-video log lines during the run, plus a go-pretty table printed at
// exit, grounded in the teacher's cmd/spindle/table.go renderer.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chaffee-ingest/internal/logging"
	"chaffee-ingest/internal/pipeline"
	"chaffee-ingest/internal/store"
)

// Recorder aggregates VideoOutcomes for the run-summary table and logs each
// one as it arrives. Safe for concurrent use by pipeline workers.
type Recorder struct {
	mu       sync.Mutex
	logger   *slog.Logger
	outcomes []pipeline.VideoOutcome
	started  time.Time
}

// New constructs a Recorder. logger receives one structured line per video
// as RecordVideo is called from pipeline worker goroutines.
func New(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{logger: logger, started: time.Now()}
}

// RecordVideo implements pipeline.Recorder.
func (r *Recorder) RecordVideo(outcome pipeline.VideoOutcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()

	level := slog.LevelInfo
	if outcome.Status != store.CheckpointSuccess {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "video processed",
		logging.String("video_id", outcome.VideoID),
		logging.String("title", outcome.Title),
		logging.String("status", string(outcome.Status)),
		logging.String("error_class", outcome.ErrorClass),
		logging.Int("segment_count", outcome.SegmentCount),
		logging.String("video_type", string(outcome.VideoType)),
		logging.Bool("fast_path_used", outcome.FastPathUsed),
		logging.Int("heterogeneous_clusters", outcome.HeterogeneousClusters),
		logging.Duration("duration", outcome.Duration),
		logging.String(logging.FieldEventType, "video_processed"),
	)
}

// Summary aggregates the run's outcomes for the final table/exit code.
type Summary struct {
	Total           int
	Succeeded       int
	TransientFailed int
	PermanentFailed int
	SegmentsWritten int
	Elapsed         time.Duration
	Outcomes        []pipeline.VideoOutcome
}

// Summarize computes the run's aggregate counters. Call once after Run
// returns; RecordVideo must not be called concurrently with this.
func (r *Recorder) Summarize() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Elapsed: time.Since(r.started), Outcomes: append([]pipeline.VideoOutcome(nil), r.outcomes...)}
	for _, o := range r.outcomes {
		s.Total++
		s.SegmentsWritten += o.SegmentCount
		switch o.Status {
		case store.CheckpointSuccess:
			s.Succeeded++
		case store.CheckpointPermanentFail:
			s.PermanentFailed++
		default:
			s.TransientFailed++
		}
	}
	return s
}

