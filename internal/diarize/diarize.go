// Package diarize wraps sherpa-onnx's offline speaker diarization pipeline,
// adapted from the sherpa-based diarizer pattern: a mutex-guarded native
// model object, chunked processing to bound native-call duration on long
// audio, and a try-lock so a hung native call never queues up goroutines.
package diarize

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"chaffee-ingest/internal/stage"
)

// Turn is one non-overlapping diarized speech span.
type Turn struct {
	StartS    float64
	EndS      float64
	ClusterID int
}

// Config selects the diarization models and clustering behavior.
type Config struct {
	ModelDir            string
	Provider            string
	ClusteringThreshold float32
	MinDurationOn       float32
	MinDurationOff      float32
	Threads             int
}

// Constraint bounds the clustering when the caller knows how many speakers
// to expect (interview-title heuristic in the attribution stage).
type Constraint struct {
	MinSpeakers int
	MaxSpeakers int
}

// maxChunkSamples bounds a single native Process() call to ~15s of audio at
// 16kHz; sherpa-onnx's native diarization code can stall on pathological
// input, so long recordings are diarized in overlapping chunks instead.
const (
	maxChunkSamples = 240000
	overlapSamples  = 16000
	sampleRate      = 16000
)

// Diarizer is the process-wide diarization model wrapper.
type Diarizer struct {
	mu          sync.Mutex
	model       *sherpa.OfflineSpeakerDiarization
	cfg         Config
	initialized bool
	inProgress  int32
}

// New loads the segmentation and embedding models once.
func New(cfg Config) (*Diarizer, error) {
	segModel := cfg.ModelDir + "/segmentation.onnx"
	embedModel := cfg.ModelDir + "/embedding.onnx"
	if _, err := os.Stat(segModel); err != nil {
		return nil, fmt.Errorf("diarizer segmentation model: %w", err)
	}
	if _, err := os.Stat(embedModel); err != nil {
		return nil, fmt.Errorf("diarizer embedding model: %w", err)
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 4
	}

	sherpaConfig := &sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: segModel,
			},
			NumThreads: threads,
			Provider:   provider,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      embedModel,
			NumThreads: threads,
			Provider:   provider,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: -1,
			Threshold:   cfg.ClusteringThreshold,
		},
		MinDurationOn:  cfg.MinDurationOn,
		MinDurationOff: cfg.MinDurationOff,
	}

	model := sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
	if model == nil && provider != "cpu" {
		sherpaConfig.Segmentation.Provider = "cpu"
		sherpaConfig.Embedding.Provider = "cpu"
		model = sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
		provider = "cpu"
	}
	if model == nil {
		return nil, fmt.Errorf("failed to create sherpa-onnx diarizer")
	}
	cfg.Provider = provider

	return &Diarizer{model: model, cfg: cfg, initialized: true}, nil
}

// Diarize clusters 16kHz mono PCM into speaker turns. If constraint names a
// speaker count range, the clustering config is adjusted before processing
// per the interview-title heuristic.
func (d *Diarizer) Diarize(pcm []float32, constraint *Constraint) ([]Turn, error) {
	if !d.mu.TryLock() {
		return nil, fmt.Errorf("diarizer busy (inProgress=%d)", atomic.LoadInt32(&d.inProgress))
	}
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, fmt.Errorf("diarizer not initialized")
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	if constraint != nil && constraint.MinSpeakers > 0 {
		d.model.SetConfig(&sherpa.OfflineSpeakerDiarizationConfig{
			Clustering: sherpa.FastClusteringConfig{
				NumClusters: constraint.MaxSpeakers,
				Threshold:   d.cfg.ClusteringThreshold,
			},
		})
		defer d.model.SetConfig(&sherpa.OfflineSpeakerDiarizationConfig{
			Clustering: sherpa.FastClusteringConfig{NumClusters: -1, Threshold: d.cfg.ClusteringThreshold},
		})
	}

	if len(pcm) > maxChunkSamples {
		return d.diarizeInChunks(pcm)
	}
	return d.diarizeSingle(pcm)
}

func (d *Diarizer) diarizeSingle(pcm []float32) ([]Turn, error) {
	atomic.AddInt32(&d.inProgress, 1)
	defer atomic.AddInt32(&d.inProgress, -1)

	segments := d.model.Process(pcm)
	turns := make([]Turn, len(segments))
	for i, seg := range segments {
		turns[i] = Turn{StartS: float64(seg.Start), EndS: float64(seg.End), ClusterID: seg.Speaker}
	}
	return turns, nil
}

func (d *Diarizer) diarizeInChunks(pcm []float32) ([]Turn, error) {
	var all []Turn
	offset := 0
	for offset < len(pcm) {
		end := offset + maxChunkSamples
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := pcm[offset:end]
		chunkOffsetS := float64(offset) / float64(sampleRate)

		atomic.AddInt32(&d.inProgress, 1)
		segments := d.model.Process(chunk)
		atomic.AddInt32(&d.inProgress, -1)

		for _, seg := range segments {
			all = append(all, Turn{
				StartS:    float64(seg.Start) + chunkOffsetS,
				EndS:      float64(seg.End) + chunkOffsetS,
				ClusterID: seg.Speaker,
			})
		}

		next := end - overlapSamples
		if next <= offset {
			break
		}
		if len(pcm)-next < sampleRate {
			break
		}
		offset = next
	}
	return mergeOverlapping(all), nil
}

func mergeOverlapping(turns []Turn) []Turn {
	if len(turns) <= 1 {
		return turns
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].StartS < turns[j].StartS })

	merged := []Turn{turns[0]}
	for _, t := range turns[1:] {
		last := &merged[len(merged)-1]
		if t.ClusterID == last.ClusterID && t.StartS <= last.EndS+0.5 {
			if t.EndS > last.EndS {
				last.EndS = t.EndS
			}
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

// HealthCheck reports whether the diarization models loaded successfully.
func (d *Diarizer) HealthCheck() stage.Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return stage.Unhealthy("diarize", "diarizer not initialized")
	}
	return stage.Healthy("diarize")
}

// Close releases the native diarization model.
func (d *Diarizer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.model != nil {
		sherpa.DeleteOfflineSpeakerDiarization(d.model)
		d.model = nil
	}
	d.initialized = false
}
