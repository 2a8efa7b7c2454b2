// Package voiceembed wraps sherpa-onnx's speaker embedding extractor, the
// same kind of model the diarizer uses internally, loaded here as its own
// instance for span-level embedding in the attribution stage.
package voiceembed

import (
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"chaffee-ingest/internal/stage"
)

// Config selects the speaker embedding model and its runtime.
type Config struct {
	ModelDir string
	ModelID  string
	Provider string
	Threads  int
	MaxSpanS float64
}

// Extractor is the process-wide voice embedding model wrapper.
type Extractor struct {
	mu          sync.Mutex
	model       *sherpa.SpeakerEmbeddingExtractor
	cfg         Config
	initialized bool
}

// New loads the embedding model once.
func New(cfg Config) (*Extractor, error) {
	modelPath := cfg.ModelDir + "/embedding.onnx"
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("voice embedding model: %w", err)
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 4
	}
	if cfg.MaxSpanS <= 0 {
		cfg.MaxSpanS = 60
	}

	model := sherpa.NewSpeakerEmbeddingExtractor(&sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      modelPath,
		NumThreads: threads,
		Provider:   provider,
	})
	if model == nil {
		return nil, fmt.Errorf("failed to create speaker embedding extractor (model %s)", cfg.ModelID)
	}

	return &Extractor{model: model, cfg: cfg, initialized: true}, nil
}

// Span is one (start, end) range to embed, clipped to MaxSpanS before use.
type Span struct {
	StartS float64
	EndS   float64
}

// clip bounds a span's duration to the configured maximum so a single
// forward pass can't be starved by one pathologically long turn.
func (e *Extractor) clip(span Span) Span {
	if e.cfg.MaxSpanS > 0 && span.EndS-span.StartS > e.cfg.MaxSpanS {
		span.EndS = span.StartS + e.cfg.MaxSpanS
	}
	return span
}

// EmbedBatch extracts one embedding per span. Spans are run through the
// extractor one at a time; there is no padded multi-span forward pass. If
// any span fails, the whole per-span pass is repeated once, and the error
// of the first span that fails again is returned.
func (e *Extractor) EmbedBatch(pcm []float32, sampleRate int, spans []Span) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("voice embedding extractor not initialized")
	}
	if len(spans) == 0 {
		return nil, nil
	}

	out, err := e.embedBatchLocked(pcm, sampleRate, spans)
	if err == nil {
		return out, nil
	}

	out = make([][]float32, len(spans))
	for i, span := range spans {
		vec, embedErr := e.embedOneLocked(pcm, sampleRate, span)
		if embedErr != nil {
			return nil, fmt.Errorf("sequential fallback span %d: %w", i, embedErr)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Extractor) embedBatchLocked(pcm []float32, sampleRate int, spans []Span) ([][]float32, error) {
	out := make([][]float32, len(spans))
	for i, span := range spans {
		vec, err := e.embedOneLocked(pcm, sampleRate, span)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Extractor) embedOneLocked(pcm []float32, sampleRate int, span Span) ([]float32, error) {
	span = e.clip(span)
	startSample := int(span.StartS * float64(sampleRate))
	endSample := int(span.EndS * float64(sampleRate))
	if startSample < 0 {
		startSample = 0
	}
	if endSample > len(pcm) {
		endSample = len(pcm)
	}
	if endSample <= startSample {
		return nil, fmt.Errorf("empty span %v", span)
	}

	stream := sherpa.NewSpeakerEmbeddingExtractorStream(e.model)
	defer sherpa.DeleteSpeakerEmbeddingExtractorStream(stream)
	stream.AcceptWaveform(sampleRate, pcm[startSample:endSample])
	stream.InputFinished()

	vec := e.model.Compute(stream)
	if len(vec) == 0 {
		return nil, fmt.Errorf("extractor returned empty embedding")
	}
	return vec, nil
}

// HealthCheck reports whether the embedding model loaded successfully.
func (e *Extractor) HealthCheck() stage.Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return stage.Unhealthy("voiceembed", "extractor not initialized")
	}
	return stage.Healthy("voiceembed")
}

// Close releases the native embedding model.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.model)
		e.model = nil
	}
	e.initialized = false
}
