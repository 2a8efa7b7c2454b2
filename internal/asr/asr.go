// Package asr wraps the sherpa-onnx offline speech recognizer as a
// process-wide singleton, following the mutex-guarded native-model idiom
// used for diarization and voice embedding in this codebase.
package asr

import (
	"fmt"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"chaffee-ingest/internal/stage"
)

// Word is a single word-level timestamp within an ASRSegment.
type Word struct {
	StartS float64
	EndS   float64
	Text   string
}

// Segment is one ASR output segment, carrying the quality metadata the
// attributor and store persist alongside the text.
type Segment struct {
	StartS           float64
	EndS             float64
	Text             string
	AvgLogprob       float64
	CompressionRatio float64
	NoSpeechProb     float64
	Words            []Word
}

// noSpeechDropThreshold drops segments sherpa-onnx is confident contain no
// speech, per the ASR engine's contract.
const noSpeechDropThreshold = 0.9

// Config selects the ASR model and its runtime.
type Config struct {
	ModelDir string
	ModelID  string
	Compute  string
	Provider string
	Threads  int
}

// Engine is the process-wide ASR model wrapper. Exactly one Engine is
// constructed per process; the GPU residency discipline relies on it never
// being reloaded mid-run.
type Engine struct {
	mu          sync.Mutex
	recognizer  *sherpa.OfflineRecognizer
	cfg         Config
	initialized bool
}

// New loads the offline recognizer once. Callers keep the returned Engine
// alive for the process lifetime.
func New(cfg Config) (*Engine, error) {
	modelPath := cfg.ModelDir
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("asr model dir %q: %w", modelPath, err)
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "cpu"
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 4
	}

	recognizerConfig := &sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: 16000,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Transducer: sherpa.OfflineTransducerModelConfig{
				Encoder: modelPath + "/encoder.onnx",
				Decoder: modelPath + "/decoder.onnx",
				Joiner:  modelPath + "/joiner.onnx",
			},
			Tokens:     modelPath + "/tokens.txt",
			NumThreads: threads,
			Provider:   provider,
			Debug:      0,
		},
		DecodingMethod: "greedy_search",
	}

	recognizer := sherpa.NewOfflineRecognizer(recognizerConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create sherpa-onnx offline recognizer (model %s)", cfg.ModelID)
	}

	return &Engine{recognizer: recognizer, cfg: cfg, initialized: true}, nil
}

// Transcribe runs greedy decoding over 16kHz mono PCM and returns segments
// with word timestamps, dropping any the engine reports as silence.
func (e *Engine) Transcribe(pcm []float32) ([]Segment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("asr engine not initialized")
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	stream := sherpa.NewOfflineStream(e.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(16000, pcm)
	e.recognizer.Decode(stream)
	result := stream.GetResult()

	segments := wordsToSegments(result)
	out := segments[:0]
	for _, seg := range segments {
		if seg.NoSpeechProb > noSpeechDropThreshold {
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}

// HealthCheck reports whether the recognizer loaded successfully.
func (e *Engine) HealthCheck() stage.Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return stage.Unhealthy("asr", "recognizer not initialized")
	}
	return stage.Healthy("asr")
}

// Close releases the native recognizer.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(e.recognizer)
		e.recognizer = nil
	}
	e.initialized = false
}

// wordsToSegments groups a recognizer result's word timestamps into a single
// segment spanning the whole decode. Segment-level splitting against
// diarization turn boundaries happens in the attribution stage, which uses
// these Words to find clean cut points.
func wordsToSegments(result *sherpa.OfflineRecognizerResult) []Segment {
	if result == nil || len(result.Text) == 0 {
		return nil
	}

	words := make([]Word, 0, len(result.Tokens))
	for i, tok := range result.Tokens {
		if i >= len(result.Timestamps) {
			break
		}
		start := float64(result.Timestamps[i])
		end := start
		if i+1 < len(result.Timestamps) {
			end = float64(result.Timestamps[i+1])
		}
		words = append(words, Word{StartS: start, EndS: end, Text: tok})
	}

	seg := Segment{
		Text:             result.Text,
		AvgLogprob:       0,
		CompressionRatio: 1,
		NoSpeechProb:     0,
		Words:            words,
	}
	if len(words) > 0 {
		seg.StartS = words[0].StartS
		seg.EndS = words[len(words)-1].EndS
	}
	return []Segment{seg}
}
