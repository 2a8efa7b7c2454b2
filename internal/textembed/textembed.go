// Package textembed provides configurable text embedding via ONNX Runtime,
// ported in structure from other_examples' BGE-small-en-v1.5 embedder: load
// model.onnx + tokenizer.json once, CLS-pool + L2-normalize, dynamic batch
// tensor build. Generalized from the hard-coded BGE defaults to the
// deployment's configured model id, dimension, and batch size.
package textembed

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"chaffee-ingest/internal/stage"
)

const minBatchSize = 8

// Config selects the text embedding model, its dimension, and device.
type Config struct {
	ModelDir   string
	ModelID    string
	Dim        int
	BatchSize  int
	Device     string // cpu or gpu
	OrtLibPath string
}

// Embedder wraps an ONNX session and tokenizer, loaded once per process. A
// warm CPU-provider fallback session is constructed lazily the first time a
// GPU batch fails with an out-of-memory error.
type Embedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	cfg       Config

	cpuFallback *ort.DynamicAdvancedSession
}

var inputNames = []string{"input_ids", "attention_mask", "token_type_ids"}
var outputNames = []string{"last_hidden_state"}

// New loads the ONNX model and tokenizer from cfg.ModelDir.
func New(cfg Config) (*Embedder, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Dim <= 0 {
		cfg.Dim = 384
	}

	modelPath := filepath.Join(cfg.ModelDir, "model.onnx")
	tokenPath := filepath.Join(cfg.ModelDir, "tokenizer.json")
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("text embedding model not found at %s: %w", modelPath, err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, fmt.Errorf("text embedding tokenizer not found at %s: %w", tokenPath, err)
	}

	if cfg.OrtLibPath != "" {
		ort.SetSharedLibraryPath(cfg.OrtLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	session, err := newSession(modelPath, cfg.Device)
	if err != nil {
		return nil, err
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &Embedder{session: session, tokenizer: tk, cfg: cfg}, nil
}

func newSession(modelPath, device string) (*ort.DynamicAdvancedSession, error) {
	threads := runtime.NumCPU()
	if threads > 4 {
		threads = 4
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}
	if strings.EqualFold(device, "gpu") {
		if err := opts.AppendExecutionProviderCUDA(ort.CUDAProviderOptions{}); err != nil {
			return nil, fmt.Errorf("append cuda provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Close releases the ONNX session(s) and tokenizer.
func (e *Embedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
	}
	if e.cpuFallback != nil {
		e.cpuFallback.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
}

// Encode embeds a batch of texts, returning L2-normalized vectors of
// dimension cfg.Dim. On an allocation-failure error class during a batch,
// the batch is halved (floor minBatchSize) and retried once; if it still
// fails, that batch is re-run on a CPU-provider fallback session.
func (e *Embedder) Encode(texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	results := make([][]float32, 0, len(texts))
	batchSize := e.cfg.BatchSize
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.encodeWithRecovery(texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", i, end, err)
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (e *Embedder) encodeWithRecovery(texts []string) ([][]float32, error) {
	out, err := e.runBatch(e.session, texts)
	if err == nil {
		return out, nil
	}
	if !isOOM(err) {
		return nil, err
	}

	half := len(texts) / 2
	if half < minBatchSize {
		half = minBatchSize
	}
	if half < len(texts) {
		var merged [][]float32
		for i := 0; i < len(texts); i += half {
			end := i + half
			if end > len(texts) {
				end = len(texts)
			}
			part, retryErr := e.runBatch(e.session, texts[i:end])
			if retryErr == nil {
				merged = append(merged, part...)
				continue
			}
			if !isOOM(retryErr) {
				return nil, retryErr
			}
			cpuOut, cpuErr := e.runOnCPUFallback(texts[i:end])
			if cpuErr != nil {
				return nil, fmt.Errorf("cpu fallback failed: %w", cpuErr)
			}
			merged = append(merged, cpuOut...)
		}
		return merged, nil
	}

	return e.runOnCPUFallback(texts)
}

func (e *Embedder) runOnCPUFallback(texts []string) ([][]float32, error) {
	if e.cpuFallback == nil {
		session, err := newSession(filepath.Join(e.cfg.ModelDir, "model.onnx"), "cpu")
		if err != nil {
			return nil, fmt.Errorf("create cpu fallback session: %w", err)
		}
		e.cpuFallback = session
	}
	return e.runBatch(e.cpuFallback, texts)
}

func isOOM(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") || strings.Contains(msg, "cuda_error_out_of_memory") || strings.Contains(msg, "oom")
}

type encoded struct {
	ids  []int64
	mask []int64
}

func (e *Embedder) runBatch(session *ort.DynamicAdvancedSession, texts []string) ([][]float32, error) {
	batchSize := len(texts)
	all := make([]encoded, batchSize)
	maxLen := 0
	const maxSeqLen = 256
	for i, text := range texts {
		enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > maxSeqLen {
			ids = ids[:maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = encoded{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all texts tokenized to zero length")
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{inputIDs, attnMask, typeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("ort run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want *Tensor[float32])")
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	dim := e.cfg.Dim
	embeddings := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		vec := make([]float32, dim)
		base := i * seqLen * dim
		for d := 0; d < dim; d++ {
			vec[d] = hidden[base+d]
		}
		l2Normalize(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

func l2Normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}

// HealthCheck reports whether the embedding session and tokenizer loaded.
func (e *Embedder) HealthCheck() stage.Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.tokenizer == nil {
		return stage.Unhealthy("textembed", "session or tokenizer not loaded")
	}
	return stage.Healthy("textembed")
}
