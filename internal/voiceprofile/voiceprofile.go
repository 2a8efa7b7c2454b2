// Package voiceprofile persists the singleton primary-speaker VoiceProfile
// as JSON, computing the centroid and cosine similarity with
// gonum.org/v1/gonum/floats rather than hand-rolled loops, matching the
// pack's precedent of reaching for gonum over inline float math.
package voiceprofile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"chaffee-ingest/internal/stage"
)

const fileName = "primary.json"

// Profile is the persisted record for the primary speaker.
type Profile struct {
	Name       string      `json:"name"`
	ModelID    string      `json:"model_id"`
	Centroid   []float64   `json:"centroid"`
	Embeddings [][]float64 `json:"embeddings"`
	SourceIDs  []string    `json:"source_ids"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Store manages the voice profile file under a voices directory.
type Store struct {
	mu   sync.RWMutex
	dir  string
	prof *Profile
}

// Open loads an existing profile from dir if present.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir}
	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read voice profile: %w", err)
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("parse voice profile: %w", err)
	}
	s.prof = &prof
	return s, nil
}

// Exists reports whether a profile has been built yet (C14 gates on this).
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prof != nil
}

// Load returns the current profile, or nil if none exists.
func (s *Store) Load() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prof
}

// Similarity returns the cosine similarity between embedding and the
// current centroid. Callers must check Exists first.
func (s *Store) Similarity(embedding []float32) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.prof == nil {
		return 0, fmt.Errorf("no voice profile loaded")
	}
	return cosineSimilarity(s.prof.Centroid, toFloat64(embedding)), nil
}

// Rebuild recomputes the centroid from a full embedding set and rewrites the
// profile atomically.
func (s *Store) Rebuild(modelID string, embeddings [][]float32, sourceIDs []string) error {
	f64 := make([][]float64, len(embeddings))
	for i, e := range embeddings {
		f64[i] = toFloat64(e)
	}
	prof := &Profile{
		Name:       "primary",
		ModelID:    modelID,
		Centroid:   centroid(f64),
		Embeddings: f64,
		SourceIDs:  sourceIDs,
		CreatedAt:  time.Now().UTC(),
	}
	return s.write(prof)
}

// Append adds new embeddings from a high-confidence monologue source and
// recomputes the centroid, keeping the existing sample set.
func (s *Store) Append(modelID string, embeddings [][]float32, sourceID string) error {
	s.mu.Lock()
	var prof Profile
	if s.prof != nil {
		prof = *s.prof
	} else {
		prof = Profile{Name: "primary", ModelID: modelID}
	}
	s.mu.Unlock()

	for _, e := range embeddings {
		prof.Embeddings = append(prof.Embeddings, toFloat64(e))
	}
	prof.SourceIDs = append(prof.SourceIDs, sourceID)
	prof.Centroid = centroid(prof.Embeddings)
	prof.CreatedAt = time.Now().UTC()
	return s.write(&prof)
}

func (s *Store) write(prof *Profile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure voices dir: %w", err)
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal voice profile: %w", err)
	}

	path := filepath.Join(s.dir, fileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write voice profile temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename voice profile into place: %w", err)
	}

	s.mu.Lock()
	s.prof = prof
	s.mu.Unlock()
	return nil
}

// HealthCheck reports whether a profile is present and non-empty.
func (s *Store) HealthCheck() stage.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.prof == nil || len(s.prof.Centroid) == 0 {
		return stage.Unhealthy("voiceprofile", "no primary voice profile built yet")
	}
	return stage.Healthy("voiceprofile")
}

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func centroid(embeddings [][]float64) []float64 {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for _, e := range embeddings {
		floats.Add(sum, e)
	}
	floats.Scale(1.0/float64(len(embeddings)), sum)
	return sum
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	dot := floats.Dot(a, b)
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}
