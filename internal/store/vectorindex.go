package store

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// vectorIndex is a brute-force cosine nearest-neighbor index over
// text_embedding vectors, rebuilt in memory whenever the store opens. No
// example repo in the pack wires a maintained vector-extension binding for
// modernc.org/sqlite, so this stands in for the spec's list-based ANN index
// at the scale this pipeline runs at (thousands of segments per channel).
type vectorIndex struct {
	entries []indexEntry
}

type indexEntry struct {
	segID    string
	sourceID string
	vec      []float32
	norm     float64
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{}
}

func (v *vectorIndex) add(segID, sourceID string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	v.entries = append(v.entries, indexEntry{
		segID:    segID,
		sourceID: sourceID,
		vec:      vec,
		norm:     vectorNorm(vec),
	})
}

func (v *vectorIndex) nearest(query []float32, k int) []NeighborMatch {
	if len(query) == 0 || k <= 0 {
		return nil
	}
	qNorm := vectorNorm(query)
	if qNorm == 0 {
		return nil
	}
	matches := make([]NeighborMatch, 0, len(v.entries))
	for _, e := range v.entries {
		if len(e.vec) != len(query) || e.norm == 0 {
			continue
		}
		sim := vectorDot(query, e.vec) / (qNorm * e.norm)
		matches = append(matches, NeighborMatch{SegID: e.segID, SourceID: e.sourceID, Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func vectorDot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func vectorNorm(vec []float32) float64 {
	f64 := make([]float64, len(vec))
	for i, x := range vec {
		f64[i] = float64(x)
	}
	return floats.Norm(f64, 2)
}

// rebuildIndex loads every persisted text embedding into the in-memory ANN
// index. Called once on Open; segments are immutable after insertion so the
// index never needs incremental deletes.
func (s *Store) rebuildIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT seg_id, source_id, text_embedding, text_embedding_dim FROM segments WHERE text_embedding IS NOT NULL")
	if err != nil {
		return fmt.Errorf("load embeddings for index: %w", err)
	}
	defer rows.Close()

	index := newVectorIndex()
	for rows.Next() {
		var (
			segID, sourceID string
			blob            []byte
			dim             int
		)
		if err := rows.Scan(&segID, &sourceID, &blob, &dim); err != nil {
			return fmt.Errorf("scan embedding row: %w", err)
		}
		vec, err := decodeFloat32Blob(blob, dim)
		if err != nil {
			return fmt.Errorf("decode embedding for %s: %w", segID, err)
		}
		index.add(segID, sourceID, vec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate embeddings: %w", err)
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
	return nil
}

// NearestText returns the k nearest segments to query by cosine similarity
// over the text embedding column.
func (s *Store) NearestText(query []float32, k int) []NeighborMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.nearest(query, k)
}
