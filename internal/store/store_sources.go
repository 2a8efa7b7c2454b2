package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceDescriptor is the subset of source metadata known before ingestion.
type SourceDescriptor struct {
	SourceID    string
	Title       string
	Description string
	URL         string
	PublishedAt time.Time
	DurationS   float64
	SourceType  string
}

// UpsertSource inserts a new source row or returns the existing one's id,
// per C11's upsert_source(descriptor) -> source_id contract.
func (s *Store) UpsertSource(ctx context.Context, desc SourceDescriptor) (string, error) {
	ctx = ensureContext(ctx)

	var existingID string
	row := s.db.QueryRowContext(ctx, "SELECT id FROM sources WHERE source_id = ?", desc.SourceID)
	switch err := row.Scan(&existingID); {
	case err == nil:
		return existingID, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return "", fmt.Errorf("lookup source: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO sources (
			id, source_id, title, description, url, published_at, duration_s,
			source_type, video_type, retry_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'unknown', 0, ?, ?)`,
		id, desc.SourceID, desc.Title, desc.Description, desc.URL,
		desc.PublishedAt.UTC().Format(time.RFC3339Nano), desc.DurationS,
		sourceTypeOrDefault(desc.SourceType), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert source: %w", err)
	}
	return id, nil
}

func sourceTypeOrDefault(kind string) string {
	if kind == "" {
		return "youtube"
	}
	return kind
}

// IsIngested reports whether source_id already has ingested_at set.
func (s *Store) IsIngested(ctx context.Context, sourceID string) (bool, error) {
	ctx = ensureContext(ctx)
	var ingestedAt sql.NullString
	row := s.db.QueryRowContext(ctx, "SELECT ingested_at FROM sources WHERE source_id = ?", sourceID)
	if err := row.Scan(&ingestedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check ingested: %w", err)
	}
	return ingestedAt.Valid && ingestedAt.String != "", nil
}

// GetVideoType returns the classified video_type for source_id, or
// VideoTypeUnknown if the source hasn't been classified yet.
func (s *Store) GetVideoType(ctx context.Context, sourceID string) (VideoType, error) {
	ctx = ensureContext(ctx)
	var videoType sql.NullString
	row := s.db.QueryRowContext(ctx, "SELECT video_type FROM sources WHERE source_id = ?", sourceID)
	if err := row.Scan(&videoType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VideoTypeUnknown, nil
		}
		return VideoTypeUnknown, fmt.Errorf("get video type: %w", err)
	}
	if !videoType.Valid || videoType.String == "" {
		return VideoTypeUnknown, nil
	}
	return VideoType(videoType.String), nil
}

// GetCachedVoiceEmbeddings returns previously stored (start, end, embedding)
// tuples for a source, used to avoid re-extracting voice embeddings for
// spans already persisted (spec's VoiceEmbeddingCache view).
func (s *Store) GetCachedVoiceEmbeddings(ctx context.Context, sourceID string) ([]CachedVoiceEmbedding, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT id FROM sources WHERE source_id = ?", sourceID)
	var internalID string
	if err := row.Scan(&internalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve source: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT start_s, end_s, voice_embedding FROM segments
		 WHERE source_id = ? AND voice_embedding IS NOT NULL ORDER BY start_s`,
		internalID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cached voice embeddings: %w", err)
	}
	defer rows.Close()

	var out []CachedVoiceEmbedding
	for rows.Next() {
		var startS, endS float64
		var voiceJSON sql.NullString
		if err := rows.Scan(&startS, &endS, &voiceJSON); err != nil {
			return nil, fmt.Errorf("scan cached voice embedding: %w", err)
		}
		vec, err := decodeVoiceEmbeddingJSON(voiceJSON.String)
		if err != nil {
			return nil, fmt.Errorf("decode voice embedding: %w", err)
		}
		out = append(out, CachedVoiceEmbedding{StartS: startS, EndS: endS, Embedding: vec})
	}
	return out, rows.Err()
}
