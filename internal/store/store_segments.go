package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func decodeVoiceEmbeddingJSON(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func encodeVoiceEmbeddingJSON(vec []float32) (sql.NullString, error) {
	if len(vec) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// InsertSegments commits all segments of a source in a single transaction,
// sets sources.ingested_at, and classifies video_type. Either every segment
// is committed and ingested_at is set, or none are (invariant 6).
func (s *Store) InsertSegments(ctx context.Context, sourceID string, segments []Segment) error {
	ctx = ensureContext(ctx)
	if len(segments) == 0 {
		return fmt.Errorf("insert segments: empty batch for source %s", sourceID)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var internalID string
		if scanErr := tx.QueryRowContext(ctx, "SELECT id FROM sources WHERE source_id = ?", sourceID).Scan(&internalID); scanErr != nil {
			return fmt.Errorf("resolve source: %w", scanErr)
		}

		var existing int
		if scanErr := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM segments WHERE source_id = ?", internalID).Scan(&existing); scanErr != nil {
			return fmt.Errorf("check existing segments: %w", scanErr)
		}
		if existing > 0 {
			return fmt.Errorf("segments already committed for source %s", sourceID)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, seg := range segments {
			voiceJSON, err := encodeVoiceEmbeddingJSON(seg.VoiceEmbedding)
			if err != nil {
				return fmt.Errorf("encode voice embedding: %w", err)
			}
			var textBlob []byte
			textDim := 0
			if len(seg.TextEmbedding) > 0 {
				textBlob = encodeFloat32Blob(seg.TextEmbedding)
				textDim = len(seg.TextEmbedding)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO segments (
					seg_id, source_id, start_s, end_s, text, speaker_label,
					speaker_confidence, text_embedding, text_embedding_dim,
					voice_embedding, avg_logprob, compression_ratio, no_speech_prob,
					created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				seg.SegID, internalID, seg.StartS, seg.EndS, seg.Text, string(seg.SpeakerLabel),
				seg.SpeakerConfidence, textBlob, textDim,
				voiceJSON, seg.AvgLogprob, seg.CompressionRatio, seg.NoSpeechProb, now,
			); err != nil {
				return fmt.Errorf("insert segment %s: %w", seg.SegID, err)
			}
		}

		videoType, err := classifyVideoType(ctx, tx, internalID)
		if err != nil {
			// Non-fatal per spec: segments remain committed, video_type stays unknown.
			videoType = VideoTypeUnknown
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE sources SET ingested_at = ?, video_type = ?, updated_at = ? WHERE id = ?",
			now, string(videoType), now, internalID,
		); err != nil {
			return fmt.Errorf("mark source ingested: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.indexSegments(segments)
	return nil
}

func (s *Store) indexSegments(segments []Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range segments {
		if len(seg.TextEmbedding) > 0 {
			s.index.add(seg.SegID, seg.SourceID, seg.TextEmbedding)
		}
	}
}

// classifyVideoType implements §4.11's classification rule: monologue if a
// single non-unknown label covers every segment, interview if the minority
// label's share exceeds 15%, monologue_with_clips otherwise, unknown if every
// segment is unknown.
func classifyVideoType(ctx context.Context, tx *sql.Tx, internalSourceID string) (VideoType, error) {
	rows, err := tx.QueryContext(ctx, "SELECT speaker_label FROM segments WHERE source_id = ?", internalSourceID)
	if err != nil {
		return VideoTypeUnknown, err
	}
	defer rows.Close()

	counts := map[SpeakerLabel]int{}
	total := 0
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return VideoTypeUnknown, err
		}
		counts[SpeakerLabel(label)]++
		total++
	}
	if err := rows.Err(); err != nil {
		return VideoTypeUnknown, err
	}
	if total == 0 {
		return VideoTypeUnknown, nil
	}

	nonUnknown := total - counts[SpeakerUnknown]
	if nonUnknown == 0 {
		return VideoTypeUnknown, nil
	}

	distinct := 0
	minority := 0
	for label, count := range counts {
		if label == SpeakerUnknown {
			continue
		}
		distinct++
		if minority == 0 || count < minority {
			minority = count
		}
	}
	if distinct <= 1 {
		return VideoTypeMonologue, nil
	}

	minorityShare := float64(minority) / float64(total)
	if minorityShare > 0.15 {
		return VideoTypeInterview, nil
	}
	return VideoTypeMonologueWithClips, nil
}
