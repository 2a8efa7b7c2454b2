package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WriteCheckpoint appends one resumability record. Checkpoint writes are
// idempotent in effect: the log is append-only and queried by most-recent
// status per source_id, so writing the same outcome twice changes nothing
// observable.
func (s *Store) WriteCheckpoint(ctx context.Context, cp IngestionCheckpoint) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO ingestion_checkpoints (
			source_id, phase, status, error_class, segment_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		cp.SourceID, cp.Phase, string(cp.Status), cp.ErrorClass, cp.SegmentCount, now,
	)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpointStatus returns the most recent checkpoint status recorded
// for source_id, or ("", false) if none exists.
func (s *Store) LatestCheckpointStatus(ctx context.Context, sourceID string) (CheckpointStatus, bool, error) {
	ctx = ensureContext(ctx)
	var status string
	row := s.db.QueryRowContext(ctx,
		`SELECT status FROM ingestion_checkpoints WHERE source_id = ?
		 ORDER BY id DESC LIMIT 1`,
		sourceID,
	)
	switch err := row.Scan(&status); {
	case err == nil:
		return CheckpointStatus(status), true, nil
	case err == sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("read latest checkpoint: %w", err)
	}
}

// ShouldSkip reports whether source_id already has a successful checkpoint
// and force is false (C15: skip already-succeeded descriptors).
func (s *Store) ShouldSkip(ctx context.Context, sourceID string, force bool) (bool, error) {
	if force {
		return false, nil
	}
	status, ok, err := s.LatestCheckpointStatus(ctx, sourceID)
	if err != nil {
		return false, err
	}
	return ok && status == CheckpointSuccess, nil
}

// latestCheckpointsInner selects one row per source_id: its most recent
// checkpoint. Used by both Stats and ListBySourceIDStatus so "status" and
// "retry" CLI commands agree on what "latest" means.
const latestCheckpointsInner = `
	SELECT source_id, status,
		ROW_NUMBER() OVER (PARTITION BY source_id ORDER BY id DESC) AS rn
	FROM ingestion_checkpoints`

// Stats counts sources by their most recent checkpoint status, for the
// CLI's "queue status" summary.
func (s *Store) Stats(ctx context.Context) (map[CheckpointStatus]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT status FROM (`+latestCheckpointsInner+`) WHERE rn = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("query checkpoint stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[CheckpointStatus]int)
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, fmt.Errorf("scan checkpoint stats: %w", err)
		}
		stats[CheckpointStatus(status)]++
	}
	return stats, rows.Err()
}

// ListBySourceIDStatus returns every source_id whose most recent checkpoint
// matches status, for the CLI's "queue retry" listing.
func (s *Store) ListBySourceIDStatus(ctx context.Context, status CheckpointStatus) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id FROM (`+latestCheckpointsInner+`) WHERE rn = 1 AND status = ?`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var sourceID string
		if err := rows.Scan(&sourceID); err != nil {
			return nil, fmt.Errorf("scan checkpoint source id: %w", err)
		}
		ids = append(ids, sourceID)
	}
	return ids, rows.Err()
}
