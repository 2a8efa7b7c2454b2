package store

import "time"

// VideoType classifies a source after its segments are committed.
type VideoType string

const (
	VideoTypeMonologue          VideoType = "monologue"
	VideoTypeInterview          VideoType = "interview"
	VideoTypeMonologueWithClips VideoType = "monologue_with_clips"
	VideoTypeUnknown            VideoType = "unknown"
)

// SpeakerLabel identifies which speaker a segment was attributed to.
type SpeakerLabel string

const (
	SpeakerPrimary SpeakerLabel = "primary"
	SpeakerGuest   SpeakerLabel = "guest"
	SpeakerUnknown SpeakerLabel = "unknown"
)

// CheckpointStatus records the outcome of one ingestion attempt.
type CheckpointStatus string

const (
	CheckpointSuccess       CheckpointStatus = "success"
	CheckpointPermanentFail CheckpointStatus = "permanent_fail"
	CheckpointTransientFail CheckpointStatus = "transient_fail"
)

// Source is one row per ingested video.
type Source struct {
	ID          string
	SourceID    string
	Title       string
	Description string
	URL         string
	PublishedAt time.Time
	DurationS   float64
	SourceType  string
	VideoType   VideoType
	IngestedAt  *time.Time
	LastError   string
	RetryCount  int
}

// Segment is one row per time-coded, attributed, embedded utterance.
type Segment struct {
	SegID             string
	SourceID          string
	StartS            float64
	EndS              float64
	Text              string
	SpeakerLabel      SpeakerLabel
	SpeakerConfidence float64
	TextEmbedding     []float32
	VoiceEmbedding    []float32
	AvgLogprob        float64
	CompressionRatio  float64
	NoSpeechProb      float64
	CreatedAt         time.Time
}

// CachedVoiceEmbedding is a previously stored (span, embedding) pair reused
// to avoid re-extracting voice embeddings for spans already persisted.
type CachedVoiceEmbedding struct {
	StartS    float64
	EndS      float64
	Embedding []float32
}

// IngestionCheckpoint is one append-only record in the resumability log.
type IngestionCheckpoint struct {
	ID           int64
	SourceID     string
	Phase        string
	Status       CheckpointStatus
	ErrorClass   string
	SegmentCount int
	CreatedAt    time.Time
}

// NeighborMatch is one result of a nearest-neighbor text-embedding query.
type NeighborMatch struct {
	SegID      string
	SourceID   string
	Similarity float64
}
