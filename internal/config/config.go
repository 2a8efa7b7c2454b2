// Package config defines the typed configuration surface for chaffee-ingest:
// a single immutable object loaded once at startup and shared read-only by
// every pipeline worker.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config encapsulates every recognized configuration value.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Fetch         Fetch         `toml:"fetch"`
	Audio         Audio         `toml:"audio"`
	ASR           ASR           `toml:"asr"`
	Diarizer      Diarizer      `toml:"diarizer"`
	SpeakerModel  SpeakerModel  `toml:"speaker_model"`
	TextEmbedding TextEmbedding `toml:"text_embedding"`
	Attribution   Attribution   `toml:"attribution"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Bootstrap     Bootstrap     `toml:"bootstrap"`
}

// Paths groups filesystem locations.
type Paths struct {
	DatabasePath string `toml:"database_path"`
	VoicesDir    string `toml:"voices_dir"`
	ScratchDir   string `toml:"scratch_dir"`
	LogDir       string `toml:"log_dir"`
}

// Source configures the video listing adapter (C2).
type Source struct {
	Kind                   string   `toml:"kind"` // external_api | local_listing
	APIBaseURL             string   `toml:"api_base_url"`
	APIKey                 string   `toml:"api_key"`
	ChannelFeedURL         string   `toml:"channel_feed_url"`
	VideoIDs               []string `toml:"video_ids"`
	VideoIDsFile           string   `toml:"video_ids_file"`
	DaysBack               int      `toml:"days_back"`
	Limit                  int      `toml:"limit"`
	LimitUnprocessed       bool     `toml:"limit_unprocessed"`
	NewestFirst            bool     `toml:"newest_first"`
	SkipShorts             bool     `toml:"skip_shorts"`
	ShortsThresholdSeconds int      `toml:"shorts_threshold_s"`
}

// Fetch configures the yt-dlp audio download wrapper (C3).
type Fetch struct {
	YtDlpBinary string `toml:"yt_dlp_binary"`
	TimeoutS    int    `toml:"timeout_s"`
}

// Audio configures container decoding (C4).
type Audio struct {
	ChunkThresholdS int    `toml:"chunk_threshold_s"`
	FFmpegBinary    string `toml:"ffmpeg_binary"`
	FFprobeBinary   string `toml:"ffprobe_binary"`
	CleanupAfter    bool   `toml:"cleanup_after"`
}

// ASR configures the transcription engine (C5).
type ASR struct {
	ModelID  string `toml:"model_id"`
	ModelDir string `toml:"model_dir"`
	Compute  string `toml:"compute"`
	Provider string `toml:"provider"` // cpu | cuda | coreml | auto
	Workers  int    `toml:"workers"`
}

// Diarizer configures speaker-turn clustering (C6).
type Diarizer struct {
	ModelDir            string  `toml:"model_dir"`
	Provider            string  `toml:"provider"`
	ClusteringThreshold float64 `toml:"clustering_threshold"`
	MinDurationOn       float64 `toml:"min_on"`
	MinDurationOff      float64 `toml:"min_off"`
}

// SpeakerModel configures the voice-embedding extractor (C7).
type SpeakerModel struct {
	ModelID        string `toml:"model_id"`
	ModelDir       string `toml:"model_dir"`
	Provider       string `toml:"provider"`
	VoiceBatch     int    `toml:"voice_batch"`
	MaxSpanS       float64 `toml:"max_span_s"`
}

// TextEmbedding configures the dense-text-vector encoder (C10).
type TextEmbedding struct {
	ModelID      string `toml:"model_id"`
	ModelDir     string `toml:"model_dir"`
	Dim          int    `toml:"d_text"`
	Batch        int    `toml:"batch"`
	Device       string `toml:"device"` // cpu | gpu
	OnnxProvider string `toml:"onnx_provider"`
}

// Attribution configures the speaker-labeling heuristics (C9).
type Attribution struct {
	ChaffeeMinSim      float64 `toml:"chaffee_min_sim"`
	FastPathEnabled    bool    `toml:"fast_path_enabled"`
	AssumeMonologue    bool    `toml:"assume_monologue"`
	VarianceSplitRange float64 `toml:"variance_split_range"`
	VarianceProbeK     int     `toml:"variance_probe_k"`
}

// Workflow configures the pipeline orchestrator (C12) and CLI run behavior.
type Workflow struct {
	IOWorkers              int  `toml:"io_workers"`
	DBWorkers              int  `toml:"db_workers"`
	PerVideoTimeoutS       int  `toml:"per_video_timeout_s"`
	GracePeriodS           int  `toml:"grace_period_s"`
	MaxRetries             int  `toml:"max_retries"`
	QueuePollInterval      int  `toml:"queue_poll_interval"`
	ErrorRetryInterval     int  `toml:"error_retry_interval"`
	HeartbeatIntervalS     int  `toml:"heartbeat_interval_s"`
	Force                  bool `toml:"force"`
	DryRun                 bool `toml:"dry_run"`
}

// Logging configures structured log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Bootstrap configures the one-time voice-profile seeding run (C14).
type Bootstrap struct {
	SeedListPath string `toml:"seed_list_path"`
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chaffee-ingest/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file.
// Path fields on the returned config are absolute.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/chaffee-ingest/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chaffee-ingest.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates every directory the config references.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.VoicesDir, c.Paths.ScratchDir, c.Paths.LogDir, filepath.Dir(c.Paths.DatabasePath)}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a commented sample configuration file to path.
func CreateSample(path string) error {
	sample := `# chaffee-ingest configuration
# ============================
# Edit the REQUIRED settings below, then customize optional settings when needed.

[paths]
database_path = "~/.local/share/chaffee-ingest/segments.db"
voices_dir = "~/.local/share/chaffee-ingest/voices"
scratch_dir = "~/.local/share/chaffee-ingest/scratch"
log_dir = "~/.local/share/chaffee-ingest/logs"

[source]
kind = "local_listing"                 # external_api | local_listing
channel_feed_url = ""                  # YouTube channel RSS/Atom feed URL
api_base_url = ""
api_key = ""
skip_shorts = true
shorts_threshold_s = 60

[fetch]
yt_dlp_binary = "yt-dlp"
timeout_s = 600

[audio]
chunk_threshold_s = 1800
ffmpeg_binary = "ffmpeg"
ffprobe_binary = "ffprobe"
cleanup_after = true

[asr]
model_id = "distil-whisper-large-v3"
model_dir = "~/.local/share/chaffee-ingest/models/asr"
compute = "int8_float16"
provider = "auto"
workers = 1

[diarizer]
model_dir = "~/.local/share/chaffee-ingest/models/diarizer"
provider = "auto"
clustering_threshold = 0.4
min_on = 0.0
min_off = 0.0

[speaker_model]
model_id = "ecapa-tdnn"
model_dir = "~/.local/share/chaffee-ingest/models/speaker"
provider = "auto"
voice_batch = 8
max_span_s = 60

[text_embedding]
model_id = "bge-small-en-v1.5"
model_dir = "~/.local/share/chaffee-ingest/models/text-embed"
d_text = 384
batch = 64
device = "gpu"
onnx_provider = "auto"

[attribution]
chaffee_min_sim = 0.62
fast_path_enabled = true
assume_monologue = true
variance_split_range = 0.5
variance_probe_k = 10

[workflow]
io_workers = 12
db_workers = 4
per_video_timeout_s = 1800
grace_period_s = 60
max_retries = 3
queue_poll_interval = 5
error_retry_interval = 10
heartbeat_interval_s = 15

[logging]
format = "console"
level = "info"
retention_days = 60

[bootstrap]
seed_list_path = "~/.config/chaffee-ingest/seed_list.json"
`
	return os.WriteFile(path, []byte(sample), 0o644)
}
