package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeFetch()
	c.normalizeAudio()
	c.normalizeModels()
	c.normalizeAttribution()
	c.normalizeWorkflow()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	return c.normalizeBootstrap()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if c.Paths.VoicesDir, err = expandPath(c.Paths.VoicesDir); err != nil {
		return fmt.Errorf("paths.voices_dir: %w", err)
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := os.LookupEnv("DATABASE_URL"); ok && strings.TrimSpace(value) != "" {
		if c.Paths.DatabasePath, err = expandPath(value); err != nil {
			return fmt.Errorf("DATABASE_URL: %w", err)
		}
	}
	if value, ok := os.LookupEnv("VOICES_DIR"); ok && strings.TrimSpace(value) != "" {
		if c.Paths.VoicesDir, err = expandPath(value); err != nil {
			return fmt.Errorf("VOICES_DIR: %w", err)
		}
	}
	if value, ok := os.LookupEnv("SCRATCH_DIR"); ok && strings.TrimSpace(value) != "" {
		if c.Paths.ScratchDir, err = expandPath(value); err != nil {
			return fmt.Errorf("SCRATCH_DIR: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = "local_listing"
	}
	if c.Source.ShortsThresholdSeconds <= 0 {
		c.Source.ShortsThresholdSeconds = defaultShortsThreshold
	}
}

func (c *Config) normalizeFetch() {
	c.Fetch.YtDlpBinary = strings.TrimSpace(c.Fetch.YtDlpBinary)
	if c.Fetch.YtDlpBinary == "" {
		c.Fetch.YtDlpBinary = "yt-dlp"
	}
	if c.Fetch.TimeoutS <= 0 {
		c.Fetch.TimeoutS = defaultFetchTimeoutS
	}
}

func (c *Config) normalizeAudio() {
	c.Audio.FFmpegBinary = strings.TrimSpace(c.Audio.FFmpegBinary)
	if c.Audio.FFmpegBinary == "" {
		c.Audio.FFmpegBinary = "ffmpeg"
	}
	c.Audio.FFprobeBinary = strings.TrimSpace(c.Audio.FFprobeBinary)
	if c.Audio.FFprobeBinary == "" {
		c.Audio.FFprobeBinary = "ffprobe"
	}
	if c.Audio.ChunkThresholdS <= 0 {
		c.Audio.ChunkThresholdS = defaultChunkThresholdS
	}
	if value, ok := os.LookupEnv("CLEANUP_AFTER"); ok {
		c.Audio.CleanupAfter = parseBoolEnv(value, c.Audio.CleanupAfter)
	}
}

func (c *Config) normalizeModels() {
	if value, ok := os.LookupEnv("ASR_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.ASR.ModelID = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("ASR_COMPUTE"); ok && strings.TrimSpace(value) != "" {
		c.ASR.Compute = strings.TrimSpace(value)
	}
	if c.ASR.Compute == "" {
		c.ASR.Compute = defaultASRCompute
	}
	if c.ASR.Provider == "" {
		c.ASR.Provider = "auto"
	}
	if value, ok := os.LookupEnv("ASR_WORKERS"); ok {
		if parsed, err := parseIntEnv(value); err == nil && parsed > 0 {
			c.ASR.Workers = parsed
		}
	}
	if c.ASR.Workers <= 0 {
		c.ASR.Workers = defaultASRWorkers
	}

	if c.Diarizer.ClusteringThreshold <= 0 {
		c.Diarizer.ClusteringThreshold = defaultDiarizerThreshold
	}
	if value, ok := os.LookupEnv("PYANNOTE_CLUSTERING_THRESHOLD"); ok {
		if parsed, err := parseFloatEnv(value); err == nil {
			c.Diarizer.ClusteringThreshold = parsed
		}
	}
	if c.Diarizer.Provider == "" {
		c.Diarizer.Provider = "auto"
	}

	if c.SpeakerModel.VoiceBatch <= 0 {
		c.SpeakerModel.VoiceBatch = defaultVoiceBatch
	}
	if value, ok := os.LookupEnv("VOICE_BATCH"); ok {
		if parsed, err := parseIntEnv(value); err == nil && parsed > 0 {
			c.SpeakerModel.VoiceBatch = parsed
		}
	}
	if c.SpeakerModel.MaxSpanS <= 0 {
		c.SpeakerModel.MaxSpanS = defaultMaxSpanS
	}
	if c.SpeakerModel.Provider == "" {
		c.SpeakerModel.Provider = "auto"
	}

	if value, ok := os.LookupEnv("TEXT_EMBEDDING_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.TextEmbedding.ModelID = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("TEXT_EMBEDDING_DEVICE"); ok && strings.TrimSpace(value) != "" {
		c.TextEmbedding.Device = strings.ToLower(strings.TrimSpace(value))
	}
	if c.TextEmbedding.Device == "" {
		c.TextEmbedding.Device = "gpu"
	}
	if c.TextEmbedding.Dim <= 0 {
		c.TextEmbedding.Dim = defaultTextEmbedDim
	}
	if c.TextEmbedding.Batch <= 0 {
		c.TextEmbedding.Batch = defaultTextEmbedBatch
	}
	if value, ok := os.LookupEnv("TEXT_EMBEDDING_BATCH"); ok {
		if parsed, err := parseIntEnv(value); err == nil && parsed > 0 {
			c.TextEmbedding.Batch = parsed
		}
	}
	if c.TextEmbedding.OnnxProvider == "" {
		c.TextEmbedding.OnnxProvider = "auto"
	}
}

func (c *Config) normalizeAttribution() {
	if c.Attribution.ChaffeeMinSim <= 0 {
		c.Attribution.ChaffeeMinSim = defaultChaffeeMinSim
	}
	if value, ok := os.LookupEnv("CHAFFEE_MIN_SIM"); ok {
		if parsed, err := parseFloatEnv(value); err == nil {
			c.Attribution.ChaffeeMinSim = parsed
		}
	}
	if value, ok := os.LookupEnv("FAST_PATH_ENABLED"); ok {
		c.Attribution.FastPathEnabled = parseBoolEnv(value, c.Attribution.FastPathEnabled)
	}
	if value, ok := os.LookupEnv("ASSUME_MONOLOGUE"); ok {
		c.Attribution.AssumeMonologue = parseBoolEnv(value, c.Attribution.AssumeMonologue)
	}
	if c.Attribution.VarianceSplitRange <= 0 {
		c.Attribution.VarianceSplitRange = defaultVarianceSplit
	}
	if c.Attribution.VarianceProbeK <= 0 {
		c.Attribution.VarianceProbeK = defaultVarianceProbeK
	}
}

func (c *Config) normalizeWorkflow() {
	if value, ok := os.LookupEnv("IO_WORKERS"); ok {
		if parsed, err := parseIntEnv(value); err == nil && parsed > 0 {
			c.Workflow.IOWorkers = parsed
		}
	}
	if c.Workflow.IOWorkers <= 0 {
		c.Workflow.IOWorkers = defaultIOWorkers
	}
	if value, ok := os.LookupEnv("DB_WORKERS"); ok {
		if parsed, err := parseIntEnv(value); err == nil && parsed > 0 {
			c.Workflow.DBWorkers = parsed
		}
	}
	if c.Workflow.DBWorkers <= 0 {
		c.Workflow.DBWorkers = defaultDBWorkers
	}
	if c.Workflow.PerVideoTimeoutS <= 0 {
		c.Workflow.PerVideoTimeoutS = defaultPerVideoTimeoutS
	}
	if c.Workflow.GracePeriodS <= 0 {
		c.Workflow.GracePeriodS = defaultGracePeriodS
	}
	if value, ok := os.LookupEnv("MAX_RETRIES"); ok {
		if parsed, err := parseIntEnv(value); err == nil && parsed >= 0 {
			c.Workflow.MaxRetries = parsed
		}
	}
	if c.Workflow.MaxRetries <= 0 {
		c.Workflow.MaxRetries = defaultMaxRetries
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatIntervalS <= 0 {
		c.Workflow.HeartbeatIntervalS = defaultHeartbeatIntervalS
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
	return nil
}

func (c *Config) normalizeBootstrap() error {
	if strings.TrimSpace(c.Bootstrap.SeedListPath) == "" {
		c.Bootstrap.SeedListPath = defaultSeedListPath
	}
	expanded, err := expandPath(c.Bootstrap.SeedListPath)
	if err != nil {
		return fmt.Errorf("bootstrap.seed_list_path: %w", err)
	}
	c.Bootstrap.SeedListPath = expanded
	return nil
}

func parseBoolEnv(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseIntEnv(value string) (int, error) {
	var parsed int
	_, err := fmt.Sscanf(strings.TrimSpace(value), "%d", &parsed)
	return parsed, err
}

func parseFloatEnv(value string) (float64, error) {
	var parsed float64
	_, err := fmt.Sscanf(strings.TrimSpace(value), "%g", &parsed)
	return parsed, err
}
