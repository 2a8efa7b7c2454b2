package config

const (
	defaultDatabasePath    = "~/.local/share/chaffee-ingest/segments.db"
	defaultVoicesDir       = "~/.local/share/chaffee-ingest/voices"
	defaultScratchDir      = "~/.local/share/chaffee-ingest/scratch"
	defaultLogDir          = "~/.local/share/chaffee-ingest/logs"
	defaultLogRetentionDays = 60
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultShortsThreshold = 60
	defaultFetchTimeoutS   = 600
	defaultChunkThresholdS = 1800
	defaultASRCompute      = "int8_float16"
	defaultDiarizerThreshold = 0.4
	defaultVoiceBatch      = 8
	defaultMaxSpanS        = 60.0
	defaultTextEmbedDim    = 384
	defaultTextEmbedBatch  = 64
	defaultChaffeeMinSim   = 0.62
	defaultVarianceSplit   = 0.5
	defaultVarianceProbeK  = 10
	defaultIOWorkers       = 12
	defaultDBWorkers       = 4
	defaultASRWorkers      = 1
	defaultPerVideoTimeoutS = 1800
	defaultGracePeriodS    = 60
	defaultMaxRetries      = 3
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatIntervalS = 15
	defaultSeedListPath    = "~/.config/chaffee-ingest/seed_list.json"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DatabasePath: defaultDatabasePath,
			VoicesDir:    defaultVoicesDir,
			ScratchDir:   defaultScratchDir,
			LogDir:       defaultLogDir,
		},
		Source: Source{
			Kind:                   "local_listing",
			SkipShorts:             true,
			ShortsThresholdSeconds: defaultShortsThreshold,
		},
		Fetch: Fetch{
			YtDlpBinary: "yt-dlp",
			TimeoutS:    defaultFetchTimeoutS,
		},
		Audio: Audio{
			ChunkThresholdS: defaultChunkThresholdS,
			FFmpegBinary:    "ffmpeg",
			FFprobeBinary:   "ffprobe",
			CleanupAfter:    true,
		},
		ASR: ASR{
			ModelID:  "distil-whisper-large-v3",
			Compute:  defaultASRCompute,
			Provider: "auto",
			Workers:  defaultASRWorkers,
		},
		Diarizer: Diarizer{
			Provider:            "auto",
			ClusteringThreshold: defaultDiarizerThreshold,
		},
		SpeakerModel: SpeakerModel{
			ModelID:    "ecapa-tdnn",
			Provider:   "auto",
			VoiceBatch: defaultVoiceBatch,
			MaxSpanS:   defaultMaxSpanS,
		},
		TextEmbedding: TextEmbedding{
			ModelID:      "bge-small-en-v1.5",
			Dim:          defaultTextEmbedDim,
			Batch:        defaultTextEmbedBatch,
			Device:       "gpu",
			OnnxProvider: "auto",
		},
		Attribution: Attribution{
			ChaffeeMinSim:      defaultChaffeeMinSim,
			FastPathEnabled:    true,
			AssumeMonologue:    true,
			VarianceSplitRange: defaultVarianceSplit,
			VarianceProbeK:     defaultVarianceProbeK,
		},
		Workflow: Workflow{
			IOWorkers:          defaultIOWorkers,
			DBWorkers:          defaultDBWorkers,
			PerVideoTimeoutS:   defaultPerVideoTimeoutS,
			GracePeriodS:       defaultGracePeriodS,
			MaxRetries:         defaultMaxRetries,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatIntervalS: defaultHeartbeatIntervalS,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Bootstrap: Bootstrap{
			SeedListPath: defaultSeedListPath,
		},
	}
}
