package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateAttribution(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateTextEmbedding()
}

func (c *Config) validatePaths() error {
	if c.Paths.DatabasePath == "" {
		return errors.New("paths.database_path must be set")
	}
	if c.Paths.VoicesDir == "" {
		return errors.New("paths.voices_dir must be set")
	}
	if c.Paths.ScratchDir == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.Source.Kind {
	case "external_api", "local_listing":
	default:
		return fmt.Errorf("source.kind: unsupported value %q", c.Source.Kind)
	}
	if c.Source.Kind == "external_api" && strings.TrimSpace(c.Source.APIBaseURL) == "" {
		return errors.New("source.api_base_url must be set when source.kind is external_api")
	}
	if c.Source.Kind == "local_listing" && strings.TrimSpace(c.Source.ChannelFeedURL) == "" && len(c.Source.VideoIDs) == 0 && c.Source.VideoIDsFile == "" {
		return errors.New("source.channel_feed_url must be set when source.kind is local_listing (or supply explicit video ids)")
	}
	return nil
}

func (c *Config) validateAttribution() error {
	if c.Attribution.ChaffeeMinSim < 0 || c.Attribution.ChaffeeMinSim > 1 {
		return errors.New("attribution.chaffee_min_sim must be between 0 and 1")
	}
	if c.Attribution.VarianceSplitRange <= 0 {
		return errors.New("attribution.variance_split_range must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.io_workers":           c.Workflow.IOWorkers,
		"workflow.db_workers":           c.Workflow.DBWorkers,
		"asr.workers":                   c.ASR.Workers,
		"workflow.per_video_timeout_s":  c.Workflow.PerVideoTimeoutS,
		"workflow.grace_period_s":       c.Workflow.GracePeriodS,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.heartbeat_interval_s": c.Workflow.HeartbeatIntervalS,
	})
}

func (c *Config) validateTextEmbedding() error {
	if c.TextEmbedding.Dim <= 0 {
		return errors.New("text_embedding.d_text must be positive")
	}
	if c.TextEmbedding.Batch <= 0 {
		return errors.New("text_embedding.batch must be positive")
	}
	switch c.TextEmbedding.Device {
	case "cpu", "gpu":
	default:
		return fmt.Errorf("text_embedding.device: unsupported value %q", c.TextEmbedding.Device)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
