package main

import (
	"github.com/spf13/pflag"

	"chaffee-ingest/internal/config"
)

// ingestFlagOverrides carries every `ingest` flag value; applyIngestFlags
// only overwrites a config field when the corresponding flag was actually
// passed, so an unset flag leaves the loaded config.toml value intact.
type ingestFlagOverrides struct {
	source           string
	videoIDs         []string
	videoIDsFile     string
	limit            int
	daysBack         int
	newestFirst      bool
	skipShorts       bool
	force            bool
	limitUnprocessed bool
	dryRun           bool
	scratchDir       string
}

func applyIngestFlags(cfg *config.Config, o ingestFlagOverrides, flags *pflag.FlagSet) {
	if flags.Changed("source") {
		cfg.Source.Kind = o.source
	}
	if flags.Changed("video-ids") {
		cfg.Source.VideoIDs = o.videoIDs
	}
	if flags.Changed("video-ids-file") {
		cfg.Source.VideoIDsFile = o.videoIDsFile
	}
	if flags.Changed("limit") {
		cfg.Source.Limit = o.limit
	}
	if flags.Changed("days-back") {
		cfg.Source.DaysBack = o.daysBack
	}
	if flags.Changed("newest-first") {
		cfg.Source.NewestFirst = o.newestFirst
	}
	if flags.Changed("skip-shorts") {
		cfg.Source.SkipShorts = o.skipShorts
	}
	if flags.Changed("force") {
		cfg.Workflow.Force = o.force
	}
	if flags.Changed("limit-unprocessed") {
		cfg.Source.LimitUnprocessed = o.limitUnprocessed
	}
	if flags.Changed("dry-run") {
		cfg.Workflow.DryRun = o.dryRun
	}
	if flags.Changed("scratch-dir") {
		cfg.Paths.ScratchDir = o.scratchDir
	}
}
