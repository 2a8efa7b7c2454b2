package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chaffee-ingest/internal/metrics"
	"chaffee-ingest/internal/pipeline"
	"chaffee-ingest/internal/preflight"
	"chaffee-ingest/internal/store"
	"chaffee-ingest/internal/voiceprofile"
)

// newIngestCommand wires config -> preflight -> component construction ->
// pipeline.New -> pipeline.RunWithSignals, the primary entry point of the
// CLI. Failures here (config, preflight, component construction) are wrapped
// in errConfiguration and exit with code 2; exitCodeFor also maps any other
// error that matches no sentinel to 2.
func newIngestCommand(ctx *commandContext) *cobra.Command {
	var source string
	var videoIDs []string
	var videoIDsFile string
	var limit int
	var daysBack int
	var newestFirst bool
	var skipShorts bool
	var force bool
	var limitUnprocessed bool
	var dryRun bool
	var scratchDir string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion pipeline over the configured or flag-overridden video source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyIngestFlags(cfg, ingestFlagOverrides{
				source:           source,
				videoIDs:         videoIDs,
				videoIDsFile:     videoIDsFile,
				limit:            limit,
				daysBack:         daysBack,
				newestFirst:      newestFirst,
				skipShorts:       skipShorts,
				force:            force,
				limitUnprocessed: limitUnprocessed,
				dryRun:           dryRun,
				scratchDir:       scratchDir,
			}, cmd.Flags())

			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}

			fsResults := preflight.RunAll(cmd.Context(), cfg)
			if failed := printPreflightResults(cmd.OutOrStdout(), fsResults); failed > 0 {
				return fmt.Errorf("%w: %d preflight check(s) failed", errConfiguration, failed)
			}

			videoSource, err := newVideoSource(cfg)
			if err != nil {
				return fmt.Errorf("%w: %v", errConfiguration, err)
			}
			fetcher := newAudioFetcher(cfg)

			asrEngine, err := newASREngine(cfg)
			if err != nil {
				return fmt.Errorf("%w: %v", errConfiguration, err)
			}
			diarizer, err := newDiarizer(cfg)
			if err != nil {
				return fmt.Errorf("%w: %v", errConfiguration, err)
			}
			voiceEx, err := newVoiceEmbedder(cfg)
			if err != nil {
				return fmt.Errorf("%w: %v", errConfiguration, err)
			}
			profile, err := voiceprofile.Open(cfg.Paths.VoicesDir)
			if err != nil {
				return fmt.Errorf("%w: open voice profile: %v", errConfiguration, err)
			}
			textEmb, err := newTextEmbedder(cfg)
			if err != nil {
				return fmt.Errorf("%w: %v", errConfiguration, err)
			}
			attrib := newAttributor(cfg, profile, voiceEx)

			st, err := store.Open(cmd.Context(), cfg.Paths.DatabasePath)
			if err != nil {
				return fmt.Errorf("%w: open store: %v", errConfiguration, err)
			}
			defer st.Close()

			componentResults := preflight.CheckComponents(asrEngine, diarizer, voiceEx, textEmb, profile, st)
			if failed := printPreflightResults(cmd.OutOrStdout(), componentResults); failed > 0 {
				return fmt.Errorf("%w: %d component health check(s) failed", errConfiguration, failed)
			}

			recorder := metrics.New(logger)
			p := pipeline.New(cfg, videoSource, fetcher, asrEngine, diarizer, voiceEx, profile, textEmb, attrib, st, recorder, logger)

			runErr := p.RunWithSignals(cmd.Context())

			summary := recorder.Summarize()
			fmt.Fprint(cmd.OutOrStdout(), summary.RenderTable())

			return runErr
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Video source kind override (external_api, local_listing)")
	cmd.Flags().StringSliceVar(&videoIDs, "video-ids", nil, "Explicit video ids to ingest (repeatable, skips listing)")
	cmd.Flags().StringVar(&videoIDsFile, "video-ids-file", "", "File of explicit video ids, one per line")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of videos to consider")
	cmd.Flags().IntVar(&daysBack, "days-back", 0, "Only consider videos published in the last N days")
	cmd.Flags().BoolVar(&newestFirst, "newest-first", false, "Process videos newest-first instead of oldest-first")
	cmd.Flags().BoolVar(&skipShorts, "skip-shorts", false, "Skip videos under the configured shorts duration threshold")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest videos even if already successfully checkpointed")
	cmd.Flags().BoolVar(&limitUnprocessed, "limit-unprocessed", false, "Count --limit against unprocessed videos only")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve and filter the source without fetching or persisting")
	cmd.Flags().StringVar(&scratchDir, "scratch-dir", "", "Override the scratch directory for downloaded audio")

	return cmd
}
