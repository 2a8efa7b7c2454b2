package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"chaffee-ingest/internal/bootstrap"
	"chaffee-ingest/internal/media/audio"
	"chaffee-ingest/internal/voiceprofile"
)

func newBootstrapCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "bootstrap <seed-list>",
		Short: "Build the primary-speaker voice profile from a seed list of known recordings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}

			profile, err := voiceprofile.Open(cfg.Paths.VoicesDir)
			if err != nil {
				return fmt.Errorf("%w: open voice profile store: %v", errConfiguration, err)
			}
			if profile.Exists() && !force {
				fmt.Fprintln(cmd.OutOrStdout(), "Voice profile already exists; use --force to rebuild it")
				return nil
			}

			voiceEx, err := newVoiceEmbedder(cfg)
			if err != nil {
				return fmt.Errorf("%w: %v", errConfiguration, err)
			}

			seeds, err := bootstrap.LoadSeedList(args[0])
			if err != nil {
				return fmt.Errorf("%w: load seed list: %v", errConfiguration, err)
			}

			fetcher := newAudioFetcher(cfg)
			runner := bootstrap.New(fetcher, audio.DecodeConfig{
				FFmpegBinary:    cfg.Audio.FFmpegBinary,
				FFprobeBinary:   cfg.Audio.FFprobeBinary,
				ChunkThresholdS: cfg.Audio.ChunkThresholdS,
			}, voiceEx, profile, cfg.SpeakerModel.ModelID, logger)

			if err := runner.Run(cmd.Context(), seeds); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Voice profile built from %d seed recording(s)\n", len(seeds))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild the voice profile even if one already exists")
	return cmd
}
