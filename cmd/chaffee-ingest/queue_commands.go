package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"chaffee-ingest/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect ingestion checkpoints",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func openQueueStore(cmdCtx context.Context, ctx *commandContext) (*store.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cmdCtx, cfg.Paths.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open store: %v", errConfiguration, err)
	}
	return st, nil
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the most recent checkpoint status per source",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openQueueStore(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue status: %w", err)
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No ingestion checkpoints recorded yet")
				return nil
			}

			statuses := make([]string, 0, len(stats))
			for status := range stats {
				statuses = append(statuses, string(status))
			}
			sort.Strings(statuses)

			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				rows = append(rows, []string{status, fmt.Sprintf("%d", stats[store.CheckpointStatus(status)])})
			}

			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "List source ids eligible for a retry, by checkpoint status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openQueueStore(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			want := store.CheckpointTransientFail
			if status != "" {
				want = store.CheckpointStatus(status)
			}

			ids, err := st.ListBySourceIDStatus(cmd.Context(), want)
			if err != nil {
				return fmt.Errorf("queue retry: %w", err)
			}
			if len(ids) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No sources with checkpoint status %q\n", want)
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Checkpoint status to list (default: transient_fail)")
	return cmd
}
