package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chaffee-ingest/internal/logging"
)

// ErrInterrupted is returned by RunWithSignals whenever a stop signal was
// received, whether or not in-flight videos finished draining before the
// grace period elapsed; an error Run returned while draining is wrapped in
// it. It maps to the CLI's documented exit code 130.
var ErrInterrupted = errors.New("interrupted")

// RunWithSignals runs the pipeline under a context cancelled on SIGINT or
// SIGTERM, adapted from the teacher's Manager.Stop() cancel+WaitGroup
// shutdown: in-flight videos get grace_period_s to finish before Run
// returns regardless of whether they completed.
func (p *Pipeline) RunWithSignals(ctx context.Context) error {
	notifyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- p.Run(notifyCtx) }()

	select {
	case err := <-done:
		return err
	case <-notifyCtx.Done():
		p.logger.Warn("shutdown signal received; draining in-flight videos",
			logging.String(logging.FieldEventType, "shutdown_signal"),
		)
		grace := time.Duration(positive(p.cfg.Workflow.GracePeriodS, 30)) * time.Second
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInterrupted, err)
			}
			return ErrInterrupted
		case <-time.After(grace):
			p.logger.Error("grace period elapsed with videos still in flight; exiting",
				logging.String(logging.FieldEventType, "shutdown_grace_period_exceeded"),
				logging.String(logging.FieldErrorHint, "increase workflow.grace_period_s or investigate stuck worker"),
			)
			return ErrInterrupted
		}
	}
}
