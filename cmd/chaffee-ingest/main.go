// Command chaffee-ingest drives the YouTube audio ingestion pipeline: it
// resolves a video source, fetches and decodes audio, transcribes and
// diarizes it, attributes segments to the primary speaker, embeds and
// persists them, and reports a run summary.
package main

import (
	"errors"
	"fmt"
	"os"

	"chaffee-ingest/internal/pipeline"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a run's terminal error to the documented CLI exit codes:
// 0 success (even with per-video failures, which never reach here as an
// error), 2 configuration error, 3 source unavailable, 130 interrupted.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInterrupted):
		return 130
	case errors.Is(err, pipeline.ErrSourceUnavailable):
		return 3
	case errors.Is(err, errConfiguration):
		return 2
	default:
		return 2
	}
}
