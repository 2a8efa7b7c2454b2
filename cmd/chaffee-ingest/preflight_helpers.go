package main

import (
	"context"
	"fmt"
	"io"

	"chaffee-ingest/internal/config"
	"chaffee-ingest/internal/preflight"
)

// runPreflight executes the filesystem/binary/model-directory checks that
// don't require any component to be constructed yet.
func runPreflight(ctx context.Context, cfg *config.Config) []preflight.Result {
	return preflight.RunAll(ctx, cfg)
}

// printPreflightResults writes one line per check and returns the number
// that failed.
func printPreflightResults(out io.Writer, results []preflight.Result) int {
	failed := 0
	for _, r := range results {
		mark := "ok"
		if !r.Passed {
			mark = "FAIL"
			failed++
		}
		if r.Detail != "" {
			fmt.Fprintf(out, "  [%s] %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Fprintf(out, "  [%s] %s\n", mark, r.Name)
		}
	}
	return failed
}
