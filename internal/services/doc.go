// Package services defines shared utilities consumed by the pipeline stage
// handlers.
//
// Key responsibilities:
//   - Context helpers that stamp numeric work-unit ids, stage names, lanes,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into a consistent classification for checkpointing and logging.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
