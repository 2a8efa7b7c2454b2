// Package preflight provides readiness checks for filesystem paths,
// external binaries, and long-lived model/storage components the
// ingestion pipeline depends on.
//
// These checks run in two contexts:
//   - The CLI's ingest command calls RunAll before starting the pipeline.
//     If any check fails, the run aborts before burning GPU time.
//   - CheckComponents runs after the ASR/diarization/embedding engines and
//     the database are constructed, aggregating their HealthCheck results.
package preflight
