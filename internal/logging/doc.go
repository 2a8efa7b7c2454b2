// Package logging assembles structured slog loggers and formatting helpers used
// across the ingestion pipeline's components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline stages can
// automatically tag log lines with a work-unit identifier, stage name, and
// correlation ID. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
//
// # Logging Contract
//
// Level semantics:
//   - INFO: narrative milestones plus decisions that change how a video was
//     attributed or persisted (fast-path bypass, diarizer constraint, speaker
//     label, checkpoint status).
//   - WARN: degraded behavior or user action needed (fallbacks, retried videos).
//   - ERROR: operation failed; will stop or retry.
//   - DEBUG: raw diagnostics, per-cluster similarity scores, model payloads,
//     and decisions that do not affect the committed segments.
//
// # Required Fields by Level
//
// INFO logs must include:
//   - event_type: lifecycle event (e.g., "stage_start", "stage_complete", "status")
//
// WARN logs must include all three fields (the "WARN triad"):
//   - event_type: what happened (e.g., "checkpoint_lookup_failed")
//   - error_hint: actionable next step (e.g., "check database connectivity")
//   - impact: user-facing consequence (e.g., "video skipped this run")
//
// Use WarnWithContext() helper to enforce the WARN triad automatically.
//
// ERROR logs must include:
//   - event_type: what failed
//   - error_hint: actionable next step
//   - error (via logging.Error()): the underlying error
//
// Use ErrorWithContext() helper to enforce error fields automatically.
//
// # Decision Logging
//
// Decision logs record choices that affect output. Required fields:
//   - decision_type: category (e.g., "fast_path", "diarizer_constraint", "speaker_label")
//   - decision_result: outcome (e.g., "accepted", "rejected", "applied", "fallback")
//   - decision_reason: why (e.g., "similarity_above_threshold", "heterogeneous_cluster")
//   - decision_options: alternatives considered (e.g., "primary, guest")
//   - decision_selected: chosen value (optional, for explicit selection)
//
// When truncating lists to top-N items, include a *_hidden_count field to
// surface how many entries were omitted (e.g., "candidate_hidden_count": 5).
//
// # Common Fields
//
// Progress: progress_stage, progress_percent, progress_message, progress_eta
// Decision: decision_type, decision_result, decision_reason, decision_options, decision_selected
// Events: event_type (stage_start, stage_complete, stage_failure)
// Errors: error_kind, error_operation, error_detail_path, error_code, error_hint, impact
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
