package stage

import (
	"log/slog"
)

// HealthChecker is implemented by each long-lived pipeline component (ASR
// engine, diarizer, voice embedder, text embedder, voice profile store) so
// the preflight and readiness paths can aggregate status without knowing
// each component's concrete type. None of these checks block on I/O, so the
// method takes no context.
type HealthChecker interface {
	HealthCheck() Health
}

// LoggerAware is implemented by components that accept a per-item logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
