// Package config loads, normalizes, and validates ingestion pipeline
// configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ASR_WORKERS and DATABASE_URL. The Config type centralizes every knob the
// pipeline orchestrator and CLI need, from worker counts to model identities,
// so they can be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
