// Package preflight runs startup checks before a pipeline run begins:
// scratch and voice-profile directories must be writable, the database
// must be reachable, the external binaries the pipeline shells out to
// must be on PATH, and the configured model directories must exist and be
// non-empty (their contents are validated by the engine constructors).
package preflight

import (
	"context"

	"chaffee-ingest/internal/config"
	"chaffee-ingest/internal/deps"
	"chaffee-ingest/internal/stage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every startup check against the given config. It does not
// open model engines itself; CheckComponents covers readiness once the
// pipeline's long-lived components have been constructed.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir))
	results = append(results, CheckDirectoryAccess("Voices directory", cfg.Paths.VoicesDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckModelDir("ASR model directory", cfg.ASR.ModelDir))
	results = append(results, CheckModelDir("Diarizer model directory", cfg.Diarizer.ModelDir))
	results = append(results, CheckModelDir("Speaker model directory", cfg.SpeakerModel.ModelDir))
	results = append(results, CheckModelDir("Text embedding model directory", cfg.TextEmbedding.ModelDir))

	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Command
		}
		results = append(results, result)
	}

	return results
}

// CheckSystemDeps evaluates every external binary the pipeline shells out
// to: ffmpeg and ffprobe for decoding, yt-dlp for fetching.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	requirements := []deps.Requirement{
		{Name: "yt-dlp", Command: cfg.Fetch.YtDlpBinary, Description: "Required to download video audio"},
		{Name: "ffmpeg", Command: cfg.Audio.FFmpegBinary, Description: "Required to decode non-WAV containers"},
		{Name: "ffprobe", Command: cfg.Audio.FFprobeBinary, Description: "Required to inspect source duration"},
	}
	return deps.CheckBinaries(requirements)
}

// CheckComponents aggregates the health of every long-lived model/storage
// component once they have been constructed, so a broken ONNX session or an
// unreachable database surfaces before the run loop starts.
func CheckComponents(checkers ...stage.HealthChecker) []Result {
	results := make([]Result, 0, len(checkers))
	for _, c := range checkers {
		if c == nil {
			continue
		}
		health := c.HealthCheck()
		results = append(results, Result{Name: health.Name, Passed: health.Ready, Detail: health.Detail})
	}
	return results
}
