// Package audiofetch wraps yt-dlp as a subprocess (C3), following the
// teacher's drapto/makemkv client pattern: build args, run under a context
// deadline, scan stdout/stderr line by line, classify failures.
package audiofetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Config parameterizes the yt-dlp subprocess.
type Config struct {
	Binary     string
	TimeoutS   int
	ScratchDir string
}

// Failure classes returned by Fetch, mirroring services.Wrap's marker style
// without depending on internal/services directly (audiofetch has no other
// need for that package).
var (
	// ErrNetwork is retryable: the failure looks transient (timeout, reset,
	// temporary DNS/connection trouble).
	ErrNetwork = errors.New("audiofetch: network error")
	// ErrUnavailable is permanent: the video is gone, private, or blocked.
	ErrUnavailable = errors.New("audiofetch: video unavailable")
	// ErrFormat is permanent: no audio stream matched the requested format.
	ErrFormat = errors.New("audiofetch: no matching audio format")
)

// Result describes a completed download.
type Result struct {
	Path      string
	DurationS float64
}

// Fetcher runs yt-dlp downloads into a scratch directory.
type Fetcher struct {
	cfg Config
}

// New constructs a Fetcher. binary/scratch dir defaults are the caller's
// responsibility (config.Normalize already fills them in).
func New(cfg Config) *Fetcher {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	return &Fetcher{cfg: cfg}
}

// Fetch downloads the best available audio for videoID into
// scratch_dir/{id}.{ext}, reporting progress via bar when non-nil.
func (f *Fetcher) Fetch(ctx context.Context, videoID, url string, bar *progressbar.ProgressBar) (Result, error) {
	timeout := time.Duration(f.cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outputTemplate := filepath.Join(f.cfg.ScratchDir, videoID+".%(ext)s")
	args := []string{
		"--newline",
		"--no-playlist",
		"-f", "bestaudio/best",
		"-o", outputTemplate,
		"--print", "after_move:filepath",
		url,
	}
	cmd := exec.CommandContext(ctx, f.cfg.Binary, args...) //nolint:gosec

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start yt-dlp: %w", err)
	}

	var finalPath string
	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		finalPath = scanStdout(stdout, bar)
	}()

	stderrLines := scanStderr(stderr)
	<-stdoutDone

	waitErr := cmd.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, fmt.Errorf("%w: yt-dlp timed out after %s", ErrNetwork, timeout)
	}
	if waitErr != nil {
		return Result{}, classifyFailure(stderrLines, waitErr)
	}
	if finalPath == "" {
		return Result{}, fmt.Errorf("%w: yt-dlp exited without reporting an output path", ErrFormat)
	}

	return Result{Path: finalPath}, nil
}

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

func scanStdout(r io.Reader, bar *progressbar.ProgressBar) string {
	scanner := bufio.NewScanner(r)
	var lastPath string
	for scanner.Scan() {
		line := scanner.Text()
		if bar != nil {
			if m := percentPattern.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
					_ = bar.Set(int(pct))
				}
			}
		}
		if strings.HasPrefix(line, "/") || looksLikeFilePath(line) {
			lastPath = strings.TrimSpace(line)
		}
	}
	return lastPath
}

func looksLikeFilePath(line string) bool {
	return !strings.Contains(line, "[") && strings.Contains(line, ".") && !strings.Contains(line, " ")
}

func scanStderr(r io.Reader) []string {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func classifyFailure(stderrLines []string, waitErr error) error {
	joined := strings.ToLower(strings.Join(stderrLines, "\n"))

	switch {
	case strings.Contains(joined, "video unavailable"),
		strings.Contains(joined, "private video"),
		strings.Contains(joined, "account associated with this video has been terminated"),
		strings.Contains(joined, "this video is not available"):
		return fmt.Errorf("%w: %s", ErrUnavailable, lastNonEmpty(stderrLines))
	case strings.Contains(joined, "requested format is not available"),
		strings.Contains(joined, "no video formats found"):
		return fmt.Errorf("%w: %s", ErrFormat, lastNonEmpty(stderrLines))
	case strings.Contains(joined, "unable to download webpage"),
		strings.Contains(joined, "connection reset"),
		strings.Contains(joined, "temporary failure"),
		strings.Contains(joined, "timed out"),
		strings.Contains(joined, "http error 5"):
		return fmt.Errorf("%w: %s", ErrNetwork, lastNonEmpty(stderrLines))
	default:
		return fmt.Errorf("yt-dlp failed: %w (%s)", waitErr, lastNonEmpty(stderrLines))
	}
}

func lastNonEmpty(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

// NewProgressBar builds a progress bar for a fetch, a no-op when quiet.
func NewProgressBar(videoID string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return nil
	}
	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(fmt.Sprintf("fetching %s", videoID)),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
