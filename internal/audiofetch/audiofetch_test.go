package audiofetch

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyFailureUnavailable(t *testing.T) {
	err := classifyFailure([]string{"ERROR: Video unavailable. This video has been removed."}, errors.New("exit status 1"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClassifyFailureFormat(t *testing.T) {
	err := classifyFailure([]string{"ERROR: Requested format is not available"}, errors.New("exit status 1"))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestClassifyFailureNetwork(t *testing.T) {
	err := classifyFailure([]string{"ERROR: unable to download webpage: HTTP Error 503"}, errors.New("exit status 1"))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestClassifyFailureFallsThroughToGenericError(t *testing.T) {
	err := classifyFailure([]string{"ERROR: something unexpected happened"}, errors.New("exit status 1"))
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrFormat) || errors.Is(err, ErrNetwork) {
		t.Fatalf("expected unclassified error, got %v", err)
	}
}

func TestScanStdoutParsesFinalPath(t *testing.T) {
	r := strings.NewReader("[download] Destination: foo.webm\n[download]  50.0% of 10MiB\n/scratch/abc123.webm\n")
	path := scanStdout(r, nil)
	if path != "/scratch/abc123.webm" {
		t.Fatalf("expected parsed final path, got %q", path)
	}
}
