package services_test

import (
	"errors"
	"testing"

	"chaffee-ingest/internal/services"
)

func TestWrapAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "fetch", "download", "failed", base)

	var se *services.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if se.Kind != services.ErrorKindExternal {
		t.Fatalf("unexpected kind %q", se.Kind)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to match wrapped error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected errors.Is to match the marker")
	}
}

func TestDetailsReportsValidationKindAndStage(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "attribution", "classify", "bad input", nil)
	details := services.Details(err)
	if details.Kind != services.ErrorKindValidation {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Stage != "attribution" {
		t.Fatalf("unexpected stage %q", details.Stage)
	}
}

func TestDetailsFallsBackForPlainErrors(t *testing.T) {
	details := services.Details(errors.New("plain"))
	if details.Kind != services.ErrorKindTransient {
		t.Fatalf("expected transient fallback, got %q", details.Kind)
	}
}

func TestWrapHintCarriesCodeAndHint(t *testing.T) {
	err := services.WrapHint(services.ErrTimeout, "asr", "transcribe", "timed out", "E_ASR_TIMEOUT", "retry the video", nil)
	details := services.Details(err)
	if details.Code != "E_ASR_TIMEOUT" {
		t.Fatalf("unexpected code %q", details.Code)
	}
	if details.Hint != "retry the video" {
		t.Fatalf("unexpected hint %q", details.Hint)
	}
}
