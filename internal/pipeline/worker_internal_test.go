package pipeline

import (
	"testing"

	"chaffee-ingest/internal/audiofetch"
	"chaffee-ingest/internal/store"
)

func TestPositiveFallsBackOnNonPositive(t *testing.T) {
	cases := []struct {
		v, fallback, want int
	}{
		{5, 2, 5},
		{0, 2, 2},
		{-1, 2, 2},
	}
	for _, tc := range cases {
		if got := positive(tc.v, tc.fallback); got != tc.want {
			t.Errorf("positive(%d, %d) = %d, want %d", tc.v, tc.fallback, got, tc.want)
		}
	}
}

func TestClassifyFetchErrorMapsKnownFailureClasses(t *testing.T) {
	cases := []struct {
		err        error
		wantClass  string
		wantStatus store.CheckpointStatus
	}{
		{audiofetch.ErrNetwork, "network_error", store.CheckpointTransientFail},
		{audiofetch.ErrUnavailable, "unavailable", store.CheckpointPermanentFail},
		{audiofetch.ErrFormat, "format_error", store.CheckpointPermanentFail},
	}
	for _, tc := range cases {
		class, status := classifyFetchError(tc.err)
		if class != tc.wantClass || status != tc.wantStatus {
			t.Errorf("classifyFetchError(%v) = (%q, %q), want (%q, %q)", tc.err, class, status, tc.wantClass, tc.wantStatus)
		}
	}
}
