package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"chaffee-ingest/internal/store"
)

// MustOpenStore opens a store.Store against a fresh temp-dir database and
// registers cleanup.
func MustOpenStore(t testing.TB) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "segments.db")
	s, err := store.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// MustUpsertSource inserts a source descriptor for tests.
func MustUpsertSource(t testing.TB, s *store.Store, desc store.SourceDescriptor) string {
	t.Helper()

	id, err := s.UpsertSource(context.Background(), desc)
	if err != nil {
		t.Fatalf("store.UpsertSource: %v", err)
	}
	return id
}
