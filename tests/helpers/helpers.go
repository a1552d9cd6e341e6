// Package helpers provides shared test fixtures.
package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taskfleet/supervisor/store"
)

// NewTestSQLiteStore returns an in-memory history store that closes with the
// test.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// WriteRegistryFile writes content as a registry file in a test temp dir and
// returns its path.
func WriteRegistryFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write registry file: %v", err)
	}
	return path
}
