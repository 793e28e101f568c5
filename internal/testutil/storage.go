package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"qnote/internal/asset"
	"qnote/internal/layout"
)

// NewTestStore creates a storage root with its assets and garbages
// directories under t.TempDir() and returns a Store and GarbageManager on it.
func NewTestStore(t *testing.T, ids asset.IDGenerator) (*asset.Store, *asset.GarbageManager) {
	t.Helper()

	l := layout.New(filepath.Join(t.TempDir(), "root"))
	for _, dir := range []string{l.AssetsDir(), l.GarbagesDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	return asset.NewStore(l, ids), asset.NewGarbageManager(l)
}

// WriteSourceFile writes content to a new file called name in a temporary
// directory and returns its path.
func WriteSourceFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	return path
}
