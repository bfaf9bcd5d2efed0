// Package testutil provides shared helpers for store tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quarrydev/quarry/types"
)

// ScratchTree materializes files (relative path -> content) under a
// temporary directory and returns its root. The directory is cleaned up
// with the test.
func ScratchTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// CalcTree is a small fixture tree with files at three depths, used by
// the file store tests.
func CalcTree(t *testing.T) string {
	t.Helper()
	return ScratchTree(t, map[string]string{
		"file_at_root.txt":        "root level\n",
		"calculation1/input.in":   "input one\n",
		"calculation1/output.out": "output one\n",
		"calculation2/input.in":   "input two\n",
		"calculation2/output.out": "output two\n",
		"calculation1/subdir/file_2_levels_deep.json": "{\"deep\": true}\n",
	})
}

// MustReadAll drains a cursor and fails the test on error. Callers pass
// the Query result pair straight through.
func MustReadAll(t *testing.T, c types.Cursor, err error) []types.Document {
	t.Helper()
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	docs, err := types.ReadAll(c)
	if err != nil {
		t.Fatalf("read cursor: %v", err)
	}
	return docs
}
