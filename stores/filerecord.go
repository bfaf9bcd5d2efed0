package stores

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/quarrydev/quarry/types"
)

// FileKey is the identity field of file-backed documents.
const FileKey = "file_id"

// fileIDNamespace seeds the deterministic UUIDv5 identities of
// FileRecords. Derived identities stay stable across rescans as long as
// the file's path relative to the store root is unchanged.
var fileIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("quarry://filestore"))

// protectedFileFields are always recomputed from disk and never accepted
// from user-supplied metadata. "path" is special-cased on the write side:
// it is persisted as an informational field but remains non-authoritative.
var protectedFileFields = map[string]bool{
	"name":         true,
	"parent":       true,
	"path":         true,
	"size":         true,
	"hash":         true,
	"last_updated": true,
	"orphan":       true,
}

// FileRecord describes exactly one file on disk. Records are recomputed
// fresh on every scan and never persisted; only the orthogonal metadata
// document keyed by FileID is.
type FileRecord struct {
	Name        string
	Parent      string
	Path        string
	Size        int64
	Hash        string
	FileID      string
	LastUpdated time.Time
}

// NewFileRecord stats and hashes the file at path, which must live under
// root.
func NewFileRecord(root, path string) (FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileRecord{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return FileRecord{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	digest := sha256.Sum256(content)

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return FileRecord{}, fmt.Errorf("path %s is not under %s: %w", path, root, err)
	}
	rel = filepath.ToSlash(rel)

	return FileRecord{
		Name:        filepath.Base(path),
		Parent:      filepath.Base(filepath.Dir(path)),
		Path:        path,
		Size:        info.Size(),
		Hash:        hex.EncodeToString(digest[:]),
		FileID:      uuid.NewSHA1(fileIDNamespace, []byte(rel)).String(),
		LastUpdated: info.ModTime().UTC(),
	}, nil
}

// Document renders the record as a store document.
func (r FileRecord) Document() types.Document {
	return types.Document{
		"name":         r.Name,
		"parent":       r.Parent,
		"path":         r.Path,
		"size":         r.Size,
		"hash":         r.Hash,
		FileKey:        r.FileID,
		"last_updated": r.LastUpdated,
	}
}
