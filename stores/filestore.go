package stores

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/quarrydev/quarry/types"
)

// DefaultJSONName is the default metadata side-file name.
const DefaultJSONName = "FileStore.json"

// FileStore serves a directory tree as a document store. Connect scans
// the tree into FileRecords, merges them with the persisted metadata
// side-file, flags metadata whose file no longer exists as orphaned, and
// loads the merged set into an in-memory collection that is rebuilt
// wholesale on every Connect.
//
// Only non-protected fields a user attached to a file are ever persisted;
// everything derivable from disk is recomputed on each scan, so stale
// persisted values can never shadow on-disk truth.
type FileStore struct {
	path        string
	readOnly    bool
	maxDepth    int // -1 means unlimited
	fileFilters []string
	jsonName    string
	log         zerolog.Logger

	mu      sync.Mutex
	coll    *MemoryStore
	records []FileRecord
}

// FileStoreOption customizes a FileStore.
type FileStoreOption func(*FileStore)

// Writable enables Update on the store. Bare construction is read-only.
func Writable() FileStoreOption {
	return func(s *FileStore) { s.readOnly = false }
}

// WithMaxDepth limits directory traversal: 0 scans only the root, 1 adds
// one level of subdirectories, and so on. Default is unlimited.
func WithMaxDepth(depth int) FileStoreOption {
	return func(s *FileStore) { s.maxDepth = depth }
}

// WithFileFilters restricts the scan to files whose base name matches at
// least one of the given glob patterns. Default is all files.
func WithFileFilters(globs ...string) FileStoreOption {
	return func(s *FileStore) { s.fileFilters = globs }
}

// WithJSONName overrides the metadata side-file name (default
// "FileStore.json").
func WithJSONName(name string) FileStoreOption {
	return func(s *FileStore) { s.jsonName = name }
}

// WithFileStoreLogger attaches a logger to the store.
func WithFileStoreLogger(l zerolog.Logger) FileStoreOption {
	return func(s *FileStore) { s.log = l }
}

// NewFileStore creates a store over the directory at root.
func NewFileStore(root string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:     root,
		readOnly: true,
		maxDepth: -1,
		jsonName: DefaultJSONName,
		log:      defaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Name() string             { return "file://" + s.path }
func (s *FileStore) Key() string              { return FileKey }
func (s *FileStore) LastUpdatedField() string { return "last_updated" }

// Path returns the store root directory.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) jsonPath() string { return filepath.Join(s.path, s.jsonName) }
func (s *FileStore) lockPath() string { return s.jsonPath() + ".lock" }

// Connect scans the directory, reconciles with persisted metadata, and
// builds the in-memory collection.
func (s *FileStore) Connect() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("cannot open filestore root %s: %w", s.path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filestore root %s is not a directory: %w", s.path, types.ErrConfig)
	}

	records, err := s.scan()
	if err != nil {
		return err
	}
	metadata, err := s.loadMetadata()
	if err != nil {
		return err
	}

	metaByID := make(map[string]types.Document, len(metadata))
	for _, meta := range metadata {
		if id, ok := meta[FileKey].(string); ok {
			metaByID[id] = meta
		}
	}

	docs := make([]types.Document, 0, len(records)+len(metadata))
	live := make(map[string]bool, len(records))
	for _, rec := range records {
		doc := rec.Document()
		live[rec.FileID] = true
		if meta, ok := metaByID[rec.FileID]; ok {
			for k, v := range meta {
				if protectedFileFields[k] || k == FileKey {
					continue
				}
				doc[k] = v
			}
		}
		docs = append(docs, doc)
	}

	orphans := 0
	for id, meta := range metaByID {
		if live[id] {
			continue
		}
		doc := meta.Clone()
		doc["orphan"] = true
		docs = append(docs, doc)
		orphans++
	}
	if orphans > 0 {
		s.log.Warn().Int("count", orphans).
			Msgf("Orphaned metadata was found in %s", s.jsonName)
	}

	coll := NewMemoryStore(s.Name(), WithKey(FileKey),
		WithLastUpdatedField(s.LastUpdatedField()), WithMemoryLogger(s.log))
	if err := coll.Connect(); err != nil {
		return err
	}
	coll.setDocs(docs)

	s.mu.Lock()
	s.coll = coll
	s.records = records
	s.mu.Unlock()
	return nil
}

// Close releases the in-memory collection. The persisted JSON is kept.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll != nil {
		_ = s.coll.Close()
		s.coll = nil
	}
	s.records = nil
	return nil
}

func (s *FileStore) collection() (*MemoryStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll == nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), types.ErrNotConnected)
	}
	return s.coll, nil
}

// scan walks the root up to maxDepth, applying the glob filters. The
// metadata side-file and its lock/temp companions are never records.
func (s *FileStore) scan() ([]FileRecord, error) {
	var records []FileRecord
	err := filepath.WalkDir(s.path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.path, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel == "." {
				return nil
			}
			if s.maxDepth >= 0 && strings.Count(rel, "/")+1 > s.maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		name := entry.Name()
		if name == s.jsonName || name == s.jsonName+".tmp" || name == s.jsonName+".lock" {
			return nil
		}
		if s.maxDepth >= 0 && strings.Count(rel, "/") > s.maxDepth {
			return nil
		}
		if !s.matchesFilters(name) {
			return nil
		}
		rec, err := NewFileRecord(s.path, path)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.path, err)
	}
	return records, nil
}

func (s *FileStore) matchesFilters(name string) bool {
	if len(s.fileFilters) == 0 {
		return true
	}
	for _, pattern := range s.fileFilters {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// loadMetadata reads the side-file. A missing file is created empty when
// the store is writable, or warned about and skipped when read-only.
func (s *FileStore) loadMetadata() ([]types.Document, error) {
	if _, err := os.Stat(s.jsonPath()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", s.jsonPath(), err)
		}
		if s.readOnly {
			s.log.Warn().Msgf("JSON file '%s' not found; no metadata will be loaded", s.jsonName)
			return nil, nil
		}
		if err := s.writeMetadata(nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	lock := flock.New(s.lockPath())
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", s.jsonPath(), err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(s.jsonPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.jsonPath(), err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.jsonPath(), err)
	}
	return docs, nil
}

// writeMetadata persists the entries atomically: temp file then rename.
// Callers hold the file lock when racing writers matter.
func (s *FileStore) writeMetadata(entries []types.Document) error {
	if entries == nil {
		entries = []types.Document{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tmp := s.jsonPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp metadata file: %w", err)
	}
	if err := os.Rename(tmp, s.jsonPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", s.jsonPath(), err)
	}
	return nil
}

func (s *FileStore) Query(opts types.QueryOptions) (types.Cursor, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	return coll.Query(opts)
}

func (s *FileStore) QueryOne(opts types.QueryOptions) (types.Document, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	return coll.QueryOne(opts)
}

func (s *FileStore) Distinct(fields []string, criteria types.Criteria) ([]types.Document, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	return coll.Distinct(fields, criteria)
}

func (s *FileStore) GroupBy(keys []string, opts types.QueryOptions) ([]types.Group, error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	return coll.GroupBy(keys, opts)
}

func (s *FileStore) EnsureIndex(key string, unique bool) (bool, error) {
	coll, err := s.collection()
	if err != nil {
		return false, err
	}
	return coll.EnsureIndex(key, unique)
}

// Update attaches metadata to file documents and persists it. Protected
// fields on incoming documents are silently dropped from the persisted
// form so stale values can never desynchronize from scanned truth; only
// entries carrying at least one user field are retained in the side-file.
func (s *FileStore) Update(docs []types.Document, keys ...string) error {
	coll, err := s.collection()
	if err != nil {
		return err
	}
	if s.readOnly {
		return fmt.Errorf("cannot update %s: %w", s.Name(), types.ErrReadOnly)
	}

	// Merge into the in-memory view: non-protected fields only, so scanned
	// truth is never shadowed before the next rescan.
	mergedDocs := make([]types.Document, 0, len(docs))
	for _, doc := range docs {
		id, ok := doc.GetPath(FileKey)
		if !ok {
			return fmt.Errorf("document missing %s field", FileKey)
		}
		stored, err := coll.QueryOne(types.QueryOptions{Criteria: types.Criteria{FileKey: id}})
		if err != nil {
			return err
		}
		merged, _ := persistableEntry(doc)
		if stored != nil {
			base := stored.Clone()
			for k, v := range merged {
				base[k] = v
			}
			merged = base
		}
		if err := coll.Update([]types.Document{merged}, FileKey); err != nil {
			return err
		}
		mergedDocs = append(mergedDocs, merged)
	}

	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.jsonPath(), err)
	}
	defer func() { _ = lock.Unlock() }()

	existing, err := s.loadPersistedLocked()
	if err != nil {
		return err
	}
	byID := map[string]int{}
	for i, entry := range existing {
		if id, ok := entry[FileKey].(string); ok {
			byID[id] = i
		}
	}

	for _, doc := range mergedDocs {
		entry, hasUserFields := persistableEntry(doc)
		if !hasUserFields {
			continue
		}
		id, _ := entry[FileKey].(string)
		if i, ok := byID[id]; ok {
			existing[i] = entry
		} else {
			byID[id] = len(existing)
			existing = append(existing, entry)
		}
	}

	kept := existing[:0]
	for _, entry := range existing {
		if _, hasUserFields := persistableEntry(entry); hasUserFields {
			kept = append(kept, entry)
		}
	}
	return s.writeMetadata(kept)
}

// loadPersistedLocked reads the raw side-file entries; the caller holds
// the write lock.
func (s *FileStore) loadPersistedLocked() ([]types.Document, error) {
	data, err := os.ReadFile(s.jsonPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.jsonPath(), err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.jsonPath(), err)
	}
	return docs, nil
}

// persistableEntry reduces a document to its persisted form: file_id,
// the informational path, and every non-protected user field. The second
// return value reports whether any user field is present.
func persistableEntry(doc types.Document) (types.Document, bool) {
	entry := types.Document{}
	hasUserFields := false
	for k, v := range doc {
		switch {
		case k == FileKey || k == "path":
			entry[k] = v
		case protectedFileFields[k]:
			// Always recomputed from disk; never persisted.
		default:
			entry[k] = v
			hasUserFields = true
		}
	}
	return entry, hasUserFields
}

// RemoveDocs always fails: there is no safe mapping from metadata
// deletion to file deletion.
func (s *FileStore) RemoveDocs(criteria types.Criteria) error {
	if s.readOnly {
		return fmt.Errorf("cannot remove documents from %s: %w", s.Name(), types.ErrReadOnly)
	}
	return fmt.Errorf("deleting file-backed documents: %w", types.ErrUnsupported)
}

// LastUpdated is the most recent modification time across the scanned
// FileRecords. Orphaned metadata carries no timestamp and does not
// contribute.
func (s *FileStore) LastUpdated() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll == nil {
		return time.Time{}, fmt.Errorf("%s: %w", s.Name(), types.ErrNotConnected)
	}
	var max time.Time
	for _, rec := range s.records {
		if rec.LastUpdated.After(max) {
			max = rec.LastUpdated
		}
	}
	return max, nil
}

// NewerIn returns this store's documents that are strictly newer than
// their counterparts in other, keyed by file_id. Used to detect drift
// between two scans of the same or related roots.
func (s *FileStore) NewerIn(other types.Store) ([]types.Document, error) {
	return types.NewerIn(s, other)
}
