package stores

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quarrydev/quarry/internal/matching"
	"github.com/quarrydev/quarry/types"
)

// Default identity fields, shared by every store that does not override
// them.
const (
	DefaultKey              = "task_id"
	DefaultLastUpdatedField = "last_updated"
)

// MemoryStore keeps its collection entirely in memory. It is the simplest
// leaf store, the backing collection for FileStore, and the workhorse of
// the test suite.
type MemoryStore struct {
	name    string
	key     string
	luField string
	log     zerolog.Logger

	mu        sync.RWMutex
	connected bool
	docs      []types.Document
	indexes   map[string]bool
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithKey overrides the identity field (default "task_id").
func WithKey(key string) MemoryOption {
	return func(s *MemoryStore) { s.key = key }
}

// WithLastUpdatedField overrides the last-updated field (default
// "last_updated").
func WithLastUpdatedField(field string) MemoryOption {
	return func(s *MemoryStore) { s.luField = field }
}

// WithMemoryLogger attaches a logger to the store.
func WithMemoryLogger(l zerolog.Logger) MemoryOption {
	return func(s *MemoryStore) { s.log = l }
}

// NewMemoryStore creates an in-memory store with the given name.
func NewMemoryStore(name string, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		name:    name,
		key:     DefaultKey,
		luField: DefaultLastUpdatedField,
		log:     defaultLogger,
		indexes: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Name() string             { return s.name }
func (s *MemoryStore) Key() string              { return s.key }
func (s *MemoryStore) LastUpdatedField() string { return s.luField }

// Connect marks the store usable. Documents survive reconnects; the
// collection is only dropped by garbage collection of the store itself.
func (s *MemoryStore) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *MemoryStore) guard() error {
	if !s.connected {
		return fmt.Errorf("%s: %w", s.name, types.ErrNotConnected)
	}
	return nil
}

// snapshot copies the current document slice under the read lock so
// pipeline work happens without holding it.
func (s *MemoryStore) snapshot() ([]types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.guard(); err != nil {
		return nil, err
	}
	out := make([]types.Document, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

func (s *MemoryStore) Query(opts types.QueryOptions) (types.Cursor, error) {
	docs, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return types.NewSliceCursor(matching.Apply(docs, opts)), nil
}

func (s *MemoryStore) QueryOne(opts types.QueryOptions) (types.Document, error) {
	opts.Limit = 1
	docs, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	result := matching.Apply(docs, opts)
	if len(result) == 0 {
		return nil, nil
	}
	return result[0], nil
}

func (s *MemoryStore) Distinct(fields []string, criteria types.Criteria) ([]types.Document, error) {
	docs, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	matched := matching.Apply(docs, types.QueryOptions{Criteria: criteria})
	return matching.DistinctDocs(matched, fields), nil
}

func (s *MemoryStore) GroupBy(keys []string, opts types.QueryOptions) ([]types.Group, error) {
	docs, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return matching.GroupDocs(matching.Apply(docs, opts), keys), nil
}

// Update upserts documents, replacing any stored document whose key
// fields all match. Documents without a last-updated value are stamped
// with the current UTC time.
func (s *MemoryStore) Update(docs []types.Document, keys ...string) error {
	matchKeys := keys
	if len(matchKeys) == 0 {
		matchKeys = []string{s.key}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}

	for _, doc := range docs {
		stored := doc.Clone()
		if _, ok := stored.GetPath(s.luField); !ok {
			stored[s.luField] = time.Now().UTC()
		}
		idx := s.findLocked(stored, matchKeys)
		if idx >= 0 {
			s.docs[idx] = stored
		} else {
			s.docs = append(s.docs, stored)
		}
	}
	return nil
}

// findLocked locates a stored document matching doc on every key field.
// Returns -1 when no document matches or doc lacks one of the keys.
func (s *MemoryStore) findLocked(doc types.Document, keys []string) int {
	criteria := types.Criteria{}
	for _, k := range keys {
		v, ok := doc.GetPath(k)
		if !ok {
			return -1
		}
		criteria[k] = v
	}
	for i, existing := range s.docs {
		if matching.Matches(existing, criteria) {
			return i
		}
	}
	return -1
}

// setDocs replaces the whole collection without per-document upsert
// bookkeeping or last-updated stamping. Used by stores in this package
// that rebuild their view wholesale.
func (s *MemoryStore) setDocs(docs []types.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
}

func (s *MemoryStore) EnsureIndex(key string, unique bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return false, err
	}
	s.indexes[key] = unique
	return true, nil
}

func (s *MemoryStore) RemoveDocs(criteria types.Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	kept := s.docs[:0]
	for _, doc := range s.docs {
		if !matching.Matches(doc, criteria) {
			kept = append(kept, doc)
		}
	}
	s.docs = kept
	return nil
}

// LastUpdated returns the maximum last-updated value across all
// documents, or the zero time for an empty collection.
func (s *MemoryStore) LastUpdated() (time.Time, error) {
	docs, err := s.snapshot()
	if err != nil {
		return time.Time{}, err
	}
	return maxLastUpdated(docs, s.luField), nil
}

func maxLastUpdated(docs []types.Document, field string) time.Time {
	var max time.Time
	for _, doc := range docs {
		if t, ok := types.AsTime(doc[field]); ok && t.After(max) {
			max = t
		}
	}
	return max
}
