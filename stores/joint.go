package stores

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quarrydev/quarry/internal/matching"
	"github.com/quarrydev/quarry/types"
)

// minMergeVersion is the lowest backend version whose engine supports the
// root-merge operation JointStore uses for merge-at-root queries.
const minMergeVersion = "3.6.0"

// JointStore joins multiple collections of one database into a single
// logical view. Every query runs a pipeline that left-outer-joins each
// non-master collection onto the master by the shared key field, either
// nesting the matched row under the collection name or merging it into
// the root, then computes the max last-updated across the joined rows
// before criteria, projection, skip and limit apply.
//
// JointStore is read-only by construction: Update, EnsureIndex and
// RemoveDocs fail with ErrUnsupported.
type JointStore struct {
	db              types.Database
	collectionNames []string
	master          string
	mergeAtRoot     bool
	key             string
	luField         string
	log             zerolog.Logger

	connected       bool
	hasMergeObjects bool
}

// JointOption customizes a JointStore.
type JointOption func(*JointStore)

// WithMaster designates the master collection (default: the first name).
func WithMaster(name string) JointOption {
	return func(s *JointStore) { s.master = name }
}

// WithMergeAtRoot flattens joined rows into the root document instead of
// nesting them, with root fields winning on conflict. Requires a backend
// version of at least 3.6.0.
func WithMergeAtRoot() JointOption {
	return func(s *JointStore) { s.mergeAtRoot = true }
}

// WithJointKey overrides the shared join key (default "task_id").
func WithJointKey(key string) JointOption {
	return func(s *JointStore) { s.key = key }
}

// WithJointLastUpdatedField overrides the last-updated field.
func WithJointLastUpdatedField(field string) JointOption {
	return func(s *JointStore) { s.luField = field }
}

// WithJointLogger attaches a logger to the store.
func WithJointLogger(l zerolog.Logger) JointOption {
	return func(s *JointStore) { s.log = l }
}

// NewJointStore creates a joint view over the named collections of db.
func NewJointStore(db types.Database, collectionNames []string, opts ...JointOption) (*JointStore, error) {
	if len(collectionNames) == 0 {
		return nil, fmt.Errorf("joint store needs at least one collection: %w", types.ErrConfig)
	}
	s := &JointStore{
		db:              db,
		collectionNames: collectionNames,
		master:          collectionNames[0],
		key:             DefaultKey,
		luField:         DefaultLastUpdatedField,
		log:             defaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	found := false
	for _, name := range collectionNames {
		if name == s.master {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("master %q is not among the joined collections: %w",
			s.master, types.ErrConfig)
	}
	return s, nil
}

func (s *JointStore) Name() string             { return s.master }
func (s *JointStore) Key() string              { return s.key }
func (s *JointStore) LastUpdatedField() string { return s.luField }

// Connect opens the database and probes its version to decide whether
// merge-at-root is available on this backend.
func (s *JointStore) Connect() error {
	if err := s.db.Connect(); err != nil {
		return err
	}
	version, err := s.db.ServerVersion()
	if err != nil {
		return err
	}
	s.hasMergeObjects = compareVersions(version, minMergeVersion) >= 0
	s.connected = true
	return nil
}

func (s *JointStore) Close() error {
	s.connected = false
	return s.db.Close()
}

// pipeline materializes the joined view and runs the standard result
// pipeline over it.
func (s *JointStore) pipeline(opts types.QueryOptions) ([]types.Document, error) {
	if !s.connected {
		return nil, fmt.Errorf("joint store %s: %w", s.master, types.ErrNotConnected)
	}

	rows, err := s.collectionDocs(s.master)
	if err != nil {
		return nil, err
	}

	for _, cname := range s.collectionNames {
		if cname == s.master {
			continue
		}
		if s.mergeAtRoot && !s.hasMergeObjects {
			return nil, fmt.Errorf(
				"merge-at-root needs backend version >= %s: %w",
				minMergeVersion, types.ErrVersionUnsupported)
		}
		lookup, err := s.lookupIndex(cname)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			keyVal, ok := row.GetPath(s.key)
			if !ok {
				continue
			}
			match, ok := lookup[matching.CanonicalKey(keyVal)]
			if !ok {
				continue
			}
			if s.mergeAtRoot {
				merged := match.Clone()
				for k, v := range row {
					merged[k] = v
				}
				rows[i] = merged
			} else {
				row[cname] = map[string]interface{}(match.Clone())
			}
		}
	}

	for _, row := range rows {
		s.addMaxLastUpdated(row)
	}

	return matching.Apply(rows, opts), nil
}

func (s *JointStore) collectionDocs(name string) ([]types.Document, error) {
	coll, err := s.db.Collection(name)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Query(types.QueryOptions{})
	if err != nil {
		return nil, err
	}
	docs, err := types.ReadAll(cur)
	if err != nil {
		return nil, err
	}
	out := make([]types.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out, nil
}

// lookupIndex maps join-key values to the first matching document of the
// collection, implementing the zero-or-one join semantics.
func (s *JointStore) lookupIndex(name string) (map[string]types.Document, error) {
	docs, err := s.collectionDocs(name)
	if err != nil {
		return nil, err
	}
	index := make(map[string]types.Document, len(docs))
	for _, doc := range docs {
		keyVal, ok := doc.GetPath(s.key)
		if !ok {
			continue
		}
		ck := matching.CanonicalKey(keyVal)
		if _, seen := index[ck]; !seen {
			index[ck] = doc
		}
	}
	return index, nil
}

// addMaxLastUpdated sets the row's last-updated field to the max across
// the root value and every joined collection's value, preserving the
// winning value's original representation.
func (s *JointStore) addMaxLastUpdated(row types.Document) {
	var bestRaw interface{}
	var best time.Time
	consider := func(raw interface{}) {
		if t, ok := types.AsTime(raw); ok && (bestRaw == nil || t.After(best)) {
			bestRaw, best = raw, t
		}
	}
	consider(row[s.luField])
	for _, cname := range s.collectionNames {
		if v, ok := row.GetPath(cname + "." + s.luField); ok {
			consider(v)
		}
	}
	if bestRaw != nil {
		row[s.luField] = bestRaw
	}
}

func (s *JointStore) Query(opts types.QueryOptions) (types.Cursor, error) {
	docs, err := s.pipeline(opts)
	if err != nil {
		return nil, err
	}
	return types.NewSliceCursor(docs), nil
}

func (s *JointStore) QueryOne(opts types.QueryOptions) (types.Document, error) {
	opts.Limit = 1
	docs, err := s.pipeline(opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Distinct runs the full join pipeline before collecting values, so
// criteria on joined fields filter correctly.
func (s *JointStore) Distinct(fields []string, criteria types.Criteria) ([]types.Document, error) {
	docs, err := s.pipeline(types.QueryOptions{Criteria: criteria})
	if err != nil {
		return nil, err
	}
	return matching.DistinctDocs(docs, fields), nil
}

func (s *JointStore) GroupBy(keys []string, opts types.QueryOptions) ([]types.Group, error) {
	docs, err := s.pipeline(opts)
	if err != nil {
		return nil, err
	}
	return matching.GroupDocs(docs, keys), nil
}

func (s *JointStore) Update(docs []types.Document, keys ...string) error {
	return types.Unsupportedf("JointStore", "update")
}

func (s *JointStore) EnsureIndex(key string, unique bool) (bool, error) {
	return false, types.Unsupportedf("JointStore", "ensure_index")
}

func (s *JointStore) RemoveDocs(criteria types.Criteria) error {
	return types.Unsupportedf("JointStore", "remove_docs")
}

// LastUpdated checks every underlying collection individually and
// returns the most recent watermark.
func (s *JointStore) LastUpdated() (time.Time, error) {
	if !s.connected {
		return time.Time{}, fmt.Errorf("joint store %s: %w", s.master, types.ErrNotConnected)
	}
	var max time.Time
	for _, cname := range s.collectionNames {
		coll, err := s.db.Collection(cname)
		if err != nil {
			return time.Time{}, err
		}
		lu, err := coll.LastUpdated()
		if err != nil {
			return time.Time{}, err
		}
		if lu.After(max) {
			max = lu
		}
	}
	return max, nil
}
