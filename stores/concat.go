package stores

import (
	"fmt"
	"time"

	"github.com/quarrydev/quarry/internal/matching"
	"github.com/quarrydev/quarry/types"
)

// ConcatStore federates an ordered list of independent stores into one
// logical store. Reads fan out to every member in list order and results
// are merged with defined semantics; writes are ambiguous across members
// and fail with ErrUnsupported.
//
// Skip and limit apply globally to the concatenated stream, never
// per member. Sort is not supported on the federated query path because a
// global order cannot be produced without materializing every member;
// callers sort materialized results instead.
type ConcatStore struct {
	stores  []types.Store
	key     string
	luField string
}

// ConcatOption customizes a ConcatStore.
type ConcatOption func(*ConcatStore)

// WithConcatKey overrides the common key field (default "task_id").
func WithConcatKey(key string) ConcatOption {
	return func(s *ConcatStore) { s.key = key }
}

// WithConcatLastUpdatedField overrides the last-updated field.
func WithConcatLastUpdatedField(field string) ConcatOption {
	return func(s *ConcatStore) { s.luField = field }
}

// NewConcatStore federates the given member stores, in order.
func NewConcatStore(members []types.Store, opts ...ConcatOption) (*ConcatStore, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("concat store needs at least one member: %w", types.ErrConfig)
	}
	s := &ConcatStore{
		stores:  members,
		key:     DefaultKey,
		luField: DefaultLastUpdatedField,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ConcatStore) Name() string             { return s.stores[0].Name() }
func (s *ConcatStore) Key() string              { return s.key }
func (s *ConcatStore) LastUpdatedField() string { return s.luField }

// Connect connects every member. Members are independent, so a failure
// does not roll back members already connected; the first error is
// reported after every member has been attempted.
func (s *ConcatStore) Connect() error {
	var firstErr error
	for _, member := range s.stores {
		if err := member.Connect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *ConcatStore) Close() error {
	var firstErr error
	for _, member := range s.stores {
		if err := member.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Query streams members in order through a chained cursor. Criteria and
// properties are forwarded to each member; skip and limit are applied to
// the concatenated stream.
func (s *ConcatStore) Query(opts types.QueryOptions) (types.Cursor, error) {
	if len(opts.Sort) > 0 {
		return nil, types.Unsupportedf("ConcatStore", "sorted query")
	}
	memberOpts := types.QueryOptions{
		Criteria:   opts.Criteria,
		Properties: opts.Properties,
	}
	return &concatCursor{
		members: s.stores,
		opts:    memberOpts,
		skip:    opts.Skip,
		limit:   opts.Limit,
	}, nil
}

func (s *ConcatStore) QueryOne(opts types.QueryOptions) (types.Document, error) {
	opts.Limit = 1
	cur, err := s.Query(opts)
	if err != nil {
		return nil, err
	}
	docs, err := types.ReadAll(cur)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Distinct unions every member's distinct sets, deduplicating by the
// exact tuple of values across the requested fields.
func (s *ConcatStore) Distinct(fields []string, criteria types.Criteria) ([]types.Document, error) {
	seen := map[string]bool{}
	var out []types.Document
	for _, member := range s.stores {
		docs, err := member.Distinct(fields, criteria)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			tuple := make([]interface{}, len(fields))
			for i, f := range fields {
				tuple[i], _ = doc.GetPath(f)
			}
			ck := matching.CanonicalKey(tuple)
			if seen[ck] {
				continue
			}
			seen[ck] = true
			out = append(out, doc)
		}
	}
	return out, nil
}

// GroupBy regroups globally: each member's groups are flattened back to
// documents, then the union is grouped once by the requested key tuple.
// Per-member group boundaries are not guaranteed to align, so the member
// groupings cannot simply be concatenated.
func (s *ConcatStore) GroupBy(keys []string, opts types.QueryOptions) ([]types.Group, error) {
	memberOpts := types.QueryOptions{
		Criteria:   opts.Criteria,
		Properties: opts.Properties,
	}
	var docs []types.Document
	for _, member := range s.stores {
		groups, err := member.GroupBy(keys, memberOpts)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			docs = append(docs, g.Docs...)
		}
	}
	return matching.GroupDocs(docs, keys), nil
}

func (s *ConcatStore) Update(docs []types.Document, keys ...string) error {
	return types.Unsupportedf("ConcatStore", "update")
}

// EnsureIndex reports success only when every member created the index.
// Indexes already created on other members are not rolled back on
// partial failure.
func (s *ConcatStore) EnsureIndex(key string, unique bool) (bool, error) {
	all := true
	for _, member := range s.stores {
		ok, err := member.EnsureIndex(key, unique)
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

func (s *ConcatStore) RemoveDocs(criteria types.Criteria) error {
	return types.Unsupportedf("ConcatStore", "remove_docs")
}

// LastUpdated is the most recent watermark across all members. This can
// over-estimate freshness for members that rarely change.
func (s *ConcatStore) LastUpdated() (time.Time, error) {
	var max time.Time
	for _, member := range s.stores {
		lu, err := member.LastUpdated()
		if err != nil {
			return time.Time{}, err
		}
		if lu.After(max) {
			max = lu
		}
	}
	return max, nil
}

// concatCursor lazily chains member cursors in member order, applying
// global skip and limit while streaming.
type concatCursor struct {
	members []types.Store
	opts    types.QueryOptions

	idx     int
	current types.Cursor
	doc     types.Document
	err     error

	skip     int
	limit    int
	returned int
}

func (c *concatCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.limit > 0 && c.returned >= c.limit {
		return false
	}
	for {
		if c.current == nil {
			if c.idx >= len(c.members) {
				return false
			}
			cur, err := c.members[c.idx].Query(c.opts)
			if err != nil {
				c.err = err
				return false
			}
			c.current = cur
		}
		if c.current.Next() {
			if c.skip > 0 {
				c.skip--
				continue
			}
			c.doc = c.current.Doc()
			c.returned++
			return true
		}
		if err := c.current.Err(); err != nil {
			c.err = err
			return false
		}
		_ = c.current.Close()
		c.current = nil
		c.idx++
	}
}

func (c *concatCursor) Doc() types.Document { return c.doc }
func (c *concatCursor) Err() error          { return c.err }

func (c *concatCursor) Close() error {
	if c.current != nil {
		err := c.current.Close()
		c.current = nil
		return err
	}
	return nil
}
