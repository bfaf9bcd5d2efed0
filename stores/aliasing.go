package stores

import (
	"fmt"
	"time"

	"github.com/quarrydev/quarry/types"
)

// AliasingStore presents an underlying store under a public field schema.
// The alias map sends public field paths to internal ones; criteria and
// written documents are translated public-to-internal on the way in, and
// returned documents are relabeled internal-to-public on the way out.
type AliasingStore struct {
	store   types.Store
	aliases map[string]string
	// reverse maps internal path -> public path, used on the write path.
	reverse map[string]string
}

// NewAliasingStore wraps store with the given public->internal alias map.
// Two public keys mapping to the same internal path make the translation
// ambiguous and are rejected.
func NewAliasingStore(store types.Store, aliases map[string]string) (*AliasingStore, error) {
	reverse := make(map[string]string, len(aliases))
	for public, internal := range aliases {
		if prev, dup := reverse[internal]; dup {
			return nil, fmt.Errorf(
				"ambiguous alias map: %q and %q both map to %q: %w",
				prev, public, internal, types.ErrConfig)
		}
		reverse[internal] = public
	}
	return &AliasingStore{store: store, aliases: aliases, reverse: reverse}, nil
}

// Substitute relabels document fields according to the alias map: for
// every public->internal pair, a value found at the internal path moves
// to the public path. The input document is not mutated; a nil document
// yields nil.
func Substitute(doc types.Document, aliases map[string]string) types.Document {
	if doc == nil {
		return nil
	}
	out := doc.Clone()
	for public, internal := range aliases {
		if v, ok := out.GetPath(internal); ok {
			out.UnsetPath(internal)
			out.SetPath(public, v)
		}
	}
	return out
}

// translateCriteria rewrites criteria keys from public to internal names.
// Logical operators recurse; operator arguments pass through untouched.
func (s *AliasingStore) translateCriteria(criteria types.Criteria) types.Criteria {
	if criteria == nil {
		return nil
	}
	out := types.Criteria{}
	for key, cond := range criteria {
		switch key {
		case "$or", "$and":
			out[key] = s.translateConditionList(cond)
		default:
			out[s.translateField(key)] = cond
		}
	}
	return out
}

func (s *AliasingStore) translateConditionList(cond interface{}) interface{} {
	list, ok := cond.([]interface{})
	if !ok {
		if cl, isCriteria := cond.([]types.Criteria); isCriteria {
			translated := make([]types.Criteria, len(cl))
			for i, c := range cl {
				translated[i] = s.translateCriteria(c)
			}
			return translated
		}
		return cond
	}
	translated := make([]interface{}, len(list))
	for i, item := range list {
		if m, isMap := item.(map[string]interface{}); isMap {
			translated[i] = map[string]interface{}(s.translateCriteria(types.Criteria(m)))
		} else {
			translated[i] = item
		}
	}
	return translated
}

func (s *AliasingStore) translateField(field string) string {
	if internal, ok := s.aliases[field]; ok {
		return internal
	}
	return field
}

func (s *AliasingStore) translateFields(fields []string) []string {
	if fields == nil {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = s.translateField(f)
	}
	return out
}

func (s *AliasingStore) translateOptions(opts types.QueryOptions) types.QueryOptions {
	opts.Criteria = s.translateCriteria(opts.Criteria)
	opts.Properties = s.translateFields(opts.Properties)
	if len(opts.Sort) > 0 {
		sorted := make([]types.SortClause, len(opts.Sort))
		for i, clause := range opts.Sort {
			clause.Field = s.translateField(clause.Field)
			sorted[i] = clause
		}
		opts.Sort = sorted
	}
	return opts
}

func (s *AliasingStore) Name() string             { return s.store.Name() }
func (s *AliasingStore) Key() string              { return s.store.Key() }
func (s *AliasingStore) LastUpdatedField() string { return s.store.LastUpdatedField() }
func (s *AliasingStore) Connect() error           { return s.store.Connect() }
func (s *AliasingStore) Close() error             { return s.store.Close() }

func (s *AliasingStore) Query(opts types.QueryOptions) (types.Cursor, error) {
	cur, err := s.store.Query(s.translateOptions(opts))
	if err != nil {
		return nil, err
	}
	docs, err := types.ReadAll(cur)
	if err != nil {
		return nil, err
	}
	out := make([]types.Document, len(docs))
	for i, doc := range docs {
		out[i] = Substitute(doc, s.aliases)
	}
	return types.NewSliceCursor(out), nil
}

func (s *AliasingStore) QueryOne(opts types.QueryOptions) (types.Document, error) {
	doc, err := s.store.QueryOne(s.translateOptions(opts))
	if err != nil {
		return nil, err
	}
	return Substitute(doc, s.aliases), nil
}

func (s *AliasingStore) Distinct(fields []string, criteria types.Criteria) ([]types.Document, error) {
	docs, err := s.store.Distinct(s.translateFields(fields), s.translateCriteria(criteria))
	if err != nil {
		return nil, err
	}
	out := make([]types.Document, len(docs))
	for i, doc := range docs {
		out[i] = Substitute(doc, s.aliases)
	}
	return out, nil
}

func (s *AliasingStore) GroupBy(keys []string, opts types.QueryOptions) ([]types.Group, error) {
	groups, err := s.store.GroupBy(s.translateFields(keys), s.translateOptions(opts))
	if err != nil {
		return nil, err
	}
	out := make([]types.Group, len(groups))
	for i, g := range groups {
		docs := make([]types.Document, len(g.Docs))
		for j, doc := range g.Docs {
			docs[j] = Substitute(doc, s.aliases)
		}
		out[i] = types.Group{Key: Substitute(g.Key, s.aliases), Docs: docs}
	}
	return out, nil
}

// Update relabels each document from public to internal names before
// delegating, so the underlying store persists under internal paths.
func (s *AliasingStore) Update(docs []types.Document, keys ...string) error {
	translated := make([]types.Document, len(docs))
	for i, doc := range docs {
		translated[i] = Substitute(doc, s.reverse)
	}
	return s.store.Update(translated, keys...)
}

func (s *AliasingStore) EnsureIndex(key string, unique bool) (bool, error) {
	return s.store.EnsureIndex(s.translateField(key), unique)
}

func (s *AliasingStore) RemoveDocs(criteria types.Criteria) error {
	return s.store.RemoveDocs(s.translateCriteria(criteria))
}

func (s *AliasingStore) LastUpdated() (time.Time, error) {
	return s.store.LastUpdated()
}
