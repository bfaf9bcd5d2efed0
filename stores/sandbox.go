package stores

import (
	"fmt"
	"sort"
	"time"

	"github.com/quarrydev/quarry/types"
)

// SandboxField is the array field naming which tenant sandboxes may see a
// document. Documents without the field, or carrying the CoreSandbox tag,
// are visible everywhere.
const SandboxField = "sbxn"

// CoreSandbox is the tag that makes a document visible to every sandbox.
const CoreSandbox = "core"

// SandboxStore scopes an underlying store to one tenant sandbox. Reads
// only see documents visible to the sandbox; writes tag documents with
// the sandbox, unioned with any tags they already carry.
type SandboxStore struct {
	store   types.Store
	sandbox string
}

// NewSandboxStore wraps store for the named sandbox.
func NewSandboxStore(store types.Store, sandbox string) (*SandboxStore, error) {
	if sandbox == "" {
		return nil, fmt.Errorf("sandbox name must not be empty: %w", types.ErrConfig)
	}
	return &SandboxStore{store: store, sandbox: sandbox}, nil
}

// Sandbox returns the sandbox identifier this store is scoped to.
func (s *SandboxStore) Sandbox() string { return s.sandbox }

// sandboxCriteria is the implicit visibility condition injected into
// every read: field absent, or tagged core, or tagged with this sandbox.
func (s *SandboxStore) sandboxCriteria() types.Criteria {
	return types.Criteria{
		"$or": []types.Criteria{
			{SandboxField: map[string]interface{}{"$exists": false}},
			{SandboxField: map[string]interface{}{"$in": []interface{}{CoreSandbox, s.sandbox}}},
		},
	}
}

func (s *SandboxStore) scope(criteria types.Criteria) types.Criteria {
	if len(criteria) == 0 {
		return s.sandboxCriteria()
	}
	return types.Criteria{"$and": []types.Criteria{criteria, s.sandboxCriteria()}}
}

func (s *SandboxStore) scopeOptions(opts types.QueryOptions) types.QueryOptions {
	opts.Criteria = s.scope(opts.Criteria)
	return opts
}

func (s *SandboxStore) Name() string             { return s.store.Name() }
func (s *SandboxStore) Key() string              { return s.store.Key() }
func (s *SandboxStore) LastUpdatedField() string { return s.store.LastUpdatedField() }
func (s *SandboxStore) Connect() error           { return s.store.Connect() }
func (s *SandboxStore) Close() error             { return s.store.Close() }

func (s *SandboxStore) Query(opts types.QueryOptions) (types.Cursor, error) {
	return s.store.Query(s.scopeOptions(opts))
}

func (s *SandboxStore) QueryOne(opts types.QueryOptions) (types.Document, error) {
	return s.store.QueryOne(s.scopeOptions(opts))
}

func (s *SandboxStore) Distinct(fields []string, criteria types.Criteria) ([]types.Document, error) {
	return s.store.Distinct(fields, s.scope(criteria))
}

func (s *SandboxStore) GroupBy(keys []string, opts types.QueryOptions) ([]types.Group, error) {
	return s.store.GroupBy(keys, s.scopeOptions(opts))
}

// Update tags every written document with this sandbox. The resulting
// sbxn array is the union of the stored document's tags (looked up by
// key), any tags on the incoming document, and this sandbox. Visibility
// is monotonic across sandbox-scoped writers.
func (s *SandboxStore) Update(docs []types.Document, keys ...string) error {
	matchKeys := keys
	if len(matchKeys) == 0 {
		matchKeys = []string{s.store.Key()}
	}

	tagged := make([]types.Document, len(docs))
	for i, doc := range docs {
		out := doc.Clone()
		tags := map[string]bool{s.sandbox: true}
		collectTags(tags, out[SandboxField])

		// The lookup deliberately bypasses the sandbox filter: tags added
		// by other sandboxes must survive this write.
		if criteria := keyCriteria(out, matchKeys); criteria != nil {
			existing, err := s.store.QueryOne(types.QueryOptions{Criteria: criteria})
			if err != nil {
				return err
			}
			if existing != nil {
				collectTags(tags, existing[SandboxField])
			}
		}

		union := make([]interface{}, 0, len(tags))
		for tag := range tags {
			union = append(union, tag)
		}
		sort.Slice(union, func(a, b int) bool {
			return union[a].(string) < union[b].(string)
		})
		out[SandboxField] = union
		tagged[i] = out
	}
	return s.store.Update(tagged, keys...)
}

func collectTags(into map[string]bool, v interface{}) {
	switch tags := v.(type) {
	case []interface{}:
		for _, t := range tags {
			if str, ok := t.(string); ok {
				into[str] = true
			}
		}
	case []string:
		for _, t := range tags {
			into[t] = true
		}
	}
}

func keyCriteria(doc types.Document, keys []string) types.Criteria {
	criteria := types.Criteria{}
	for _, k := range keys {
		v, ok := doc.GetPath(k)
		if !ok {
			return nil
		}
		criteria[k] = v
	}
	return criteria
}

func (s *SandboxStore) EnsureIndex(key string, unique bool) (bool, error) {
	return s.store.EnsureIndex(key, unique)
}

func (s *SandboxStore) RemoveDocs(criteria types.Criteria) error {
	return s.store.RemoveDocs(s.scope(criteria))
}

func (s *SandboxStore) LastUpdated() (time.Time, error) {
	return s.store.LastUpdated()
}
