// Package types defines the uniform document-access contract shared by
// every quarry store: leaf backends, composite stores and wrappers all
// implement the same Store interface, which is what makes them composable.
package types

import "time"

// SortClause represents a single sort directive on a dotted field path.
type SortClause struct {
	Field      string
	Descending bool
}

// QueryOptions configures a query against a store.
//
// Semantics are applied strictly in this order: Criteria filter, Properties
// projection, Sort, Skip, Limit.
type QueryOptions struct {
	// Criteria filters documents. Nil or empty matches everything.
	Criteria Criteria

	// Properties restricts returned documents to the listed dotted paths.
	// Nil returns full documents.
	Properties []string

	// Sort orders results before Skip/Limit are applied.
	Sort []SortClause

	// Skip drops the first N matching documents. Zero or negative skips none.
	Skip int

	// Limit caps the number of returned documents. Zero or negative means
	// no limit.
	Limit int
}

// Group is one bucket of a GroupBy result: the key values that define the
// bucket and the documents that fell into it.
type Group struct {
	Key  Document
	Docs []Document
}

// Store is the capability surface every backend and composite implements.
//
// A store must be Connect()-ed before use and Close()-d to release
// resources; operations on an unconnected store return ErrNotConnected.
type Store interface {
	// Name returns a string identifying this data source.
	Name() string

	// Key returns the field that governs document identity.
	Key() string

	// LastUpdatedField returns the field holding a document's last-updated
	// timestamp.
	LastUpdatedField() string

	// Connect establishes the underlying connection or builds the
	// in-memory view. Connect is idempotent; stores that materialize a
	// view on Connect rebuild it from the backing source each time.
	Connect() error

	// Close releases resources. A closed store may be re-connected.
	Close() error

	// Query returns a restartable cursor over documents matching opts.
	Query(opts QueryOptions) (Cursor, error)

	// QueryOne returns the first matching document, or a nil Document and
	// nil error when nothing matches.
	QueryOne(opts QueryOptions) (Document, error)

	// Distinct returns the unique value combinations for the given fields
	// among documents matching criteria. Each returned document carries
	// exactly the requested fields. For a single field this is the
	// deduplicated value set; for several it is the set of unique
	// field-combination records.
	Distinct(fields []string, criteria Criteria) ([]Document, error)

	// GroupBy buckets matching documents by the given dotted key paths.
	GroupBy(keys []string, opts QueryOptions) ([]Group, error)

	// Update upserts documents, matching existing ones by the store key or
	// by the explicitly supplied key fields.
	Update(docs []Document, keys ...string) error

	// EnsureIndex makes sure an index exists on the given field. It
	// reports whether the index exists or was created.
	EnsureIndex(key string, unique bool) (bool, error)

	// RemoveDocs deletes documents matching criteria.
	RemoveDocs(criteria Criteria) error

	// LastUpdated returns the most recent last-updated timestamp across
	// the store's documents, the authoritative watermark for syncing.
	LastUpdated() (time.Time, error)
}

// Database provides named collections backed by one connection, plus the
// backend version used to gate version-dependent capabilities.
type Database interface {
	Connect() error
	Close() error

	// Collection returns a Store view over the named collection.
	Collection(name string) (Store, error)

	// ServerVersion reports the backend's version string, e.g. "3.46.0".
	ServerVersion() (string, error)
}

// NewerIn returns the documents of local whose last-updated timestamp
// strictly exceeds that of the matching (by local's key) document in
// remote. Documents missing from remote are included.
func NewerIn(local, remote Store) ([]Document, error) {
	cur, err := local.Query(QueryOptions{})
	if err != nil {
		return nil, err
	}
	docs, err := ReadAll(cur)
	if err != nil {
		return nil, err
	}

	key := local.Key()
	luField := local.LastUpdatedField()
	var newer []Document
	for _, doc := range docs {
		id, ok := doc.GetPath(key)
		if !ok {
			continue
		}
		lu, ok := AsTime(doc[luField])
		if !ok {
			continue
		}
		other, err := remote.QueryOne(QueryOptions{Criteria: Criteria{key: id}})
		if err != nil {
			return nil, err
		}
		if other == nil {
			newer = append(newer, doc)
			continue
		}
		if otherLU, ok := AsTime(other[remote.LastUpdatedField()]); !ok || lu.After(otherLU) {
			newer = append(newer, doc)
		}
	}
	return newer, nil
}
