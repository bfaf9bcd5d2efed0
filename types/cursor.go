package types

// Cursor is a pull-based iterator over query results. Cursors are finite
// and single-use; re-invoking Query on a store yields a fresh cursor that
// restarts from the beginning.
//
// Usage:
//
//	cur, err := store.Query(opts)
//	if err != nil { ... }
//	defer func() { _ = cur.Close() }()
//	for cur.Next() {
//	    doc := cur.Doc()
//	    ...
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor interface {
	// Next advances to the next document and reports whether one is
	// available.
	Next() bool

	// Doc returns the current document. Only valid after a true Next.
	Doc() Document

	// Err returns the first error encountered during iteration.
	Err() error

	// Close releases resources held by the cursor.
	Close() error
}

// sliceCursor iterates a materialized result set.
type sliceCursor struct {
	docs []Document
	pos  int
}

// NewSliceCursor wraps an already materialized result set in a Cursor.
func NewSliceCursor(docs []Document) Cursor {
	return &sliceCursor{docs: docs, pos: -1}
}

func (c *sliceCursor) Next() bool {
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Doc() Document {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

func (c *sliceCursor) Err() error   { return nil }
func (c *sliceCursor) Close() error { return nil }

// ReadAll drains a cursor into a slice and closes it.
func ReadAll(cur Cursor) ([]Document, error) {
	defer func() { _ = cur.Close() }()
	var docs []Document
	for cur.Next() {
		docs = append(docs, cur.Doc())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// DistinctValues flattens a single-field Distinct result into the raw
// value list.
func DistinctValues(s Store, field string, criteria Criteria) ([]interface{}, error) {
	docs, err := s.Distinct([]string{field}, criteria)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		if v, ok := d.GetPath(field); ok {
			values = append(values, v)
		}
	}
	return values, nil
}
