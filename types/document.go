package types

import "strings"

// Document is an arbitrarily nested mapping from field names to scalar,
// array or nested-mapping values. Nested fields are addressed with
// dot-delimited paths, e.g. "calc.energy".
type Document map[string]interface{}

// Criteria is a Mongo-flavoured filter document. Supported operators:
// equality, $exists, $gt, $gte, $lt, $lte, $ne, $in, $regex, $not, and the
// logical $or / $and over criteria lists. Field keys may be dotted paths.
type Criteria map[string]interface{}

// GetPath resolves a dot-delimited path against the document. The second
// return value reports whether the full path was present.
func (d Document) GetPath(path string) (interface{}, bool) {
	if d == nil {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(d)
	for _, seg := range segments {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath writes a value at a dot-delimited path, creating intermediate
// mappings as needed. Intermediate non-mapping values are replaced.
func (d Document) SetPath(path string, value interface{}) {
	segments := strings.Split(path, ".")
	current := map[string]interface{}(d)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := asMap(current[seg])
		if !ok {
			next = map[string]interface{}{}
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// UnsetPath removes the value at a dot-delimited path. Emptied parent
// mappings are left in place.
func (d Document) UnsetPath(path string) {
	segments := strings.Split(path, ".")
	current := map[string]interface{}(d)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := asMap(current[seg])
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// Clone returns a deep copy of the document. Nested maps and slices are
// copied; scalar values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// Project returns a new document holding only the listed dotted paths.
// Paths absent from the document are skipped. A nil or empty property list
// returns a clone of the full document.
func (d Document) Project(properties []string) Document {
	if len(properties) == 0 {
		return d.Clone()
	}
	out := Document{}
	for _, p := range properties {
		if v, ok := d.GetPath(p); ok {
			out.SetPath(p, cloneValue(v))
		}
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case Document:
		return Document(cloneMap(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
