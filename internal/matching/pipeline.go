package matching

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/quarrydev/quarry/types"
)

// CompareValues imposes an order over heterogeneous stored values. Values
// of different kinds order by kind rank (nil, bool, number, time, string)
// so that sorting mixed collections stays deterministic. The second
// return value is false when the pair has no meaningful order (e.g. two
// maps), in which case callers treat them as equal.
func CompareValues(a, b interface{}) (int, bool) {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		// Numbers and times still compare against each other through
		// AsTime coercion below; everything else orders by rank.
		if cmp, ok := crossKindCompare(a, b); ok {
			return cmp, true
		}
		return compareInts(ra, rb), true
	}
	switch ra {
	case rankNil:
		return 0, true
	case rankBool:
		av, bv := a.(bool), b.(bool)
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	case rankNumber:
		af, _ := asFloat(a)
		bf, _ := asFloat(b)
		return compareFloats(af, bf), true
	case rankTime:
		at := a.(time.Time)
		bt := b.(time.Time)
		if at.Equal(bt) {
			return 0, true
		}
		if at.Before(bt) {
			return -1, true
		}
		return 1, true
	case rankString:
		av, bv := a.(string), b.(string)
		if av == bv {
			return 0, true
		}
		if av < bv {
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

func kindRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case time.Time:
		return rankTime
	case string:
		return rankString
	default:
		if _, ok := asFloat(v); ok {
			return rankNumber
		}
		return rankOther
	}
}

// crossKindCompare handles time-vs-string / time-vs-number pairs where a
// JSON round trip changed one side's representation.
func crossKindCompare(a, b interface{}) (int, bool) {
	at, aok := types.AsTime(a)
	bt, bok := types.AsTime(b)
	if !aok || !bok {
		return 0, false
	}
	if _, isTime := a.(time.Time); !isTime {
		if _, isTime := b.(time.Time); !isTime {
			return 0, false
		}
	}
	if at.Equal(bt) {
		return 0, true
	}
	if at.Before(bt) {
		return -1, true
	}
	return 1, true
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CanonicalKey renders a value as a stable string usable as a dedup or
// grouping key. Maps serialize with sorted keys via encoding/json; the
// type prefix keeps 1 and "1" distinct.
func CanonicalKey(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!%v", v)
	}
	return fmt.Sprintf("%d:%s", kindRank(v), data)
}

// SortDocs orders documents in place by the given sort clauses.
func SortDocs(docs []types.Document, clauses []types.SortClause) {
	if len(clauses) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, clause := range clauses {
			av, _ := docs[i].GetPath(clause.Field)
			bv, _ := docs[j].GetPath(clause.Field)
			cmp, ok := CompareValues(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if clause.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Apply runs the standard result pipeline over a materialized document
// set: criteria filter, then projection, then sort, skip and limit, in
// that order. Input documents are not mutated; returned documents are
// copies.
func Apply(docs []types.Document, opts types.QueryOptions) []types.Document {
	out := make([]types.Document, 0, len(docs))
	for _, doc := range docs {
		if !Matches(doc, opts.Criteria) {
			continue
		}
		out = append(out, doc.Project(opts.Properties))
	}
	SortDocs(out, opts.Sort)
	if opts.Skip > 0 {
		if opts.Skip >= len(out) {
			return nil
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

// GroupDocs buckets documents by the canonical tuple of values at the
// given key paths. Groups come back ordered by canonical key so results
// are deterministic regardless of input order. Missing key fields group
// under a nil value.
func GroupDocs(docs []types.Document, keys []string) []types.Group {
	type bucket struct {
		key  types.Document
		docs []types.Document
	}
	buckets := map[string]*bucket{}
	var order []string
	for _, doc := range docs {
		keyDoc := types.Document{}
		tuple := make([]interface{}, len(keys))
		for i, k := range keys {
			v, _ := doc.GetPath(k)
			tuple[i] = v
			keyDoc.SetPath(k, v)
		}
		ck := CanonicalKey(tuple)
		b, ok := buckets[ck]
		if !ok {
			b = &bucket{key: keyDoc}
			buckets[ck] = b
			order = append(order, ck)
		}
		b.docs = append(b.docs, doc)
	}
	sort.Strings(order)
	groups := make([]types.Group, 0, len(order))
	for _, ck := range order {
		b := buckets[ck]
		groups = append(groups, types.Group{Key: b.key, Docs: b.docs})
	}
	return groups
}

// DistinctDocs returns the unique field-combination records for the given
// fields across docs. Single-field results are deduplicated values; a
// record is included only when at least one requested field is present.
func DistinctDocs(docs []types.Document, fields []string) []types.Document {
	seen := map[string]bool{}
	var out []types.Document
	for _, doc := range docs {
		combo := types.Document{}
		any := false
		tuple := make([]interface{}, len(fields))
		for i, f := range fields {
			v, ok := doc.GetPath(f)
			if ok {
				combo.SetPath(f, v)
				any = true
			}
			tuple[i] = v
		}
		if !any {
			continue
		}
		ck := CanonicalKey(tuple)
		if seen[ck] {
			continue
		}
		seen[ck] = true
		out = append(out, combo)
	}
	return out
}
