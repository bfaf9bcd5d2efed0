// Package matching evaluates criteria documents against stored documents.
// It is the single filter implementation behind every in-process store and
// the joint pipeline.
package matching

import (
	"reflect"
	"regexp"
	"time"

	"github.com/quarrydev/quarry/types"
)

// Matches reports whether doc satisfies the criteria. Nil or empty
// criteria match every document.
func Matches(doc types.Document, criteria types.Criteria) bool {
	for key, cond := range criteria {
		switch key {
		case "$or":
			if !matchAny(doc, conditionList(cond)) {
				return false
			}
		case "$and":
			if !matchAll(doc, conditionList(cond)) {
				return false
			}
		default:
			if !matchField(doc, key, cond) {
				return false
			}
		}
	}
	return true
}

func conditionList(cond interface{}) []types.Criteria {
	var out []types.Criteria
	switch list := cond.(type) {
	case []types.Criteria:
		out = list
	case []interface{}:
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, types.Criteria(m))
			} else if c, ok := item.(types.Criteria); ok {
				out = append(out, c)
			}
		}
	case []map[string]interface{}:
		for _, m := range list {
			out = append(out, types.Criteria(m))
		}
	}
	return out
}

func matchAny(doc types.Document, conds []types.Criteria) bool {
	for _, c := range conds {
		if Matches(doc, c) {
			return true
		}
	}
	return false
}

func matchAll(doc types.Document, conds []types.Criteria) bool {
	for _, c := range conds {
		if !Matches(doc, c) {
			return false
		}
	}
	return true
}

func matchField(doc types.Document, path string, cond interface{}) bool {
	value, exists := doc.GetPath(path)

	if ops, ok := operatorMap(cond); ok {
		for op, arg := range ops {
			if !applyOperator(value, exists, op, arg) {
				return false
			}
		}
		return true
	}

	if !exists {
		return false
	}
	return containsOrEqual(value, cond)
}

// operatorMap recognizes a condition of the form {"$op": arg, ...}.
func operatorMap(cond interface{}) (map[string]interface{}, bool) {
	m, ok := cond.(map[string]interface{})
	if !ok {
		if c, isCriteria := cond.(types.Criteria); isCriteria {
			m = c
		} else {
			return nil, false
		}
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

func applyOperator(value interface{}, exists bool, op string, arg interface{}) bool {
	switch op {
	case "$exists":
		return truthy(arg) == exists
	case "$eq":
		return exists && containsOrEqual(value, arg)
	case "$ne":
		return !exists || !containsOrEqual(value, arg)
	case "$gt":
		cmp, ok := CompareValues(value, arg)
		return exists && ok && cmp > 0
	case "$gte":
		cmp, ok := CompareValues(value, arg)
		return exists && ok && cmp >= 0
	case "$lt":
		cmp, ok := CompareValues(value, arg)
		return exists && ok && cmp < 0
	case "$lte":
		cmp, ok := CompareValues(value, arg)
		return exists && ok && cmp <= 0
	case "$in":
		return exists && inList(value, arg)
	case "$nin":
		return !exists || !inList(value, arg)
	case "$regex":
		pattern, ok := arg.(string)
		if !ok || !exists {
			return false
		}
		s, ok := value.(string)
		if !ok {
			return false
		}
		matched, err := regexp.MatchString(pattern, s)
		return err == nil && matched
	case "$not":
		return !applyOperatorSet(value, exists, arg)
	default:
		return false
	}
}

func applyOperatorSet(value interface{}, exists bool, cond interface{}) bool {
	if ops, ok := operatorMap(cond); ok {
		for op, arg := range ops {
			if !applyOperator(value, exists, op, arg) {
				return false
			}
		}
		return true
	}
	return exists && containsOrEqual(value, cond)
}

// containsOrEqual implements equality with implicit array membership:
// a stored array matches when any element equals the wanted value.
func containsOrEqual(value, want interface{}) bool {
	if list, ok := value.([]interface{}); ok {
		if _, wantList := want.([]interface{}); !wantList {
			for _, item := range list {
				if valuesEqual(item, want) {
					return true
				}
			}
		}
	}
	return valuesEqual(value, want)
}

// inList reports whether value (or any element of a stored array value)
// equals any candidate in the list argument.
func inList(value, arg interface{}) bool {
	candidates, ok := arg.([]interface{})
	if !ok {
		if strs, isStrs := arg.([]string); isStrs {
			candidates = make([]interface{}, len(strs))
			for i, s := range strs {
				candidates[i] = s
			}
		} else {
			return false
		}
	}
	for _, cand := range candidates {
		if containsOrEqual(value, cand) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := types.AsTime(b); bok {
			return at.Equal(bt)
		}
		return false
	}
	if bt, bok := b.(time.Time); bok {
		if at, aok := types.AsTime(a); aok {
			return bt.Equal(at)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		if f, ok := asFloat(v); ok {
			return f != 0
		}
		return true
	}
}
