package matching_test

import (
	"testing"
	"time"

	"github.com/quarrydev/quarry/internal/matching"
	"github.com/quarrydev/quarry/types"
)

func TestMatchesOperators(t *testing.T) {
	doc := types.Document{
		"task_id": 7,
		"state":   "successful",
		"tags":    []interface{}{"alpha", "beta"},
		"calc": map[string]interface{}{
			"energy": -1.5,
		},
	}

	cases := []struct {
		name     string
		criteria types.Criteria
		want     bool
	}{
		{"nil criteria", nil, true},
		{"empty criteria", types.Criteria{}, true},
		{"equality", types.Criteria{"state": "successful"}, true},
		{"equality miss", types.Criteria{"state": "failed"}, false},
		{"missing field equality", types.Criteria{"absent": 1}, false},
		{"dotted path", types.Criteria{"calc.energy": -1.5}, true},
		{"numeric cross type", types.Criteria{"task_id": 7.0}, true},
		{"array membership", types.Criteria{"tags": "alpha"}, true},
		{"array membership miss", types.Criteria{"tags": "gamma"}, false},
		{"exists true", types.Criteria{"state": map[string]interface{}{"$exists": true}}, true},
		{"exists false on absent", types.Criteria{"absent": map[string]interface{}{"$exists": false}}, true},
		{"exists false on present", types.Criteria{"state": map[string]interface{}{"$exists": false}}, false},
		{"gt", types.Criteria{"task_id": map[string]interface{}{"$gt": 5}}, true},
		{"gt equal", types.Criteria{"task_id": map[string]interface{}{"$gt": 7}}, false},
		{"gte equal", types.Criteria{"task_id": map[string]interface{}{"$gte": 7}}, true},
		{"lt", types.Criteria{"calc.energy": map[string]interface{}{"$lt": 0}}, true},
		{"lte", types.Criteria{"task_id": map[string]interface{}{"$lte": 6}}, false},
		{"ne", types.Criteria{"state": map[string]interface{}{"$ne": "failed"}}, true},
		{"ne on absent", types.Criteria{"absent": map[string]interface{}{"$ne": "x"}}, true},
		{"range", types.Criteria{"task_id": map[string]interface{}{"$gt": 5, "$lt": 10}}, true},
		{"in", types.Criteria{"state": map[string]interface{}{"$in": []interface{}{"failed", "successful"}}}, true},
		{"in string slice", types.Criteria{"state": map[string]interface{}{"$in": []string{"successful"}}}, true},
		{"in miss", types.Criteria{"state": map[string]interface{}{"$in": []interface{}{"failed"}}}, false},
		{"in over array value", types.Criteria{"tags": map[string]interface{}{"$in": []interface{}{"beta"}}}, true},
		{"nin", types.Criteria{"state": map[string]interface{}{"$nin": []interface{}{"failed"}}}, true},
		{"regex", types.Criteria{"state": map[string]interface{}{"$regex": "^succ"}}, true},
		{"regex miss", types.Criteria{"state": map[string]interface{}{"$regex": "^fail"}}, false},
		{"regex non-string value", types.Criteria{"task_id": map[string]interface{}{"$regex": "7"}}, false},
		{"not", types.Criteria{"task_id": map[string]interface{}{"$not": map[string]interface{}{"$gt": 10}}}, true},
		{"or", types.Criteria{"$or": []interface{}{
			map[string]interface{}{"state": "failed"},
			map[string]interface{}{"task_id": 7},
		}}, true},
		{"or all miss", types.Criteria{"$or": []interface{}{
			map[string]interface{}{"state": "failed"},
			map[string]interface{}{"task_id": 8},
		}}, false},
		{"and", types.Criteria{"$and": []types.Criteria{
			{"state": "successful"},
			{"task_id": map[string]interface{}{"$lt": 10}},
		}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := matching.Matches(doc, tc.criteria); got != tc.want {
				t.Errorf("Matches(%v) = %v, want %v", tc.criteria, got, tc.want)
			}
		})
	}
}

func TestMatchesTimeCoercion(t *testing.T) {
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := types.Document{"last_updated": stamp}

	if !matching.Matches(doc, types.Criteria{"last_updated": stamp.Format(time.RFC3339)}) {
		t.Error("RFC 3339 string should equal the stored time.Time")
	}
	later := stamp.Add(time.Hour).Format(time.RFC3339)
	if !matching.Matches(doc, types.Criteria{"last_updated": map[string]interface{}{"$lt": later}}) {
		t.Error("stored time should compare less than a later RFC 3339 string")
	}
}
