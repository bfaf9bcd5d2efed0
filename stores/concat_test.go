package stores_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/quarrydev/quarry/stores"
	"github.com/quarrydev/quarry/types"
)

// concatPair federates two member stores with overlapping "campaign"
// values and distinct task ids.
func concatPair(t *testing.T) *stores.ConcatStore {
	t.Helper()
	first := connectedMemory(t, []types.Document{
		{"task_id": 0, "campaign": "alpha"},
		{"task_id": 1, "campaign": "beta"},
		{"task_id": 2, "campaign": "alpha"},
	})
	second := connectedMemory(t, []types.Document{
		{"task_id": 10, "campaign": "beta"},
		{"task_id": 11, "campaign": "gamma"},
	})
	s, err := stores.NewConcatStore([]types.Store{first, second})
	if err != nil {
		t.Fatalf("new concat store: %v", err)
	}
	return s
}

func TestNewConcatStoreRequiresMembers(t *testing.T) {
	if _, err := stores.NewConcatStore(nil); !errors.Is(err, types.ErrConfig) {
		t.Errorf("expected ErrConfig for empty member list, got %v", err)
	}
}

func TestConcatStoreQueryStreamsMembersInOrder(t *testing.T) {
	s := concatPair(t)

	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ids []int
	for _, doc := range docs {
		ids = append(ids, doc["task_id"].(int))
	}
	if diff := cmp.Diff([]int{0, 1, 2, 10, 11}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestConcatStoreGlobalSkipLimit(t *testing.T) {
	s := concatPair(t)

	// Skip past the whole first member into the second.
	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{Skip: 2, Limit: 2}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ids []int
	for _, doc := range docs {
		ids = append(ids, doc["task_id"].(int))
	}
	if diff := cmp.Diff([]int{2, 10}, ids); diff != "" {
		t.Errorf("pagination mismatch (-want +got):\n%s", diff)
	}
}

func TestConcatStoreCriteriaForwarded(t *testing.T) {
	s := concatPair(t)

	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{
		Criteria: types.Criteria{"campaign": "beta"},
	}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected one beta per member, got %d", len(docs))
	}
}

func TestConcatStoreQueryRestartable(t *testing.T) {
	s := concatPair(t)

	for round := 0; round < 2; round++ {
		docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
		if err != nil {
			t.Fatalf("round %d read: %v", round, err)
		}
		if len(docs) != 5 {
			t.Fatalf("round %d: expected 5 documents, got %d", round, len(docs))
		}
	}
}

func TestConcatStoreSortRejected(t *testing.T) {
	s := concatPair(t)
	_, err := s.Query(types.QueryOptions{Sort: []types.SortClause{{Field: "task_id"}}})
	if !errors.Is(err, types.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for sorted federation, got %v", err)
	}
}

func TestConcatStoreDistinctUnion(t *testing.T) {
	s := concatPair(t)

	values, err := types.DistinctValues(s, "campaign", nil)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	got := map[interface{}]bool{}
	for _, v := range values {
		got[v] = true
	}
	// beta appears in both members but only once in the union.
	if len(values) != 3 || !got["alpha"] || !got["beta"] || !got["gamma"] {
		t.Errorf("distinct union = %v, want alpha/beta/gamma", values)
	}
}

func TestConcatStoreGroupByRealignsAcrossMembers(t *testing.T) {
	s := concatPair(t)

	groups, err := s.GroupBy([]string{"campaign"}, types.QueryOptions{})
	if err != nil {
		t.Fatalf("group by: %v", err)
	}
	sizes := map[interface{}]int{}
	for _, g := range groups {
		sizes[g.Key["campaign"]] = len(g.Docs)
	}
	// beta spans both members and must land in one group.
	want := map[interface{}]int{"alpha": 2, "beta": 2, "gamma": 1}
	if diff := cmp.Diff(want, sizes); diff != "" {
		t.Errorf("group sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestConcatStoreEnsureIndexAll(t *testing.T) {
	s := concatPair(t)
	ok, err := s.EnsureIndex("task_id", false)
	if err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	if !ok {
		t.Error("every member indexes, so the federation should report success")
	}
}

func TestConcatStoreWritesUnsupported(t *testing.T) {
	s := concatPair(t)
	if err := s.Update([]types.Document{{"task_id": 1}}); !errors.Is(err, types.ErrUnsupported) {
		t.Errorf("update: expected ErrUnsupported, got %v", err)
	}
	if err := s.RemoveDocs(nil); !errors.Is(err, types.ErrUnsupported) {
		t.Errorf("remove: expected ErrUnsupported, got %v", err)
	}
}

func TestConcatStoreQueryOne(t *testing.T) {
	s := concatPair(t)
	doc, err := s.QueryOne(types.QueryOptions{Criteria: types.Criteria{"campaign": "gamma"}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if doc == nil || doc["task_id"] != 11 {
		t.Errorf("unexpected document: %v", doc)
	}
	miss, err := s.QueryOne(types.QueryOptions{Criteria: types.Criteria{"campaign": "none"}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if miss != nil {
		t.Errorf("expected nil document on miss, got %v", miss)
	}
}
