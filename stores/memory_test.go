package stores_test

import (
	"errors"
	"testing"
	"time"

	"github.com/quarrydev/quarry/stores"
	"github.com/quarrydev/quarry/types"
)

func connectedMemory(t *testing.T, docs []types.Document) *stores.MemoryStore {
	t.Helper()
	s := stores.NewMemoryStore("test")
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(docs) > 0 {
		if err := s.Update(docs); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func TestMemoryStoreRequiresConnect(t *testing.T) {
	s := stores.NewMemoryStore("test")
	if _, err := s.Query(types.QueryOptions{}); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Update([]types.Document{{"task_id": 1}}); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestMemoryStoreUpsert(t *testing.T) {
	s := connectedMemory(t, []types.Document{
		{"task_id": 1, "state": "new"},
		{"task_id": 2, "state": "new"},
	})

	if err := s.Update([]types.Document{{"task_id": 1, "state": "done"}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("upsert should replace, not append: got %d documents", len(docs))
	}

	doc, err := s.QueryOne(types.QueryOptions{Criteria: types.Criteria{"task_id": 1}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if doc["state"] != "done" {
		t.Errorf("state = %v, want done", doc["state"])
	}
}

func TestMemoryStoreMultiKeyUpsert(t *testing.T) {
	s := connectedMemory(t, nil)
	if err := s.Update([]types.Document{
		{"a": 1, "b": 1, "v": "first"},
		{"a": 1, "b": 2, "v": "second"},
	}, "a", "b"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Update([]types.Document{{"a": 1, "b": 2, "v": "replaced"}}, "a", "b"); err != nil {
		t.Fatalf("update: %v", err)
	}

	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	doc, err := s.QueryOne(types.QueryOptions{Criteria: types.Criteria{"a": 1, "b": 2}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if doc["v"] != "replaced" {
		t.Errorf("v = %v, want replaced", doc["v"])
	}
}

func TestMemoryStoreQueryOneMiss(t *testing.T) {
	s := connectedMemory(t, []types.Document{{"task_id": 1}})
	doc, err := s.QueryOne(types.QueryOptions{Criteria: types.Criteria{"task_id": 99}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil document on miss, got %v", doc)
	}
}

func TestMemoryStoreStampsLastUpdated(t *testing.T) {
	s := connectedMemory(t, nil)
	before := time.Now().UTC().Add(-time.Second)
	if err := s.Update([]types.Document{{"task_id": 1}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	lu, err := s.LastUpdated()
	if err != nil {
		t.Fatalf("last updated: %v", err)
	}
	if lu.Before(before) {
		t.Errorf("last updated %v predates the write", lu)
	}

	// An explicit value is preserved.
	stamp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Update([]types.Document{{"task_id": 2, "last_updated": stamp}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, err := s.QueryOne(types.QueryOptions{Criteria: types.Criteria{"task_id": 2}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if got, _ := types.AsTime(doc["last_updated"]); !got.Equal(stamp) {
		t.Errorf("last_updated = %v, want %v", got, stamp)
	}
}

func TestMemoryStoreRemoveDocs(t *testing.T) {
	s := connectedMemory(t, []types.Document{
		{"task_id": 1, "state": "old"},
		{"task_id": 2, "state": "new"},
		{"task_id": 3, "state": "old"},
	})
	if err := s.RemoveDocs(types.Criteria{"state": "old"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 || docs[0]["task_id"] != 2 {
		t.Errorf("unexpected survivors: %v", docs)
	}
}

func TestMemoryStoreDistinctAndGroupBy(t *testing.T) {
	s := connectedMemory(t, []types.Document{
		{"task_id": 1, "state": "ok", "kind": "a"},
		{"task_id": 2, "state": "ok", "kind": "b"},
		{"task_id": 3, "state": "bad", "kind": "a"},
	})

	values, err := types.DistinctValues(s, "state", nil)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(values) != 2 {
		t.Errorf("expected 2 distinct states, got %v", values)
	}

	combos, err := s.Distinct([]string{"state", "kind"}, nil)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(combos) != 3 {
		t.Errorf("expected 3 combination records, got %v", combos)
	}

	groups, err := s.GroupBy([]string{"state"}, types.QueryOptions{})
	if err != nil {
		t.Fatalf("group by: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
}

func TestMemoryStoreSurvivesReconnect(t *testing.T) {
	s := connectedMemory(t, []types.Document{{"task_id": 1}})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Query(types.QueryOptions{}); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("closed store should refuse queries, got %v", err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("documents should survive a reconnect, got %d", len(docs))
	}
}

func TestMemoryStoreQuerySnapshotIsolation(t *testing.T) {
	s := connectedMemory(t, []types.Document{{"task_id": 1, "state": "a"}})
	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	docs[0]["state"] = "mutated"

	doc, err := s.QueryOne(types.QueryOptions{Criteria: types.Criteria{"task_id": 1}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if doc["state"] != "a" {
		t.Error("mutating query results must not affect stored documents")
	}
}

func TestMemoryStoreEnsureIndex(t *testing.T) {
	s := connectedMemory(t, nil)
	ok, err := s.EnsureIndex("task_id", true)
	if err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	if !ok {
		t.Error("EnsureIndex should report success")
	}
}

func mustQuery(t *testing.T, s types.Store, opts types.QueryOptions) types.Cursor {
	t.Helper()
	cur, err := s.Query(opts)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return cur
}
