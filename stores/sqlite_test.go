package stores_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/quarrydev/quarry/stores"
	"github.com/quarrydev/quarry/types"
)

func connectedSQLite(t *testing.T, table string) *stores.SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quarry.db")
	s := stores.NewSQLiteStore(path, table)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRequiresConnect(t *testing.T) {
	s := stores.NewSQLiteStore(filepath.Join(t.TempDir(), "quarry.db"), "tasks")
	if _, err := s.Query(types.QueryOptions{}); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSQLiteStoreUpsertAndQuery(t *testing.T) {
	s := connectedSQLite(t, "tasks")
	if err := s.Update([]types.Document{
		{"task_id": 1, "state": "new"},
		{"task_id": 2, "state": "new"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
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
	if doc == nil || doc["state"] != "done" {
		t.Errorf("unexpected document: %v", doc)
	}
}

func TestSQLiteStorePersistsAcrossReconnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.db")
	s := stores.NewSQLiteStore(path, "tasks")
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Update([]types.Document{{"task_id": 1, "state": "kept"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := stores.NewSQLiteStore(path, "tasks")
	if err := reopened.Connect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	doc, err := reopened.QueryOne(types.QueryOptions{Criteria: types.Criteria{"task_id": 1}})
	if err != nil {
		t.Fatalf("query one: %v", err)
	}
	if doc == nil || doc["state"] != "kept" {
		t.Errorf("document did not survive reconnect: %v", doc)
	}
}

func TestSQLiteStoreCriteriaAndPipeline(t *testing.T) {
	s := connectedSQLite(t, "tasks")
	var docs []types.Document
	for i := 0; i < 10; i++ {
		docs = append(docs, types.Document{"task_id": i, "parity": i % 2})
	}
	if err := s.Update(docs); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{
		Criteria: types.Criteria{"parity": 0},
		Sort:     []types.SortClause{{Field: "task_id", Descending: true}},
		Limit:    2,
	}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(got))
	}
	first, _ := got[0].GetPath("task_id")
	if f, ok := first.(float64); !ok || f != 8 {
		t.Errorf("first task_id = %v, want 8", first)
	}
}

func TestSQLiteStoreRemoveDocs(t *testing.T) {
	s := connectedSQLite(t, "tasks")
	if err := s.Update([]types.Document{
		{"task_id": 1, "state": "old"},
		{"task_id": 2, "state": "new"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.RemoveDocs(types.Criteria{"state": "old"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	docs, err := types.ReadAll(mustQuery(t, s, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected 1 survivor, got %d", len(docs))
	}
}

func TestSQLiteStoreEnsureIndex(t *testing.T) {
	s := connectedSQLite(t, "tasks")
	ok, err := s.EnsureIndex("state", false)
	if err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	if !ok {
		t.Error("EnsureIndex should report success")
	}
}

func TestSQLiteDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.db")
	db := stores.NewSQLiteDatabase(path)
	if err := db.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = db.Close() }()

	version, err := db.ServerVersion()
	if err != nil {
		t.Fatalf("server version: %v", err)
	}
	if version == "" {
		t.Error("expected a non-empty engine version")
	}

	coll, err := db.Collection("tasks")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if err := coll.Update([]types.Document{{"task_id": 1}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := db.Collection("tasks")
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	docs, err := types.ReadAll(mustQuery(t, again, types.QueryOptions{}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("collections with the same name should share a table, got %d documents", len(docs))
	}
}
