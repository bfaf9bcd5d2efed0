package stores

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/quarrydev/quarry/internal/matching"
	"github.com/quarrydev/quarry/types"
)

// SQLiteStore persists documents as JSON rows in a SQLite table. Criteria
// evaluation runs in-process over the deserialized documents; SQLite
// contributes durability, the identity index, and json_extract expression
// indexes for EnsureIndex.
type SQLiteStore struct {
	path    string
	table   string
	key     string
	luField string
	log     zerolog.Logger

	mu        sync.Mutex
	db        *sql.DB
	ownsDB    bool
	connected bool
}

// SQLiteOption customizes a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteKey overrides the identity field (default "task_id").
func WithSQLiteKey(key string) SQLiteOption {
	return func(s *SQLiteStore) { s.key = key }
}

// WithSQLiteLastUpdatedField overrides the last-updated field.
func WithSQLiteLastUpdatedField(field string) SQLiteOption {
	return func(s *SQLiteStore) { s.luField = field }
}

// WithSQLiteLogger attaches a logger to the store.
func WithSQLiteLogger(l zerolog.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.log = l }
}

var tableNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// NewSQLiteStore creates a store over the given database file and table.
func NewSQLiteStore(path, table string, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{
		path:    path,
		table:   tableNameSanitizer.ReplaceAllString(table, "_"),
		key:     DefaultKey,
		luField: DefaultLastUpdatedField,
		log:     defaultLogger,
		ownsDB:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteStore) Name() string             { return fmt.Sprintf("sqlite://%s/%s", s.path, s.table) }
func (s *SQLiteStore) Key() string              { return s.key }
func (s *SQLiteStore) LastUpdatedField() string { return s.luField }

func (s *SQLiteStore) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		db, err := openSQLite(s.path)
		if err != nil {
			return err
		}
		s.db = db
		s.ownsDB = true
	}
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)", s.table)
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	s.connected = true
	return nil
}

// openSQLite opens a database handle configured for single-writer access.
func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.db != nil && s.ownsDB {
		err := s.db.Close()
		s.db = nil
		return err
	}
	s.db = nil
	return nil
}

func (s *SQLiteStore) loadAll() ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, fmt.Errorf("%s: %w", s.Name(), types.ErrNotConnected)
	}
	query, args, err := sq.Select("doc").From(s.table).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var doc types.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) Query(opts types.QueryOptions) (types.Cursor, error) {
	docs, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	return types.NewSliceCursor(matching.Apply(docs, opts)), nil
}

func (s *SQLiteStore) QueryOne(opts types.QueryOptions) (types.Document, error) {
	opts.Limit = 1
	docs, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	result := matching.Apply(docs, opts)
	if len(result) == 0 {
		return nil, nil
	}
	return result[0], nil
}

func (s *SQLiteStore) Distinct(fields []string, criteria types.Criteria) ([]types.Document, error) {
	docs, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	matched := matching.Apply(docs, types.QueryOptions{Criteria: criteria})
	return matching.DistinctDocs(matched, fields), nil
}

func (s *SQLiteStore) GroupBy(keys []string, opts types.QueryOptions) ([]types.Group, error) {
	docs, err := s.loadAll()
	if err != nil {
		return nil, err
	}
	return matching.GroupDocs(matching.Apply(docs, opts), keys), nil
}

// Update upserts documents keyed on the store key (or the first supplied
// override key). Multi-field upsert keys are not supported by the row
// identity scheme.
func (s *SQLiteStore) Update(docs []types.Document, keys ...string) error {
	matchKey := s.key
	if len(keys) > 0 {
		matchKey = keys[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return fmt.Errorf("%s: %w", s.Name(), types.ErrNotConnected)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		stored := doc.Clone()
		if _, ok := stored.GetPath(s.luField); !ok {
			stored[s.luField] = time.Now().UTC()
		}
		keyVal, ok := stored.GetPath(matchKey)
		if !ok {
			return fmt.Errorf("document missing key field %q", matchKey)
		}
		raw, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		query, args, err := sq.Insert(s.table).
			Columns("id", "doc").
			Values(matching.CanonicalKey(keyVal), string(raw)).
			Suffix("ON CONFLICT(id) DO UPDATE SET doc = excluded.doc").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build upsert: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EnsureIndex(key string, unique bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, fmt.Errorf("%s: %w", s.Name(), types.ErrNotConnected)
	}
	uniq := ""
	if unique {
		uniq = "UNIQUE "
	}
	name := fmt.Sprintf("idx_%s_%s", s.table, tableNameSanitizer.ReplaceAllString(key, "_"))
	ddl := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (json_extract(doc, '$.%s'))",
		uniq, name, s.table, key)
	if _, err := s.db.Exec(ddl); err != nil {
		return false, fmt.Errorf("failed to create index: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RemoveDocs(criteria types.Criteria) error {
	docs, err := s.loadAll()
	if err != nil {
		return err
	}
	var ids []string
	for _, doc := range docs {
		if matching.Matches(doc, criteria) {
			if keyVal, ok := doc.GetPath(s.key); ok {
				ids = append(ids, matching.CanonicalKey(keyVal))
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	query, args, err := sq.Delete(s.table).Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastUpdated() (time.Time, error) {
	docs, err := s.loadAll()
	if err != nil {
		return time.Time{}, err
	}
	return maxLastUpdated(docs, s.luField), nil
}

// SQLiteDatabase exposes one table per collection inside a single SQLite
// file, backing a JointStore with a real versioned engine.
type SQLiteDatabase struct {
	path    string
	key     string
	luField string

	mu          sync.Mutex
	db          *sql.DB
	connected   bool
	collections map[string]*SQLiteStore
}

// NewSQLiteDatabase creates a database handle over the given file.
func NewSQLiteDatabase(path string, opts ...DatabaseOption) *SQLiteDatabase {
	cfg := newDatabaseConfig(opts)
	return &SQLiteDatabase{
		path:        path,
		key:         cfg.key,
		luField:     cfg.luField,
		collections: map[string]*SQLiteStore{},
	}
}

func (db *SQLiteDatabase) Connect() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.db == nil {
		handle, err := openSQLite(db.path)
		if err != nil {
			return err
		}
		db.db = handle
	}
	db.connected = true
	for _, coll := range db.collections {
		coll.db = db.db
		coll.ownsDB = false
		if err := coll.Connect(); err != nil {
			return err
		}
	}
	return nil
}

func (db *SQLiteDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.connected = false
	for _, coll := range db.collections {
		_ = coll.Close()
	}
	if db.db != nil {
		err := db.db.Close()
		db.db = nil
		return err
	}
	return nil
}

func (db *SQLiteDatabase) Collection(name string) (types.Store, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	coll, ok := db.collections[name]
	if !ok {
		coll = NewSQLiteStore(db.path, name,
			WithSQLiteKey(db.key), WithSQLiteLastUpdatedField(db.luField))
		coll.ownsDB = false
		db.collections[name] = coll
	}
	if db.connected {
		coll.db = db.db
		if err := coll.Connect(); err != nil {
			return nil, err
		}
	}
	return coll, nil
}

// ServerVersion reports the SQLite library version, e.g. "3.46.1".
func (db *SQLiteDatabase) ServerVersion() (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.connected {
		return "", fmt.Errorf("sqlite database: %w", types.ErrNotConnected)
	}
	version, _, _ := sqlite3.Version()
	return version, nil
}
