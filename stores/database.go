package stores

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/quarrydev/quarry/types"
)

// MemoryDatabase groups named MemoryStore collections under one handle,
// mainly for composing a JointStore without an external backend. The
// reported server version is configurable so version-gated capabilities
// can be exercised both ways.
type MemoryDatabase struct {
	version string
	key     string
	luField string

	mu          sync.Mutex
	connected   bool
	collections map[string]*MemoryStore
}

// databaseConfig carries the settings shared by database implementations.
type databaseConfig struct {
	version string
	key     string
	luField string
}

// DatabaseOption customizes a database handle.
type DatabaseOption func(*databaseConfig)

// WithServerVersion overrides the version string a MemoryDatabase
// reports. Ignored by backends that report their real engine version.
func WithServerVersion(v string) DatabaseOption {
	return func(cfg *databaseConfig) { cfg.version = v }
}

// WithCollectionKey sets the identity field for collections the database
// creates.
func WithCollectionKey(key string) DatabaseOption {
	return func(cfg *databaseConfig) { cfg.key = key }
}

// WithCollectionLastUpdatedField sets the last-updated field for
// collections the database creates.
func WithCollectionLastUpdatedField(field string) DatabaseOption {
	return func(cfg *databaseConfig) { cfg.luField = field }
}

func newDatabaseConfig(opts []DatabaseOption) databaseConfig {
	cfg := databaseConfig{
		version: "7.0.0",
		key:     DefaultKey,
		luField: DefaultLastUpdatedField,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewMemoryDatabase creates an in-memory database.
func NewMemoryDatabase(opts ...DatabaseOption) *MemoryDatabase {
	cfg := newDatabaseConfig(opts)
	return &MemoryDatabase{
		version:     cfg.version,
		key:         cfg.key,
		luField:     cfg.luField,
		collections: map[string]*MemoryStore{},
	}
}

func (db *MemoryDatabase) Connect() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.connected = true
	for _, coll := range db.collections {
		if err := coll.Connect(); err != nil {
			return err
		}
	}
	return nil
}

func (db *MemoryDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.connected = false
	for _, coll := range db.collections {
		if err := coll.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Collection returns the named collection, creating it on first use.
func (db *MemoryDatabase) Collection(name string) (types.Store, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	coll, ok := db.collections[name]
	if !ok {
		coll = NewMemoryStore(name, WithKey(db.key), WithLastUpdatedField(db.luField))
		db.collections[name] = coll
	}
	if db.connected {
		if err := coll.Connect(); err != nil {
			return nil, err
		}
	}
	return coll, nil
}

func (db *MemoryDatabase) ServerVersion() (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.connected {
		return "", fmt.Errorf("memory database: %w", types.ErrNotConnected)
	}
	return db.version, nil
}

// compareVersions compares dotted version strings segment by segment,
// numerically. Missing segments count as zero, so "3.6" equals "3.6.0".
// Lexicographic comparison would misorder "3.45" against "3.6".
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(strings.TrimSpace(as[i]))
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(strings.TrimSpace(bs[i]))
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
