// Package config loads a YAML store topology and builds the Store graph
// it describes. Each entry names a store type and its parameters;
// composite entries reference other entries by name, so a single file can
// describe an aliased, sandboxed view over a federated set of leaves.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/quarrydev/quarry/stores"
	"github.com/quarrydev/quarry/types"
)

// StoreConfig describes one store entry in the topology file. Which
// fields apply depends on Type; irrelevant fields are ignored.
type StoreConfig struct {
	Type string `mapstructure:"type"`

	// Shared overrides.
	Key              string `mapstructure:"key"`
	LastUpdatedField string `mapstructure:"last_updated_field"`

	// memory / sqlite / file.
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`

	// file.
	Writable    bool     `mapstructure:"writable"`
	MaxDepth    *int     `mapstructure:"max_depth"`
	FileFilters []string `mapstructure:"file_filters"`
	JSONName    string   `mapstructure:"json_name"`

	// aliasing / sandbox wrap a single inner store.
	Store       string            `mapstructure:"store"`
	Aliases     map[string]string `mapstructure:"aliases"`
	AliasesFile string            `mapstructure:"aliases_file"`
	Sandbox     string            `mapstructure:"sandbox"`

	// joint.
	Database    string   `mapstructure:"database"`
	Collections []string `mapstructure:"collections"`
	Master      string   `mapstructure:"master"`
	MergeAtRoot bool     `mapstructure:"merge_at_root"`

	// concat.
	Members []string `mapstructure:"members"`
}

// DatabaseConfig describes a database entry referenced by joint stores.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // "sqlite" or "memory"
	Path string `mapstructure:"path"`
}

// Config is a parsed topology file.
type Config struct {
	Stores    map[string]StoreConfig    `mapstructure:"stores"`
	Databases map[string]DatabaseConfig `mapstructure:"databases"`
}

// Load reads a topology file. The format is inferred from the extension;
// YAML is the documented one.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadAliases reads a flat public-to-internal alias map from a YAML file.
func LoadAliases(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file %s: %w", path, err)
	}
	aliases := map[string]string{}
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("failed to parse alias file %s: %w", path, err)
	}
	return aliases, nil
}

// StoreNames lists the configured store entries in stable order.
func (c *Config) StoreNames() []string {
	names := make([]string, 0, len(c.Stores))
	for name := range c.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the named store, recursively building the stores and
// databases it references. The returned store is not connected.
func (c *Config) Build(name string) (types.Store, error) {
	return c.build(name, map[string]bool{})
}

func (c *Config) build(name string, visiting map[string]bool) (types.Store, error) {
	if visiting[name] {
		return nil, fmt.Errorf("store %q references itself (directly or through its members): %w",
			name, types.ErrConfig)
	}
	entry, ok := c.Stores[name]
	if !ok {
		return nil, fmt.Errorf("no store named %q in config: %w", name, types.ErrConfig)
	}
	visiting[name] = true
	defer delete(visiting, name)

	switch strings.ToLower(entry.Type) {
	case "memory":
		return stores.NewMemoryStore(name, memoryOptions(entry)...), nil

	case "sqlite":
		if entry.Path == "" {
			return nil, fmt.Errorf("sqlite store %q needs a path: %w", name, types.ErrConfig)
		}
		table := entry.Table
		if table == "" {
			table = name
		}
		return stores.NewSQLiteStore(entry.Path, table, sqliteOptions(entry)...), nil

	case "file":
		if entry.Path == "" {
			return nil, fmt.Errorf("file store %q needs a path: %w", name, types.ErrConfig)
		}
		return stores.NewFileStore(entry.Path, fileOptions(entry)...), nil

	case "aliasing":
		inner, err := c.build(entry.Store, visiting)
		if err != nil {
			return nil, err
		}
		aliases := entry.Aliases
		if entry.AliasesFile != "" {
			loaded, err := LoadAliases(entry.AliasesFile)
			if err != nil {
				return nil, err
			}
			aliases = loaded
		}
		return stores.NewAliasingStore(inner, aliases)

	case "sandbox":
		inner, err := c.build(entry.Store, visiting)
		if err != nil {
			return nil, err
		}
		return stores.NewSandboxStore(inner, entry.Sandbox)

	case "joint":
		db, err := c.buildDatabase(entry.Database)
		if err != nil {
			return nil, err
		}
		return stores.NewJointStore(db, entry.Collections, jointOptions(entry)...)

	case "concat":
		members := make([]types.Store, 0, len(entry.Members))
		for _, member := range entry.Members {
			built, err := c.build(member, visiting)
			if err != nil {
				return nil, err
			}
			members = append(members, built)
		}
		return stores.NewConcatStore(members, concatOptions(entry)...)

	case "":
		return nil, fmt.Errorf("store %q has no type: %w", name, types.ErrConfig)
	default:
		return nil, fmt.Errorf("store %q has unknown type %q: %w", name, entry.Type, types.ErrConfig)
	}
}

func (c *Config) buildDatabase(name string) (types.Database, error) {
	entry, ok := c.Databases[name]
	if !ok {
		return nil, fmt.Errorf("no database named %q in config: %w", name, types.ErrConfig)
	}
	switch strings.ToLower(entry.Type) {
	case "memory":
		return stores.NewMemoryDatabase(), nil
	case "sqlite":
		if entry.Path == "" {
			return nil, fmt.Errorf("sqlite database %q needs a path: %w", name, types.ErrConfig)
		}
		return stores.NewSQLiteDatabase(entry.Path), nil
	default:
		return nil, fmt.Errorf("database %q has unknown type %q: %w", name, entry.Type, types.ErrConfig)
	}
}

func memoryOptions(entry StoreConfig) []stores.MemoryOption {
	var opts []stores.MemoryOption
	if entry.Key != "" {
		opts = append(opts, stores.WithKey(entry.Key))
	}
	if entry.LastUpdatedField != "" {
		opts = append(opts, stores.WithLastUpdatedField(entry.LastUpdatedField))
	}
	return opts
}

func sqliteOptions(entry StoreConfig) []stores.SQLiteOption {
	var opts []stores.SQLiteOption
	if entry.Key != "" {
		opts = append(opts, stores.WithSQLiteKey(entry.Key))
	}
	if entry.LastUpdatedField != "" {
		opts = append(opts, stores.WithSQLiteLastUpdatedField(entry.LastUpdatedField))
	}
	return opts
}

func fileOptions(entry StoreConfig) []stores.FileStoreOption {
	var opts []stores.FileStoreOption
	if entry.Writable {
		opts = append(opts, stores.Writable())
	}
	if entry.MaxDepth != nil {
		opts = append(opts, stores.WithMaxDepth(*entry.MaxDepth))
	}
	if len(entry.FileFilters) > 0 {
		opts = append(opts, stores.WithFileFilters(entry.FileFilters...))
	}
	if entry.JSONName != "" {
		opts = append(opts, stores.WithJSONName(entry.JSONName))
	}
	return opts
}

func jointOptions(entry StoreConfig) []stores.JointOption {
	var opts []stores.JointOption
	if entry.Master != "" {
		opts = append(opts, stores.WithMaster(entry.Master))
	}
	if entry.MergeAtRoot {
		opts = append(opts, stores.WithMergeAtRoot())
	}
	if entry.Key != "" {
		opts = append(opts, stores.WithJointKey(entry.Key))
	}
	if entry.LastUpdatedField != "" {
		opts = append(opts, stores.WithJointLastUpdatedField(entry.LastUpdatedField))
	}
	return opts
}

func concatOptions(entry StoreConfig) []stores.ConcatOption {
	var opts []stores.ConcatOption
	if entry.Key != "" {
		opts = append(opts, stores.WithConcatKey(entry.Key))
	}
	if entry.LastUpdatedField != "" {
		opts = append(opts, stores.WithConcatLastUpdatedField(entry.LastUpdatedField))
	}
	return opts
}
