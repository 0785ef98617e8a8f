package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lexandro/volindex-mcp/feed"
	"github.com/lexandro/volindex-mcp/filter"
	"github.com/lexandro/volindex-mcp/index"
	"github.com/lexandro/volindex-mcp/search"
	"github.com/lexandro/volindex-mcp/snapshot"
)

const (
	envPrefix         = "VOLINDEX"
	defaultConfigFile = "~/.volindex/config.toml"
	defaultDataDir    = "~/.volindex"
)

var errNoSources = errors.New("no sources configured: set sources in the config file or pass --root")

// SourceConfig describes one indexed directory tree.
type SourceConfig struct {
	ID      string   `mapstructure:"id"`
	Root    string   `mapstructure:"root"`
	Exclude []string `mapstructure:"exclude"`
}

// IndexConfig tunes index builds.
type IndexConfig struct {
	Shards            int           `mapstructure:"shards"`
	FalsePositiveRate float64       `mapstructure:"false_positive_rate"`
	ErrorThreshold    float64       `mapstructure:"error_threshold"`
	WriterRetries     int           `mapstructure:"writer_retries"`
	FlushThreshold    int           `mapstructure:"flush_threshold"`
	FlushInterval     time.Duration `mapstructure:"flush_interval"`
	PathCacheSize     int           `mapstructure:"path_cache_size"`
}

// SearchConfig tunes query serving.
type SearchConfig struct {
	MaxResults int           `mapstructure:"max_results"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	CacheSize  uint64        `mapstructure:"cache_size"`
}

// SnapshotConfig controls generation persistence.
type SnapshotConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Compression string `mapstructure:"compression"`
}

// Config is the complete server configuration.
type Config struct {
	DataDir      string         `mapstructure:"data_dir"`
	LogLevel     string         `mapstructure:"log_level"`
	LogFile      string         `mapstructure:"log_file"`
	MetricsAddr  string         `mapstructure:"metrics_addr"`
	Watch        bool           `mapstructure:"watch"`
	SyncInterval time.Duration  `mapstructure:"sync_interval"`
	Sources      []SourceConfig `mapstructure:"sources"`
	Index        IndexConfig    `mapstructure:"index"`
	Search       SearchConfig   `mapstructure:"search"`
	Snapshot     SnapshotConfig `mapstructure:"snapshot"`

	// Root and SourceID come from flags and define a single source when the
	// config file lists none.
	Root     string   `mapstructure:"root"`
	SourceID string   `mapstructure:"source_id"`
	Exclude  []string `mapstructure:"exclude"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("watch", true)
	v.SetDefault("sync_interval", 10*time.Minute)
	v.SetDefault("root", "")
	v.SetDefault("source_id", "local")
	v.SetDefault("exclude", []string{})

	v.SetDefault("index.shards", 4)
	v.SetDefault("index.false_positive_rate", filter.DefaultFalsePositiveRate)
	v.SetDefault("index.error_threshold", feed.DefaultErrorThreshold)
	v.SetDefault("index.writer_retries", 5)
	v.SetDefault("index.flush_threshold", 1000)
	v.SetDefault("index.flush_interval", 500*time.Millisecond)
	v.SetDefault("index.path_cache_size", 64*1024)

	v.SetDefault("search.max_results", index.DefaultLimit)
	v.SetDefault("search.cache_ttl", 30*time.Second)
	v.SetDefault("search.cache_size", 256)

	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.compression", snapshot.CompressionZSTD.String())
}

// bindFlags registers the persistent flags shared by every command and binds
// them to their config keys.
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("config", "", "Config file (default: "+defaultConfigFile+")")
	flags.String("data-dir", "", "Directory for snapshots (default: "+defaultDataDir+")")
	flags.String("log-level", "", "Log level: debug|info|warn|error")
	flags.String("log-file", "", "Log file path (default: stderr)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("root", "", "Directory to index when the config lists no sources")
	flags.String("source-id", "", "Source id for --root (default: local)")
	flags.StringSlice("exclude", nil, "Extra ignore pattern for --root (repeatable)")
	flags.Bool("watch", true, "Watch sources for changes")
	flags.Duration("sync-interval", 0, "Interval between full consistency checks (0 uses the config value)")

	bindings := map[string]string{
		"data_dir":      "data-dir",
		"log_level":     "log-level",
		"log_file":      "log-file",
		"metrics_addr":  "metrics-addr",
		"root":          "root",
		"source_id":     "source-id",
		"exclude":       "exclude",
		"watch":         "watch",
		"sync_interval": "sync-interval",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads the config file (optional unless named explicitly),
// environment and flags into a Config.
func loadConfig(v *viper.Viper, fs afero.Fs, configFile string) (Config, error) {
	setDefaults(v)
	v.SetFs(fs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configFile != ""
	if !explicit {
		configFile = defaultConfigFile
	}
	path, err := homedir.Expand(configFile)
	if err != nil {
		return Config{}, fmt.Errorf("expanding config path: %w", err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		exists, _ := afero.Exists(fs, path)
		if explicit || exists {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize expands paths, folds the --root source in and validates the
// result.
func (c *Config) normalize() error {
	dataDir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return fmt.Errorf("expanding data_dir: %w", err)
	}
	c.DataDir = dataDir

	if len(c.Sources) == 0 && c.Root != "" {
		c.Sources = []SourceConfig{{ID: c.SourceID, Root: c.Root, Exclude: c.Exclude}}
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.ID == "" {
			return fmt.Errorf("source %d: id is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("source %s: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Root == "" {
			return fmt.Errorf("source %s: root is required", s.ID)
		}
		root, err := homedir.Expand(s.Root)
		if err != nil {
			return fmt.Errorf("source %s: expanding root: %w", s.ID, err)
		}
		if root, err = filepath.Abs(root); err != nil {
			return fmt.Errorf("source %s: resolving root: %w", s.ID, err)
		}
		s.Root = root
	}

	if _, err := snapshot.ParseCompression(c.Snapshot.Compression); err != nil {
		return fmt.Errorf("snapshot.compression: %w", err)
	}
	if c.Index.FalsePositiveRate <= 0 || c.Index.FalsePositiveRate >= 1 {
		return fmt.Errorf("index.false_positive_rate must be in (0, 1), got %v", c.Index.FalsePositiveRate)
	}
	return nil
}

// snapshotStore returns the snapshot store, or nil when persistence is off.
func (c Config) snapshotStore(fs afero.Fs) *snapshot.Store {
	if !c.Snapshot.Enabled {
		return nil
	}
	compression, _ := snapshot.ParseCompression(c.Snapshot.Compression)
	return snapshot.NewStore(fs, c.DataDir, compression)
}

// coordinatorConfig maps the config onto search.Config.
func (c Config) coordinatorConfig(snapshots *snapshot.Store) search.Config {
	return search.Config{
		Shards:            c.Index.Shards,
		FalsePositiveRate: c.Index.FalsePositiveRate,
		ErrorThreshold:    c.Index.ErrorThreshold,
		WriterRetries:     c.Index.WriterRetries,
		FlushThreshold:    c.Index.FlushThreshold,
		FlushInterval:     c.Index.FlushInterval,
		PathCacheSize:     c.Index.PathCacheSize,
		CacheTTL:          c.Search.CacheTTL,
		CacheSize:         c.Search.CacheSize,
		Snapshots:         snapshots,
	}
}
