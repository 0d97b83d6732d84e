// Package config loads fsindex settings from the environment and an optional
// TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"fsindex/internal/logging"
)

// EnvPrefix prefixes every environment variable, e.g. FSINDEX_CACHE_DIR.
const EnvPrefix = "fsindex"

// Config holds all application configuration.
type Config struct {
	// CacheDir holds the volume and tag snapshots.
	CacheDir string `toml:"cache_dir" envconfig:"CACHE_DIR"`
	// Roots replaces OS volume enumeration with fixed directories.
	Roots   []string `toml:"roots" envconfig:"ROOTS"`
	Workers int      `toml:"workers" envconfig:"WORKERS"`

	FlushDelay    time.Duration `toml:"flush_delay" envconfig:"FLUSH_DELAY" default:"30s"`
	FlushInterval time.Duration `toml:"flush_interval" envconfig:"FLUSH_INTERVAL" default:"60s"`
	// IndexInterval bounds how long a watched change stays unsearchable.
	IndexInterval time.Duration `toml:"index_interval" envconfig:"INDEX_INTERVAL" default:"2s"`

	TagCapacity      int           `toml:"tag_capacity" envconfig:"TAG_CAPACITY" default:"256"`
	TagFlushInterval time.Duration `toml:"tag_flush_interval" envconfig:"TAG_FLUSH_INTERVAL" default:"60s"`

	MaxResults     int      `toml:"max_results" envconfig:"MAX_RESULTS" default:"500"`
	MinScore       int      `toml:"min_score" envconfig:"MIN_SCORE" default:"20"`
	JunkSubstrings []string `toml:"junk_substrings" envconfig:"JUNK_SUBSTRINGS" default:"$$_systemapps_,shared.index,com."`

	Listen      string   `toml:"listen" envconfig:"LISTEN" default:"127.0.0.1:7878"`
	CORSOrigins []string `toml:"cors_origins" envconfig:"CORS_ORIGINS" default:"*"`

	Log logging.Config `toml:"log" envconfig:"LOG"`
}

// Load reads the environment, then overlays the TOML file at path when path
// is not empty. File values win over environment values.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and no
// environment lookups.
func Default() *Config {
	cfg := &Config{
		FlushDelay:       30 * time.Second,
		FlushInterval:    60 * time.Second,
		IndexInterval:    2 * time.Second,
		TagCapacity:      256,
		TagFlushInterval: 60 * time.Second,
		MaxResults:       500,
		MinScore:         20,
		JunkSubstrings:   []string{"$$_systemapps_", "shared.index", "com."},
		Listen:           "127.0.0.1:7878",
		CORSOrigins:      []string{"*"},
		Log:              logging.DefaultConfig(),
	}
	_ = cfg.finalize()
	return cfg
}

// VolumeSnapshotPath is the fixed snapshot location for the volume cache.
func (c *Config) VolumeSnapshotPath() string {
	return filepath.Join(c.CacheDir, "fsindex.cache.bin")
}

// TagSnapshotPath is the fixed snapshot location for the tag cache.
func (c *Config) TagSnapshotPath() string {
	return filepath.Join(c.CacheDir, "fsindex.tags.bin")
}

func (c *Config) finalize() error {
	if c.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		c.CacheDir = filepath.Join(base, "fsindex")
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.TagCapacity <= 0 {
		return fmt.Errorf("tag capacity must be positive, got %d", c.TagCapacity)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", c.MaxResults)
	}
	if c.FlushInterval <= 0 || c.TagFlushInterval <= 0 || c.IndexInterval <= 0 {
		return fmt.Errorf("flush intervals must be positive")
	}
	return nil
}
