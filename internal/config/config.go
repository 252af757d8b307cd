// Package config loads and validates notedex configuration.
// Precedence: defaults < config file (~/.notedex/config.yaml or
// --config) < environment variables (NOTEDEX_*).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	nderr "github.com/notedex/notedex/internal/errors"
)

// Default tuning values.
const (
	// DefaultDebounce is the quiet period after a change signal before a
	// synchronization pass runs. Bursts of edits within this window are
	// coalesced into one pass.
	DefaultDebounce = 1 * time.Second

	// DefaultPollInterval is how often the safety-net poll checks the
	// database version counter, independent of file notifications.
	DefaultPollInterval = 30 * time.Second

	// DefaultSearchLimit is the number of results returned by search.
	DefaultSearchLimit = 10
)

// Config represents the complete notedex configuration.
type Config struct {
	// Database is the path to the external notes SQLite database.
	Database string `yaml:"database"`

	// IndexDir is the directory holding the vector index, position
	// mapping and metadata. Empty means ~/.notedex/<database-name>.
	IndexDir string `yaml:"index_dir"`

	Sync       SyncConfig       `yaml:"sync"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// SyncConfig tunes the change-detection and scheduling behavior.
type SyncConfig struct {
	// Debounce is the coalescing window for change signals (e.g. "1s").
	Debounce string `yaml:"debounce"`

	// PollInterval is the fallback poll cadence (e.g. "30s").
	PollInterval string `yaml:"poll_interval"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" (default) or "static".
	Provider string `yaml:"provider"`

	// Model is the embedding model name for the ollama provider.
	Model string `yaml:"model"`

	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`

	// Dimensions overrides auto-detection (0 = auto-detect).
	Dimensions int `yaml:"dimensions"`

	// CacheSize is the number of embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			Debounce:     DefaultDebounce.String(),
			PollInterval: DefaultPollInterval.String(),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			CacheSize: 1000,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path, applying defaults and environment
// overrides. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, nderr.New(nderr.ErrCodeConfigInvalid,
					fmt.Sprintf("read config %s: %v", path, err), err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, nderr.New(nderr.ErrCodeConfigInvalid,
				fmt.Sprintf("parse config %s: %v", path, err), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from NOTEDEX_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("NOTEDEX_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("NOTEDEX_INDEX_DIR"); v != "" {
		c.IndexDir = v
	}
	if v := os.Getenv("NOTEDEX_DEBOUNCE"); v != "" {
		c.Sync.Debounce = v
	}
	if v := os.Getenv("NOTEDEX_POLL_INTERVAL"); v != "" {
		c.Sync.PollInterval = v
	}
	if v := os.Getenv("NOTEDEX_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("NOTEDEX_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("NOTEDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("NOTEDEX_EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("NOTEDEX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Sync.Debounce); err != nil {
		return nderr.New(nderr.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid sync.debounce %q", c.Sync.Debounce), err)
	}
	if _, err := time.ParseDuration(c.Sync.PollInterval); err != nil {
		return nderr.New(nderr.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid sync.poll_interval %q", c.Sync.PollInterval), err)
	}
	switch c.Embeddings.Provider {
	case "", "ollama", "static":
	default:
		return nderr.New(nderr.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embeddings.provider %q", c.Embeddings.Provider), nil)
	}
	if c.Embeddings.Dimensions < 0 {
		return nderr.New(nderr.ErrCodeConfigInvalid,
			"embeddings.dimensions must be >= 0", nil)
	}
	return nil
}

// Debounce returns the parsed debounce window.
func (c *Config) Debounce() time.Duration {
	d, err := time.ParseDuration(c.Sync.Debounce)
	if err != nil || d <= 0 {
		return DefaultDebounce
	}
	return d
}

// PollInterval returns the parsed poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Sync.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

// ResolveIndexDir returns the index directory, deriving the default
// location from the database path when unset.
func (c *Config) ResolveIndexDir() (string, error) {
	if c.IndexDir != "" {
		return c.IndexDir, nil
	}
	if c.Database == "" {
		return "", nderr.New(nderr.ErrCodeConfigInvalid, "no database configured", nil)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", nderr.New(nderr.ErrCodeConfigInvalid, "cannot resolve home directory", err)
	}
	base := strings.TrimSuffix(filepath.Base(c.Database), filepath.Ext(c.Database))
	return filepath.Join(home, ".notedex", base), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".notedex", "config.yaml")
}
