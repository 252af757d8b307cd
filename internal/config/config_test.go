package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nderr "github.com/notedex/notedex/internal/errors"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, cfg.Debounce())
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval())
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database: /home/u/notes.sqlite
index_dir: /var/lib/notedex
sync:
  debounce: 250ms
  poll_interval: 10s
embeddings:
  provider: static
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "/home/u/notes.sqlite", cfg.Database)
	assert.Equal(t, "/var/lib/notedex", cfg.IndexDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce())
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: /from/file.db\n"), 0o644))

	t.Setenv("NOTEDEX_DATABASE", "/from/env.db")
	t.Setenv("NOTEDEX_DEBOUNCE", "2s")
	t.Setenv("NOTEDEX_EMBED_PROVIDER", "static")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.Database)
	assert.Equal(t, 2*time.Second, cfg.Debounce())
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad debounce", "sync:\n  debounce: soon\n"},
		{"bad poll interval", "sync:\n  poll_interval: whenever\n"},
		{"unknown provider", "embeddings:\n  provider: psychic\n"},
		{"negative dimensions", "embeddings:\n  dimensions: -1\n"},
		{"malformed yaml", ": not yaml {{\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)

			require.Error(t, err)
			assert.True(t, nderr.HasCode(err, nderr.ErrCodeConfigInvalid))
		})
	}
}

func TestResolveIndexDir(t *testing.T) {
	t.Run("explicit dir wins", func(t *testing.T) {
		cfg := Default()
		cfg.IndexDir = "/explicit"

		dir, err := cfg.ResolveIndexDir()

		require.NoError(t, err)
		assert.Equal(t, "/explicit", dir)
	})

	t.Run("derived from database name", func(t *testing.T) {
		cfg := Default()
		cfg.Database = "/somewhere/notes.sqlite"

		dir, err := cfg.ResolveIndexDir()

		require.NoError(t, err)
		home, _ := os.UserHomeDir()
		assert.Equal(t, filepath.Join(home, ".notedex", "notes"), dir)
	})

	t.Run("no database configured", func(t *testing.T) {
		cfg := Default()

		_, err := cfg.ResolveIndexDir()

		assert.Error(t, err)
	})
}
