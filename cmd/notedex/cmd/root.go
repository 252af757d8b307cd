// Package cmd provides the CLI commands for notedex.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/config"
	"github.com/notedex/notedex/internal/embed"
	nderr "github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Persistent flag values shared by all subcommands.
var (
	cfgFile   string
	flagDB    string
	flagIndex string
	offline   bool
	debugMode bool
)

// NewRootCmd creates the root command for the notedex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notedex",
		Short: "Keep a semantic index of your notes in sync with your notes database",
		Long: `notedex watches an external notes database (e.g. a note-taking
app's SQLite file) and keeps a local vector index synchronized with it
incrementally: changed notes are re-embedded and re-indexed, nothing
else is touched.

Start with 'notedex rebuild' to build the index, then run
'notedex watch' to keep it in sync.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("notedex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.notedex/config.yaml)")
	cmd.PersistentFlags().StringVar(&flagDB, "database", "", "path to the notes SQLite database")
	cmd.PersistentFlags().StringVar(&flagIndex, "index-dir", "", "index directory (default ~/.notedex/<database-name>)")
	cmd.PersistentFlags().BoolVar(&offline, "offline", false, "use static embeddings (no Ollama required)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves configuration from file, environment and flags.
// Flags win over everything.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flagDB != "" {
		cfg.Database = flagDB
	}
	if flagIndex != "" {
		cfg.IndexDir = flagIndex
	}
	if offline {
		cfg.Embeddings.Provider = "static"
	}
	if debugMode {
		cfg.LogLevel = "debug"
	}

	if cfg.Database == "" {
		return nil, nderr.New(nderr.ErrCodeConfigInvalid,
			"no notes database configured", nil).
			WithSuggestion("pass --database or set database in the config file")
	}

	logging.Setup(logging.Config{Level: cfg.LogLevel})
	return cfg, nil
}

// newEmbedder builds the configured embedder.
func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	return embed.New(ctx, embed.FactoryConfig{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.Host,
		Dimensions: cfg.Embeddings.Dimensions,
		CacheSize:  cfg.Embeddings.CacheSize,
		Timeout:    60 * time.Second,
	})
}

// suggestion renders a SyncError's suggestion for the user, if any,
// searching the whole wrap chain.
func suggestion(err error) string {
	var se *nderr.SyncError
	if errors.As(err, &se) && se.Suggestion != "" {
		return fmt.Sprintf("\nhint: %s", se.Suggestion)
	}
	return ""
}
