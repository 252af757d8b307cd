package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/index"
	"github.com/notedex/notedex/internal/notedb"
	"github.com/notedex/notedex/internal/procguard"
	"github.com/notedex/notedex/internal/store"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from scratch",
		Long: `Rebuild discards the existing index and re-embeds every note in the
database. Run it on first use, after changing embedding models, or to
reclaim space left by tombstoned updates.`,
		RunE: runRebuild,
	}
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	indexDir, err := cfg.ResolveIndexDir()
	if err != nil {
		return err
	}

	lock, err := procguard.Acquire(indexDir)
	if err != nil {
		return fmt.Errorf("%w%s", err, suggestion(err))
	}
	defer lock.Release()

	ctx := cmd.Context()

	db, err := notedb.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("%w%s", err, suggestion(err))
	}
	defer db.Close()

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	// Snapshot the version counter before reading notes, so changes that
	// land during the rebuild are picked up by the next version check.
	version, err := db.Version(ctx)
	if err != nil {
		return fmt.Errorf("read database version: %w", err)
	}

	notes, err := db.NotesModifiedSince(ctx, 0)
	if err != nil {
		return fmt.Errorf("read notes: %w", err)
	}

	mutator, err := index.NewEmpty(embedder)
	if err != nil {
		return err
	}

	meta := store.NewMetadata()
	meta.LastVersion = version

	var skipped int
	for _, note := range notes {
		if _, err := mutator.AddNote(ctx, note.ID, note.Title, note.Content); err != nil {
			slog.Warn("skipping note",
				slog.String("note", note.ID),
				slog.String("error", err.Error()))
			skipped++
			continue
		}
		meta.IndexedNotes[note.ID] = note.ModifiedAt
		if note.ModifiedAt > meta.LastUpdate {
			meta.LastUpdate = note.ModifiedAt
		}
	}

	if err := mutator.Save(indexDir); err != nil {
		return err
	}
	if err := store.SaveMetadata(indexDir, meta); err != nil {
		return err
	}

	stats := mutator.Stats()
	slog.Info("rebuild complete",
		slog.Int("indexed", stats.Live),
		slog.Int("skipped", skipped),
		slog.String("model", embedder.ModelName()))
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d notes (%d skipped) into %s\n",
		stats.Live, skipped, indexDir)
	return nil
}
