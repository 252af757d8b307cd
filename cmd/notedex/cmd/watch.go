package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	nderr "github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/index"
	"github.com/notedex/notedex/internal/notedb"
	"github.com/notedex/notedex/internal/procguard"
	"github.com/notedex/notedex/internal/store"
	syncer "github.com/notedex/notedex/internal/sync"
	"github.com/notedex/notedex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var bootstrap bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously keep the index in sync with the notes database",
		Long: `Watch runs until interrupted. It watches the database file (and its
WAL/journal siblings) for changes and additionally polls the database's
version counter on a fixed interval as a safety net. Changes are
debounced and applied incrementally.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, bootstrap)
		},
	}

	cmd.Flags().BoolVar(&bootstrap, "rebuild", false,
		"start from an empty index when none exists, instead of failing")
	return cmd
}

func runWatch(cmd *cobra.Command, bootstrap bool) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	mutator, err := index.Load(indexDir, embedder)
	meta := store.LoadMetadata(indexDir)
	if err != nil {
		if !bootstrap || !nderr.HasCode(err, nderr.ErrCodeIndexMissing) {
			return fmt.Errorf("%w%s", err, suggestion(err))
		}
		// Fresh start: empty index, zero watermark. The first pass then
		// fetches and indexes every note.
		slog.Info("no index found, starting empty")
		mutator, err = index.NewEmpty(embedder)
		if err != nil {
			return err
		}
		meta = store.NewMetadata()
	}
	s := syncer.New(db, mutator, meta, indexDir, syncer.Options{
		Debounce: cfg.Debounce(),
	})
	defer s.Stop()

	slog.Info("watching notes database",
		slog.String("database", cfg.Database),
		slog.String("index", indexDir),
		slog.String("model", embedder.ModelName()))

	g, gctx := errgroup.WithContext(ctx)

	fw, err := watcher.NewFileWatcher(cfg.Database, s.OnRawChange)
	if err != nil {
		slog.Warn("file watch unavailable, relying on poll only",
			slog.String("error", err.Error()))
	} else {
		defer fw.Close()
		g.Go(func() error {
			fw.Run(gctx)
			return nil
		})
	}

	poller := watcher.NewPoller(cfg.PollInterval(), func(pctx context.Context) {
		s.CheckVersion(pctx)
	})
	defer poller.Stop()
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})

	// Catch up on anything that changed while we were not running.
	s.CheckVersion(ctx)

	<-gctx.Done()
	slog.Info("shutting down")
	return g.Wait()
}
