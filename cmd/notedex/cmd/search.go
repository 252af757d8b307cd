package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notedex/notedex/internal/config"
	"github.com/notedex/notedex/internal/index"
)

func newSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index for semantically similar notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", config.DefaultSearchLimit, "maximum number of results")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	indexDir, err := cfg.ResolveIndexDir()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	mutator, err := index.Load(indexDir, embedder)
	if err != nil {
		return fmt.Errorf("%w%s", err, suggestion(err))
	}

	results, err := mutator.Search(ctx, query, limit)
	if err != nil {
		return fmt.Errorf("%w%s", err, suggestion(err))
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching notes.")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s  (score %.3f)\n", i+1, r.NoteID, r.Score)
	}
	return nil
}
