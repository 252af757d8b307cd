package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	nderr "github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index freshness and occupancy",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	indexDir, err := cfg.ResolveIndexDir()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database:  %s\n", cfg.Database)
	fmt.Fprintf(out, "Index:     %s\n", indexDir)

	idx, mapping, err := store.LoadIndex(indexDir)
	if err != nil {
		if nderr.HasCode(err, nderr.ErrCodeIndexMissing) {
			fmt.Fprintln(out, "Status:    no index (run 'notedex rebuild')")
			return nil
		}
		return err
	}

	meta := store.LoadMetadata(indexDir)
	live := len(mapping)
	total := idx.Count()

	fmt.Fprintf(out, "Notes:     %d live, %d tombstones (%d vectors)\n",
		live, int(total)-live, total)
	fmt.Fprintf(out, "Version:   %d\n", meta.LastVersion)
	if meta.LastUpdate > 0 {
		fmt.Fprintf(out, "Watermark: %d (%s)\n", meta.LastUpdate,
			time.UnixMilli(meta.LastUpdate).Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "Watermark: never synchronized")
	}
	return nil
}
