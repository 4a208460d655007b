package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pragmaxim-com/redbit-sub001/internal/storage"
)

// statsCmd opens storage and prints bbolt's own bucket statistics for
// every table, then exits. It does not construct a syncer or chain, so
// it is safe to run alongside a live `run` process against the same
// database directory.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print table statistics and exit",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openStorage(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	var all []storage.TableInfo
	for name, db := range store.DBs {
		info, err := storage.CollectTableInfo(name, db)
		if err != nil {
			return fmt.Errorf("collect table info for %s: %w", name, err)
		}
		all = append(all, info...)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DB\tTABLE\tDEPTH\tBRANCH PAGES\tLEAF PAGES\tKEYS\tFRAGMENTED BYTES")
	for _, info := range all {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			info.DB, info.Table, info.Depth, info.BranchPages, info.LeafPages, info.KeyN, info.FragmentedKB)
	}
	return tw.Flush()
}
