// Command indexerctl bootstraps one indexer instance: run starts the
// scheduler and HTTP surface, sync performs a single session and exits,
// stats opens storage read-only and prints table statistics. Grounded on
// cmd/warren/main.go's cobra root command + pprof + signal-driven
// graceful shutdown shape.
package main

import (
	"fmt"
	_ "net/http/pprof"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexerctl",
	Short: "Indexes a UTXO-style chain into an embedded key-value store",
	Long: `indexerctl pulls blocks from a chain provider, reorders and batches
them, and persists the result through a set of sharded, background-flushed
table writers, exposing the indexed state over HTTP/JSON.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("indexerctl version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	rootCmd.PersistentFlags().String("config", "config.yaml", "path to the settings file")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level from the config file")
	rootCmd.PersistentFlags().Bool("log-json", false, "force JSON log output regardless of the config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statsCmd)
}
