package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
)

// syncCmd performs exactly one Syncer.Sync session and exits, without
// starting the periodic scheduler or the HTTP stats server.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single sync session and exit",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().Uint64("demo-tip-height", 5000, "fixed chain tip height for the synthetic demo provider")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.WithComponent("indexerctl")

	ctx := context.Background()

	store, err := openStorage(cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing storage")
		}
	}()

	tipHeight, _ := cmd.Flags().GetUint64("demo-tip-height")
	syncer, wctx, err := buildSyncer(ctx, cfg, store, tipHeight)
	if err != nil {
		return err
	}

	if err := syncer.Sync(ctx); err != nil {
		return err
	}

	logger.Info().Str("name", cfg.Indexer.Name).Msg("sync session complete")
	return wctx.Stop()
}
