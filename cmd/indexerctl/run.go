package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pragmaxim-com/redbit-sub001/internal/chainsync"
	"github.com/pragmaxim-com/redbit-sub001/internal/httpapi"
	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
)

// runCmd starts the scheduler and HTTP stats server and blocks until the
// process receives SIGINT/SIGTERM, then flushes and exits.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and HTTP stats server until interrupted",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Uint64("demo-tip-height", 5000, "fixed chain tip height for the synthetic demo provider")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.WithComponent("indexerctl")

	if !cfg.Indexer.Enable {
		logger.Info().Msg("indexer.enable is false, exiting")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	sched := chainsync.NewScheduler(syncer, time.Duration(cfg.ResolvedSyncIntervalS())*time.Second)

	var srv *httpapi.Server
	if cfg.HTTP.Enable {
		srv = httpapi.New(store, wctx.Ready)
		go func() {
			if err := srv.ListenAndServe(cfg.HTTP.BindAddress); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("http server exited")
			}
		}()
	}

	logger.Info().Str("name", cfg.Indexer.Name).Msg("indexer started")
	sched.Run(ctx)

	logger.Info().Msg("shutting down, flushing table writers")
	return wctx.Stop()
}
