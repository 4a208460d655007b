package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pragmaxim-com/redbit-sub001/internal/chains/demo"
	"github.com/pragmaxim-com/redbit-sub001/internal/chainsync"
	"github.com/pragmaxim-com/redbit-sub001/internal/config"
	"github.com/pragmaxim-com/redbit-sub001/internal/storage"
	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
)

// loadConfig reads the --config file shared by every subcommand and
// applies the persistent --log-level/--log-json overrides before
// initializing the global logger.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if asJSON, _ := cmd.Flags().GetBool("log-json"); asJSON {
		cfg.Log.JSONOutput = true
	}
	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSONOutput})
	return cfg, nil
}

// demoDbDefs describes the single demo_headers table the bundled
// synthetic chain persists into. A real chain integration would
// register one DbDef per entity it indexes instead of this fixed list.
func demoDbDefs() []storage.DbDef {
	return []storage.DbDef{
		{Name: "demo_headers", CacheWeight: 1, LRUCacheSize: 4096},
	}
}

// openStorage opens the configured set of physical databases for the
// running indexer instance named cfg.Indexer.Name. readOnly opens every
// file under bbolt's shared lock instead of its exclusive write lock, so
// a read-only subcommand (`stats`) can run alongside a live `run` process
// against the same database directory.
func openStorage(cfg *config.AppConfig, readOnly bool) (*storage.Storage, error) {
	dbDir := cfg.Indexer.DbPath + "/main/" + cfg.Indexer.Name
	_, store, err := storage.Open(dbDir, demoDbDefs(), cfg.ResolvedDbCacheSizeGB(), readOnly)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

// buildSyncer wires the demo chain's provider and storage table into a
// Syncer: construct the chain, assemble the EntityWriteContext, hand
// both to chainsync.New. Shared by run and sync so both subcommands
// bootstrap the pipeline identically.
func buildSyncer(ctx context.Context, cfg *config.AppConfig, store *storage.Storage, tipHeight uint64) (*chainsync.Syncer[demo.RawBlock, demo.Block], *storage.EntityWriteContext, error) {
	processingParallelism, fetchingParallelism := cfg.ResolvedParallelism()
	provider := &demo.Provider{TipHeight: tipHeight, Parallelism: fetchingParallelism}
	chain, err := demo.NewChain(store.DBs, provider)
	if err != nil {
		return nil, nil, fmt.Errorf("build chain: %w", err)
	}
	if err := chain.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("init chain: %w", err)
	}

	wctx := chain.WriteContext()

	syncer := chainsync.New[demo.RawBlock, demo.Block](chainsync.Config{
		Entity:                cfg.Indexer.Name,
		ForkDetectionHeights:  cfg.Indexer.ForkDetectionHeights,
		BatchingModeLagBlocks: cfg.Indexer.BatchingModeLagBlocks,
		ProcessingParallelism: processingParallelism,
		FetchingParallelism:   fetchingParallelism,
		MinEntityBatchSize:    cfg.Indexer.MinEntityBatchSize,
		NonDurableBatches:     cfg.Indexer.NonDurableBatches,
		MaxEntityBufferKBSize: cfg.Indexer.MaxEntityBufferKBSize,
		ValidationFromHeight:  cfg.Indexer.ValidationFromHeight,
		SoftBufferHint:        1024,
	}, provider, chain, wctx)

	return syncer, wctx, nil
}
