package chainsync

import (
	"context"

	"github.com/pragmaxim-com/redbit-sub001/internal/batch"
	"github.com/pragmaxim-com/redbit-sub001/internal/blockstream"
	"github.com/pragmaxim-com/redbit-sub001/internal/reorder"
	"github.com/pragmaxim-com/redbit-sub001/internal/storage"
	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
	"github.com/pragmaxim-com/redbit-sub001/pkg/metrics"
)

// Config holds the syncer's tunables, resolved from config.IndexerSettings
// by the caller (internal/config ratios are resolved to concrete ints
// before reaching here, so Syncer has no host-detection concerns of its
// own).
type Config struct {
	Entity                string
	ForkDetectionHeights  int
	BatchingModeLagBlocks uint64
	ProcessingParallelism int
	FetchingParallelism   int
	MinEntityBatchSize    uint64
	NonDurableBatches     int
	MaxEntityBufferKBSize int
	ValidationFromHeight  uint64
	SoftBufferHint        int
}

// Syncer drives one sync session end to end: tip discovery, fork
// detection, mode selection, and the fetch→reorder→batch→persist
// pipeline.
type Syncer[Raw batch.Sized, B Block] struct {
	cfg      Config
	provider BlockProvider[Raw, B]
	chain    BlockChain[B]
	wctx     *storage.EntityWriteContext
	monitor  *ProgressMonitor
}

// New creates a Syncer for one entity.
func New[Raw batch.Sized, B Block](cfg Config, provider BlockProvider[Raw, B], chain BlockChain[B], wctx *storage.EntityWriteContext) *Syncer[Raw, B] {
	return &Syncer[Raw, B]{
		cfg:      cfg,
		provider: provider,
		chain:    chain,
		wctx:     wctx,
		monitor:  NewProgressMonitor(cfg.Entity, cfg.MinEntityBatchSize*4),
	}
}

// Sync runs one session: discovers the remote tip, resolves any fork,
// selects a delivery mode, and drives the pipeline until the local chain
// has caught up or ctx is cancelled.
func (s *Syncer[Raw, B]) Sync(ctx context.Context) error {
	logger := log.WithComponent("syncer").With().Str("entity", s.cfg.Entity).Logger()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

	tip, err := s.provider.GetChainTip(ctx)
	if err != nil {
		metrics.SyncErrorsTotal.Inc()
		return err
	}

	last, hasLast, err := s.chain.GetLastHeader(ctx)
	if err != nil {
		metrics.SyncErrorsTotal.Inc()
		return err
	}

	fromHeight := uint64(1)
	if hasLast {
		if last.Height >= tip.Height {
			logger.Debug().Uint64("height", last.Height).Msg("already at tip, nothing to do")
			return nil
		}
		if err := s.resolveFork(ctx, last); err != nil {
			metrics.SyncErrorsTotal.Inc()
			return err
		}
		fromHeight = last.Height + 1
	}

	mode := blockstream.Batching
	if tip.Height-fromHeight <= s.cfg.BatchingModeLagBlocks {
		mode = blockstream.Continuous
	}

	if err := s.wctx.Begin(storage.DurabilityNone); err != nil {
		metrics.SyncErrorsTotal.Inc()
		return err
	}

	err = s.pipeline(ctx, fromHeight, tip.Height, mode)
	if err != nil {
		metrics.SyncErrorsTotal.Inc()
		logger.Error().Err(err).Msg("sync session failed")
		return err
	}

	return s.wctx.TwoPhaseCommit(storage.DurabilityImmediate)
}

// resolveFork walks back up to ForkDetectionHeights from last, comparing
// local and remote headers; on divergence the orphaned range reported by
// ValidateChain is handed to UpdateBlocks for re-indexing.
//
// TODO: if the process dies mid-re-store, partial fork state can persist
// until the next session's fork check runs again; the re-store is durable
// but not resumable.
func (s *Syncer[Raw, B]) resolveFork(ctx context.Context, last Header) error {
	// If the remote still knows our last persisted block by hash, it sits
	// on the canonical chain and no ancestor can have diverged.
	if _, found, err := s.provider.GetProcessedBlock(ctx, last.Hash); err != nil {
		return err
	} else if found {
		return nil
	}

	from := s.cfg.ValidationFromHeight
	if last.Height > uint64(s.cfg.ForkDetectionHeights) && last.Height-uint64(s.cfg.ForkDetectionHeights) > from {
		from = last.Height - uint64(s.cfg.ForkDetectionHeights)
	}
	orphaned, err := s.chain.ValidateChain(ctx, from)
	if err != nil {
		return err
	}
	if len(orphaned) == 0 {
		return nil
	}
	metrics.ForkRollbacksTotal.Inc()
	logger := log.WithComponent("syncer")
	logger.Warn().Int("orphaned", len(orphaned)).Msg("fork detected, re-fetching orphaned range")

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rawCh, err := s.provider.Stream(streamCtx, orphaned[0].Height, blockstream.Continuous)
	if err != nil {
		return err
	}
	target := orphaned[len(orphaned)-1].Height
	var replacement []B
	collecting := true
	for rawBatch := range rawCh {
		for _, raw := range rawBatch {
			if !collecting {
				continue
			}
			processed, err := s.provider.Process(raw)
			if err != nil {
				return err
			}
			replacement = append(replacement, processed)
			if processed.Height() >= target {
				collecting = false
				cancel()
			}
		}
	}
	if err := s.wctx.Begin(storage.DurabilityImmediate); err != nil {
		return err
	}
	return s.chain.UpdateBlocks(ctx, s.wctx, replacement)
}

func (s *Syncer[Raw, B]) pipeline(ctx context.Context, from, to uint64, mode blockstream.Mode) error {
	rawCh, err := s.provider.Stream(ctx, from, mode)
	if err != nil {
		return err
	}

	buf := reorder.New[B](s.cfg.Entity, from, s.cfg.SoftBufferHint)
	wb := batch.NewWeightBatcher[B](s.cfg.MinEntityBatchSize, mode == blockstream.Continuous, s.provider.Weight)

	durabilityCounter := 0
	persist := func(items []B) error {
		metrics.BatchEmittedTotal.WithLabelValues("weight", s.cfg.Entity).Inc()
		metrics.BatchEmittedItems.WithLabelValues("weight", s.cfg.Entity).Observe(float64(len(items)))

		dur := storage.DurabilityNone
		durabilityCounter++
		if s.cfg.NonDurableBatches <= 0 || durabilityCounter%s.cfg.NonDurableBatches == 0 {
			dur = storage.DurabilityImmediate
		}
		summary, err := s.chain.StoreBlocks(ctx, s.wctx, items, dur)
		if err == nil && len(items) > 0 {
			var weight uint64
			for _, it := range items {
				weight += s.provider.Weight(it)
			}
			s.monitor.LogBatch(items[len(items)-1].Height(), weight, to)
			s.monitor.LogTaskResults(durabilityCounter, summary)
		}
		return err
	}

	for rawBatch := range rawCh {
		for _, raw := range rawBatch {
			processed, err := s.provider.Process(raw)
			if err != nil {
				return err
			}
			ready := buf.Insert(processed.Height(), processed)
			metrics.ReorderBufferPending.WithLabelValues(s.cfg.Entity).Set(float64(buf.PendingLen()))
			for _, item := range ready {
				if out, ok := wb.Push(item); ok {
					if err := persist(out); err != nil {
						return err
					}
				}
			}
		}
		select {
		case <-ctx.Done():
			return s.drain(wb, persist)
		default:
		}
	}
	return s.drain(wb, persist)
}

func (s *Syncer[Raw, B]) drain(wb *batch.WeightBatcher[B], persist func([]B) error) error {
	if rest, ok := wb.TakeAll(); ok {
		return persist(rest)
	}
	return nil
}
