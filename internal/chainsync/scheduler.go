package chainsync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
)

// Syncable is the subset of Syncer the scheduler needs, letting tests
// substitute a fake without the generic type parameters.
type Syncable interface {
	Sync(ctx context.Context) error
}

// Scheduler wraps a Syncable behind a periodic ticker. A
// sync_interval_s of 0 disables periodic scheduling entirely (Run returns
// immediately).
type Scheduler struct {
	sync     Syncable
	interval time.Duration
	logger   zerolog.Logger
}

// NewScheduler creates a Scheduler invoking sync.Sync every interval.
func NewScheduler(sync Syncable, interval time.Duration) *Scheduler {
	return &Scheduler{sync: sync, interval: interval, logger: log.WithComponent("scheduler")}
}

// Run blocks, invoking Sync on every tick until ctx is cancelled. A tick
// that fires while the previous sync is still running is skipped rather
// than queued (time.Ticker semantics): a slow sync does not cause a burst
// of catch-up invocations once it completes.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("periodic sync disabled (sync_interval_s=0)")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.sync.Sync(ctx); err != nil {
		s.logger.Error().Err(err).Msg("sync failed, will retry on next tick")
	}
}
