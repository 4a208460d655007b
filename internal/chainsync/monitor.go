package chainsync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
	"github.com/pragmaxim-com/redbit-sub001/pkg/metrics"
)

// ProgressMonitor logs sync progress at a bounded rate: emitting a line
// on every batch would drown the log when batches are small and frequent,
// so LogBatch only emits a line once the weight accumulated since the last
// line reaches warnGap. LogTaskResults separately reports a task summary
// on every 100th iteration.
type ProgressMonitor struct {
	entity        string
	logger        zerolog.Logger
	warnGap       uint64
	sinceLastLog  uint64
	batchesLogged int
	startedAt     time.Time
}

// NewProgressMonitor creates a monitor for entity, logging once weight
// gain since the last line reaches warnGap.
func NewProgressMonitor(entity string, warnGap uint64) *ProgressMonitor {
	return &ProgressMonitor{
		entity:    entity,
		logger:    log.WithEntity(entity),
		warnGap:   warnGap,
		startedAt: time.Now(),
	}
}

// LogBatch records one persisted batch and logs a progress line once the
// accumulated weight since the last line crosses warnGap.
func (m *ProgressMonitor) LogBatch(height uint64, weight uint64, tip uint64) {
	m.sinceLastLog += weight
	metrics.SyncHeight.WithLabelValues(m.entity).Set(float64(height))
	metrics.SyncLag.WithLabelValues(m.entity).Set(float64(tip - height))
	if m.sinceLastLog < m.warnGap {
		return
	}
	m.sinceLastLog = 0
	m.batchesLogged++
	m.logger.Info().
		Uint64("height", height).
		Uint64("tip", tip).
		Uint64("lag", tip-height).
		Dur("elapsed", time.Since(m.startedAt)).
		Msg("sync progress")
}

// LogTaskResults reports a coarser-grained summary every 100 iterations.
func (m *ProgressMonitor) LogTaskResults(iteration int, summary TaskSummary) {
	if iteration%100 != 0 {
		return
	}
	m.logger.Info().
		Int("iteration", iteration).
		Int("count", summary.Count).
		Uint64("from_height", summary.FromHeight).
		Uint64("to_height", summary.ToHeight).
		Msg("task results")
}
