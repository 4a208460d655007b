// Package reorder absorbs out-of-order block arrivals from concurrent
// fetchers and releases only the contiguous run starting at the next
// expected height.
package reorder

import (
	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
	"github.com/pragmaxim-com/redbit-sub001/pkg/metrics"
)

// Buffer buffers items keyed by a monotonically increasing uint64 height
// and drains the longest contiguous prefix starting at nextExpected.
//
// Not safe for concurrent use; callers serialize access (the chain syncer
// owns one buffer per sync session and feeds it from a single goroutine
// that fans in results from the block stream).
type Buffer[T any] struct {
	entity       string
	nextExpected uint64
	pending      map[uint64]T
	maxSeen      uint64
	sawAny       bool
	softCapacity int
	dropped      uint64
}

// New creates a Buffer starting at nextExpected, with softCapacity used
// only as an observability hint for IsSaturated.
func New[T any](entity string, nextExpected uint64, softCapacity int) *Buffer[T] {
	return &Buffer[T]{
		entity:       entity,
		nextExpected: nextExpected,
		pending:      make(map[uint64]T),
		softCapacity: softCapacity,
	}
}

// Insert stores item at height and returns the contiguous run now ready
// for consumption, in ascending height order. Heights below nextExpected
// are dropped (and counted); a duplicate height is ignored, keeping the
// first arrival.
func (b *Buffer[T]) Insert(height uint64, item T) []T {
	if height < b.nextExpected {
		b.dropped++
		metrics.ReorderBufferDroppedTotal.WithLabelValues(b.entity).Inc()
		logger := log.WithEntity(b.entity)
		logger.Warn().Msg("reorder buffer dropped item below next expected height")
		return nil
	}
	if !b.sawAny || height > b.maxSeen {
		b.maxSeen = height
		b.sawAny = true
	}
	if _, exists := b.pending[height]; exists {
		metrics.ReorderBufferDuplicateTotal.WithLabelValues(b.entity).Inc()
		logger := log.WithEntity(b.entity)
		logger.Warn().Msg("reorder buffer ignored duplicate height")
		return nil
	}
	b.pending[height] = item
	return b.drain()
}

func (b *Buffer[T]) drain() []T {
	var out []T
	for {
		item, ok := b.pending[b.nextExpected]
		if !ok {
			break
		}
		out = append(out, item)
		delete(b.pending, b.nextExpected)
		b.nextExpected++
	}
	return out
}

// PendingLen returns the number of items currently buffered awaiting a gap fill.
func (b *Buffer[T]) PendingLen() int {
	return len(b.pending)
}

// IsSaturated reports whether the pending count has reached the configured
// soft capacity hint. Purely observational; the buffer does not reject
// inserts past this point.
func (b *Buffer[T]) IsSaturated() bool {
	return b.softCapacity > 0 && len(b.pending) >= b.softCapacity
}

// GapSpan returns (nextExpected, maxSeen, true) while the buffer is still
// waiting to drain up to the highest height it has accepted, or
// (0, 0, false) before the first insert and after a full drain advances
// nextExpected past maxSeen.
func (b *Buffer[T]) GapSpan() (uint64, uint64, bool) {
	if !b.sawAny || b.maxSeen < b.nextExpected {
		return 0, 0, false
	}
	return b.nextExpected, b.maxSeen, true
}

// Dropped returns the running count of below-threshold arrivals.
func (b *Buffer[T]) Dropped() uint64 {
	return b.dropped
}

// NextExpected returns the height the buffer is currently waiting to drain.
func (b *Buffer[T]) NextExpected() uint64 {
	return b.nextExpected
}
