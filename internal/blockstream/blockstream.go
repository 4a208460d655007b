// Package blockstream turns a height range into a channel of raw block
// batches, fetched with bounded concurrency and packed through a size
// batcher.
package blockstream

import (
	"context"
	"sync"

	"github.com/pragmaxim-com/redbit-sub001/internal/batch"
	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
)

// Mode selects delivery order. Batching releases each fetch as soon as it
// completes, maximising throughput when the syncer is far behind the
// remote tip; Continuous preserves height order and emits one item at a
// time for tip-following sync.
type Mode int

const (
	Batching Mode = iota
	Continuous
)

// channelBufferSize bounds the producer-consumer channel between the
// fetchers and the pipeline.
const channelBufferSize = 64

// MinBatchBytes derives the per-batch byte threshold:
// max(maxEntityBufferKB, 256) KB spread across the channel's buffer slots.
func MinBatchBytes(maxEntityBufferKB int) int {
	kb := maxEntityBufferKB
	if kb < 256 {
		kb = 256
	}
	return (kb * 1024) / channelBufferSize
}

// Fetcher retrieves one raw block at the given height.
type Fetcher[T batch.Sized] func(ctx context.Context, height uint64) (T, error)

// Stream maps [from, to] to a channel of raw-block batches. The channel is
// closed when the range is exhausted, ctx is cancelled, or a fetch fails
// (a fetch error is fatal to the producer: it logs, closes the channel,
// and the consumer observes EOF; retry is the fetcher's own
// responsibility).
//
// streamOrdered/streamUnordered are handed a context derived from ctx and
// cancelled as soon as the producer goroutine returns for any reason (range
// exhausted, ctx cancelled, or a fetch error), so any in-flight fetcher
// goroutine still blocked sending on its results/slot channel observes
// Done() and exits instead of leaking for the remaining life of the
// process (the scheduler reuses one ctx across every periodic tick, so an
// unbounded leak here would otherwise accumulate tick over tick).
func Stream[T batch.Sized](ctx context.Context, from, to uint64, parallelism int, mode Mode, maxEntityBufferKB int, fetch Fetcher[T]) <-chan []T {
	out := make(chan []T, channelBufferSize)
	limit := MinBatchBytes(maxEntityBufferKB)
	immediate := mode == Continuous

	streamCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer cancel()
		sb := batch.NewSizeBatcher[T](limit, immediate)
		emit := func(h uint64, item T) bool {
			if b, ok := sb.Push(item); ok {
				select {
				case out <- b:
				case <-streamCtx.Done():
					return false
				}
			}
			return true
		}
		var err error
		if mode == Continuous {
			err = streamOrdered(streamCtx, from, to, parallelism, fetch, emit)
		} else {
			err = streamUnordered(streamCtx, from, to, parallelism, fetch, emit)
		}
		if err != nil {
			logger := log.WithComponent("blockstream")
			logger.Error().Err(err).Msg("fetch failed, closing stream")
			return
		}
		if rest, ok := sb.TakeAll(); ok {
			select {
			case out <- rest:
			case <-streamCtx.Done():
			}
		}
	}()
	return out
}

type fetchResult[T any] struct {
	item T
	err  error
}

func streamUnordered[T batch.Sized](ctx context.Context, from, to uint64, parallelism int, fetch Fetcher[T], emit func(uint64, T) bool) error {
	heights := make(chan uint64)
	results := make(chan fetchResult[T])
	var wg sync.WaitGroup

	go func() {
		defer close(heights)
		for h := from; h <= to; h++ {
			select {
			case heights <- h:
			case <-ctx.Done():
				return
			}
		}
	}()

	if parallelism < 1 {
		parallelism = 1
	}
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range heights {
				item, err := fetch(ctx, h)
				select {
				case results <- fetchResult[T]{item, err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			return r.err
		}
		if !emit(0, r.item) {
			return nil
		}
	}
	return nil
}

func streamOrdered[T batch.Sized](ctx context.Context, from, to uint64, parallelism int, fetch Fetcher[T], emit func(uint64, T) bool) error {
	if parallelism < 1 {
		parallelism = 1
	}
	slots := make(chan chan fetchResult[T], parallelism)
	sem := make(chan struct{}, parallelism)

	go func() {
		defer close(slots)
		for h := from; h <= to; h++ {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			ch := make(chan fetchResult[T], 1)
			select {
			case slots <- ch:
			case <-ctx.Done():
				return
			}
			go func(height uint64, out chan<- fetchResult[T]) {
				defer func() { <-sem }()
				item, err := fetch(ctx, height)
				out <- fetchResult[T]{item, err}
			}(h, ch)
		}
	}()

	for ch := range slots {
		select {
		case r := <-ch:
			if r.err != nil {
				return r.err
			}
			if !emit(0, r.item) {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
