package storage

import (
	"sync"
	"sync/atomic"
)

// Writer is the minimal contract both TableWriter and ShardedWriter
// satisfy, letting EntityWriteContext treat single-file and sharded
// columns identically.
type Writer interface {
	Begin(dur Durability) error
	Flush() error
	Stop() error
}

// EntityWriteContext bundles every table writer belonging to one logical
// entity (e.g. Block, Transaction) plus its child entity contexts, giving
// the caller a single begin/store/commit/stop boundary across many
// independent write transactions.
type EntityWriteContext struct {
	Name     string
	Writers  []Writer
	Children []*EntityWriteContext

	ready atomic.Bool
}

// NewEntityWriteContext bundles writers (in schema declaration order) and
// any child entity contexts.
func NewEntityWriteContext(name string, writers []Writer, children ...*EntityWriteContext) *EntityWriteContext {
	return &EntityWriteContext{Name: name, Writers: writers, Children: children}
}

// Ready reports whether this context (and every child) has completed at
// least one successful Begin. /healthz surfaces this as the storage
// layer's readiness signal.
func (c *EntityWriteContext) Ready() bool {
	if !c.ready.Load() {
		return false
	}
	for _, child := range c.Children {
		if !child.Ready() {
			return false
		}
	}
	return true
}

// Begin opens a transaction on every writer, recursing into children.
func (c *EntityWriteContext) Begin(dur Durability) error {
	for _, w := range c.Writers {
		if err := w.Begin(dur); err != nil {
			return wrap(KindTransaction, "begin", c.Name, err)
		}
	}
	for _, child := range c.Children {
		if err := child.Begin(dur); err != nil {
			return err
		}
	}
	c.ready.Store(true)
	return nil
}

// TwoPhaseCommit flushes every writer (phase 1) then reopens every writer's
// transaction via a subsequent Begin (phase 2), presenting a single atomic
// "batch persisted" boundary across many independent bbolt transactions.
// The requested durability is armed on every open transaction first, so
// the phase-1 commits themselves honor it (a durable checkpoint fsyncs
// now, not one batch late). The first error aborts the phase; the context
// is left unusable until Begin succeeds again.
func (c *EntityWriteContext) TwoPhaseCommit(dur Durability) error {
	if err := c.Begin(dur); err != nil {
		return err
	}
	if err := c.flushAll(); err != nil {
		return err
	}
	return c.Begin(dur)
}

// flushAll flushes every writer in this context's tree concurrently: each
// writer owns an independent bbolt file and command-queue goroutine, so
// there is no shared state to serialize on, and a sequential loop would
// needlessly queue N independent file syncs behind one another.
func (c *EntityWriteContext) flushAll() error {
	type flushJob struct {
		entity string
		writer Writer
	}
	var jobs []flushJob
	var collect func(ctx *EntityWriteContext)
	collect = func(ctx *EntityWriteContext) {
		for _, w := range ctx.Writers {
			jobs = append(jobs, flushJob{entity: ctx.Name, writer: w})
		}
		for _, child := range ctx.Children {
			collect(child)
		}
	}
	collect(c)

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job flushJob) {
			defer wg.Done()
			if err := job.writer.Flush(); err != nil {
				errs[i] = wrap(KindCommit, "flush", job.entity, err)
			}
		}(i, job)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop flushes and terminates every writer, recursing into children, and
// joins every writer goroutine before returning.
func (c *EntityWriteContext) Stop() error {
	var firstErr error
	for _, w := range c.Writers {
		if err := w.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, child := range c.Children {
		if err := child.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
