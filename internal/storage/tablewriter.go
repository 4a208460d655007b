package storage

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/pkg/log"
	"github.com/pragmaxim-com/redbit-sub001/pkg/metrics"
)

// Durability controls whether a Flush fsyncs before acknowledging.
// bbolt exposes a single NoSync toggle rather than a three-level
// enum, so Eventual is folded into Immediate (both fsync).
type Durability int

const (
	DurabilityNone Durability = iota
	DurabilityEventual
	DurabilityImmediate
)

func (d Durability) noSync() bool { return d == DurabilityNone }

// tableOps is implemented by each physical table layout (plain, index,
// dict) and dispatched through a single interface call per command,
// avoiding both virtual-dispatch proliferation and reflection. Each
// implementation owns whatever set of buckets its layout requires and
// creates them in init.
type tableOps interface {
	init(tx *bolt.Tx) error
	insert(tx *bolt.Tx, k, v []byte) error
	remove(tx *bolt.Tx, k []byte) (bool, error)
	head(tx *bolt.Tx, v []byte) ([]byte, bool, error)
	keys(tx *bolt.Tx, v []byte) ([][]byte, error)
}

type kv struct{ k, v []byte }

type command struct {
	kind        cmdKind
	dur         Durability
	one         kv
	many        []kv
	key         []byte
	value       []byte
	manyValues  [][]byte
	isLast      bool
	fn          func(tx *bolt.Tx) error
	fnInputs    func(tx *bolt.Tx, inputs [][]byte) error
	ackErr      chan error
	ackBool     chan boolErr
	ackHead     chan headResult
	ackHeadMany chan []headResult
	ackKeys     chan keysResult
}

type cmdKind int

const (
	cmdBegin cmdKind = iota
	cmdInsertOne
	cmdInsertMany
	cmdRemove
	cmdQueryHead
	cmdQueryHeadMany
	cmdGetKeys
	cmdQueryAndWrite
	cmdExec
	cmdFlush
	cmdStop
)

type boolErr struct {
	ok  bool
	err error
}

type headResult struct {
	key   []byte
	found bool
	err   error
}

type keysResult struct {
	keys [][]byte
	err  error
}

// TableWriter owns one bbolt bucket exclusively and one in-flight write
// transaction, driven by a command queue processed by a single goroutine.
// All commands execute strictly in arrival order.
type TableWriter struct {
	name string
	db   *bolt.DB
	ops  tableOps
	cmds chan command
	done chan struct{}

	tx  *bolt.Tx
	dur Durability
	err error
}

// NewTableWriter starts the writer goroutine. Buckets are created lazily
// on the first Begin via ops.init.
func NewTableWriter(name string, db *bolt.DB, ops tableOps) *TableWriter {
	w := &TableWriter{
		name: name,
		db:   db,
		ops:  ops,
		cmds: make(chan command, 256),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *TableWriter) run() {
	defer close(w.done)
	for cmd := range w.cmds {
		metrics.TableWriterQueueDepth.WithLabelValues(w.name).Set(float64(len(w.cmds)))
		switch cmd.kind {
		case cmdBegin:
			w.handleBegin(cmd)
		case cmdInsertOne:
			w.handleInsert(cmd.one)
		case cmdInsertMany:
			for _, e := range cmd.many {
				w.handleInsert(e)
			}
		case cmdRemove:
			w.handleRemove(cmd)
		case cmdQueryHead:
			w.handleQueryHead(cmd)
		case cmdQueryHeadMany:
			w.handleQueryHeadMany(cmd)
		case cmdGetKeys:
			w.handleGetKeys(cmd)
		case cmdQueryAndWrite:
			w.handleQueryAndWrite(cmd)
		case cmdExec:
			w.handleExec(cmd)
		case cmdFlush:
			w.handleFlush(cmd)
		case cmdStop:
			w.handleStop(cmd)
			return
		}
	}
}

func (w *TableWriter) handleBegin(cmd command) {
	// recorded even when the tx is already open: an idempotent Begin
	// re-arms the durability the next commit runs with
	w.dur = cmd.dur
	if w.tx != nil {
		cmd.ackErr <- nil
		return
	}
	tx, err := w.db.Begin(true)
	if err != nil {
		w.err = err
		cmd.ackErr <- wrap(KindTransaction, "begin", w.name, err)
		return
	}
	if err := w.ops.init(tx); err != nil {
		_ = tx.Rollback()
		w.err = err
		cmd.ackErr <- wrap(KindTable, "create bucket", w.name, err)
		return
	}
	w.tx = tx
	w.err = nil
	cmd.ackErr <- nil
}

func (w *TableWriter) handleInsert(e kv) {
	if w.err != nil || w.tx == nil {
		return
	}
	if err := w.ops.insert(w.tx, e.k, e.v); err != nil {
		w.err = wrap(KindTable, "insert", w.name, err)
	}
}

func (w *TableWriter) handleRemove(cmd command) {
	if w.err != nil || w.tx == nil {
		cmd.ackBool <- boolErr{false, w.errOrShutdown()}
		return
	}
	ok, err := w.ops.remove(w.tx, cmd.key)
	if err != nil {
		w.err = wrap(KindTable, "remove", w.name, err)
		cmd.ackBool <- boolErr{false, w.err}
		return
	}
	cmd.ackBool <- boolErr{ok, nil}
}

func (w *TableWriter) handleQueryHead(cmd command) {
	if w.tx == nil {
		cmd.ackHead <- headResult{nil, false, w.errOrShutdown()}
		return
	}
	k, found, err := w.ops.head(w.tx, cmd.value)
	if err != nil {
		cmd.ackHead <- headResult{nil, false, wrap(KindTable, "query head", w.name, err)}
		return
	}
	cmd.ackHead <- headResult{k, found, nil}
}

// handleQueryHeadMany resolves every value against the writer's current
// transaction in one command, so a sharded fan-out pays one
// command-queue round trip per shard instead of one per item.
func (w *TableWriter) handleQueryHeadMany(cmd command) {
	results := make([]headResult, len(cmd.manyValues))
	if w.tx == nil {
		err := w.errOrShutdown()
		for i := range results {
			results[i] = headResult{nil, false, err}
		}
		cmd.ackHeadMany <- results
		return
	}
	for i, v := range cmd.manyValues {
		k, found, err := w.ops.head(w.tx, v)
		if err != nil {
			results[i] = headResult{nil, false, wrap(KindTable, "query head", w.name, err)}
			continue
		}
		results[i] = headResult{k, found, nil}
	}
	cmd.ackHeadMany <- results
}

func (w *TableWriter) handleGetKeys(cmd command) {
	if w.tx == nil {
		cmd.ackKeys <- keysResult{nil, w.errOrShutdown()}
		return
	}
	ks, err := w.ops.keys(w.tx, cmd.value)
	if err != nil {
		cmd.ackKeys <- keysResult{nil, wrap(KindTable, "get keys", w.name, err)}
		return
	}
	cmd.ackKeys <- keysResult{ks, nil}
}

// handleQueryAndWrite runs a read-then-write closure against the writer's
// transaction in one command-queue round trip. When isLast marks the final
// chunk of a derived-column batch, the transaction is committed and
// reopened before acknowledging, so a dependent closure issued next sees
// every row this one produced.
func (w *TableWriter) handleQueryAndWrite(cmd command) {
	if w.err != nil || w.tx == nil {
		cmd.ackErr <- w.errOrShutdown()
		return
	}
	if err := cmd.fnInputs(w.tx, cmd.manyValues); err != nil {
		w.err = wrap(KindTable, "query and write", w.name, err)
		cmd.ackErr <- w.err
		return
	}
	if cmd.isLast {
		cmd.ackErr <- w.commitAndReopen("sub-flush")
		return
	}
	cmd.ackErr <- nil
}

func (w *TableWriter) handleExec(cmd command) {
	if w.err != nil || w.tx == nil {
		cmd.ackErr <- w.errOrShutdown()
		return
	}
	if err := cmd.fn(w.tx); err != nil {
		w.err = wrap(KindTable, "exec", w.name, err)
	}
	cmd.ackErr <- w.err
}

func (w *TableWriter) handleFlush(cmd command) {
	start := time.Now()
	if w.err != nil {
		err := w.err
		w.err = nil
		if w.tx != nil {
			_ = w.tx.Rollback()
			w.tx = nil
		}
		cmd.ackErr <- err
		return
	}
	if w.tx == nil {
		cmd.ackErr <- nil
		return
	}
	err := w.commitAndReopen("flush")
	metrics.TableWriterFlushDuration.WithLabelValues(w.name).Observe(time.Since(start).Seconds())
	cmd.ackErr <- err
}

// commitAndReopen commits the current transaction with the durability
// last requested via Begin and opens a fresh one, so the writer always
// owns exactly one outstanding tx.
func (w *TableWriter) commitAndReopen(op string) error {
	w.db.NoSync = w.dur.noSync()
	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		logger := log.WithTable(w.name)
		logger.Error().Err(err).Msg("commit failed")
		return wrap(KindCommit, op, w.name, err)
	}
	tx, err := w.db.Begin(true)
	if err != nil {
		return wrap(KindTransaction, "reopen after "+op, w.name, err)
	}
	w.tx = tx
	return nil
}

func (w *TableWriter) handleStop(cmd command) {
	if w.tx != nil {
		// a batch that already failed must not be half-committed on the way out
		if w.err != nil {
			_ = w.tx.Rollback()
			w.tx = nil
			cmd.ackErr <- w.err
			return
		}
		// the exit commit always syncs regardless of the armed durability
		w.db.NoSync = false
		err := w.tx.Commit()
		w.tx = nil
		if err != nil {
			cmd.ackErr <- wrap(KindCommit, "stop", w.name, err)
			return
		}
	}
	cmd.ackErr <- nil
}

func (w *TableWriter) errOrShutdown() error {
	if w.err != nil {
		return w.err
	}
	return ErrShutdown
}

// Begin opens (or reuses) the writer's transaction with the given
// durability. On an already-open transaction it only re-arms the
// durability the next commit runs with.
func (w *TableWriter) Begin(dur Durability) error {
	ack := make(chan error, 1)
	w.cmds <- command{kind: cmdBegin, dur: dur, ackErr: ack}
	return <-ack
}

// InsertOne queues a single key/value insert.
func (w *TableWriter) InsertOne(k, v []byte) {
	w.cmds <- command{kind: cmdInsertOne, one: kv{k, v}}
}

// InsertMany queues a batch of key/value inserts, applied in order.
func (w *TableWriter) InsertMany(kvs []kv) {
	w.cmds <- command{kind: cmdInsertMany, many: kvs}
}

// Remove queues a delete and reports whether the key existed.
func (w *TableWriter) Remove(k []byte) (bool, error) {
	ack := make(chan boolErr, 1)
	w.cmds <- command{kind: cmdRemove, key: k, ackBool: ack}
	r := <-ack
	return r.ok, r.err
}

// QueryHead returns the smallest key currently mapped to value, for index
// and dict writers.
func (w *TableWriter) QueryHead(value []byte) ([]byte, bool, error) {
	ack := make(chan headResult, 1)
	w.cmds <- command{kind: cmdQueryHead, value: value, ackHead: ack}
	r := <-ack
	return r.key, r.found, r.err
}

// QueryHeadMany resolves QueryHead for every value in one command, so a
// batch of lookups destined for the same shard costs one command-queue
// round trip rather than one per value.
func (w *TableWriter) QueryHeadMany(values [][]byte) ([]headResult, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ack := make(chan []headResult, 1)
	w.cmds <- command{kind: cmdQueryHeadMany, manyValues: values, ackHeadMany: ack}
	results := <-ack
	for _, r := range results {
		if r.err != nil {
			return results, r.err
		}
	}
	return results, nil
}

// GetKeys returns every key currently mapped to value, for index and dict
// writers.
func (w *TableWriter) GetKeys(value []byte) ([][]byte, error) {
	ack := make(chan keysResult, 1)
	w.cmds <- command{kind: cmdGetKeys, value: value, ackKeys: ack}
	r := <-ack
	return r.keys, r.err
}

// QueryAndWrite reads-then-writes a batch of inputs in one round trip on
// the writer's goroutine; write_from hooks of transient/derived columns
// use it to resolve references before inserting. isLast marks the final
// chunk, triggering an immediate sub-flush so a dependent closure run
// afterwards observes every row this batch produced.
func (w *TableWriter) QueryAndWrite(inputs [][]byte, isLast bool, fn func(tx *bolt.Tx, inputs [][]byte) error) error {
	ack := make(chan error, 1)
	w.cmds <- command{kind: cmdQueryAndWrite, manyValues: inputs, isLast: isLast, fnInputs: fn, ackErr: ack}
	return <-ack
}

// Exec runs fn against the writer's current transaction on the writer's own
// goroutine, for whole-transaction reads and maintenance the per-key
// commands don't cover.
func (w *TableWriter) Exec(fn func(tx *bolt.Tx) error) error {
	ack := make(chan error, 1)
	w.cmds <- command{kind: cmdExec, fn: fn, ackErr: ack}
	return <-ack
}

// Flush commits the current transaction and reopens a fresh one.
func (w *TableWriter) Flush() error {
	ack := make(chan error, 1)
	w.cmds <- command{kind: cmdFlush, ackErr: ack}
	return <-ack
}

// Stop commits any open transaction and terminates the writer goroutine.
func (w *TableWriter) Stop() error {
	ack := make(chan error, 1)
	w.cmds <- command{kind: cmdStop, ackErr: ack}
	err := <-ack
	close(w.cmds)
	<-w.done
	return err
}
