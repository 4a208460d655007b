package demo

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/internal/chainsync"
	"github.com/pragmaxim-com/redbit-sub001/internal/schema"
	"github.com/pragmaxim-com/redbit-sub001/internal/storage"
)

const entityName = "demo"
const headersBucketName = entityName + "_headers"

// EntitySpec describes the demo chain's single persisted column, a
// plain height→header table, as data rather than hardcoding a
// TableWriter. A real chain integration registers one EntitySpec per
// indexed entity (Block, Transaction, Utxo...) the same way.
func EntitySpec() *schema.EntitySpec {
	return &schema.EntitySpec{
		Name: entityName,
		Columns: []schema.ColumnSpec{
			{Name: "headers", Kind: schema.ColumnPlain, CacheWeight: 1},
		},
	}
}

// headerRecord is the bbolt-persisted form of a Block.
type headerRecord struct {
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
	TxCount  int    `json:"tx_count"`
}

// Chain implements chainsync.BlockChain[Block] over the TableWriter
// EntitySpec()'s "headers" column resolves to, keyed by
// storage.RootPointer(height). provider supplies the canonical hash chain
// ValidateChain compares stored headers against, standing in for the
// remote-node recheck a real chain integration would perform through its
// own client.
type Chain struct {
	writer   *storage.TableWriter
	wctx     *storage.EntityWriteContext
	provider *Provider
}

// NewChain builds a Chain by walking EntitySpec() against dbs, keyed the
// same way storage.Storage.DBs keys its opened files
// ("<entity>_<column>", here "demo_headers").
func NewChain(dbs map[string]*bolt.DB, provider *Provider) (*Chain, error) {
	wctx, err := storage.BuildEntityWriteContext(EntitySpec(), dbs)
	if err != nil {
		return nil, err
	}
	writer, ok := wctx.Writers[0].(*storage.TableWriter)
	if !ok {
		return nil, fmt.Errorf("demo: headers column did not resolve to a plain TableWriter")
	}
	return &Chain{writer: writer, wctx: wctx, provider: provider}, nil
}

// WriteContext exposes the schema-built EntityWriteContext so callers can
// drive begin/two-phase-commit/stop across it.
func (c *Chain) WriteContext() *storage.EntityWriteContext { return c.wctx }

// Init ensures the headers bucket exists before first use.
func (c *Chain) Init(ctx context.Context) error {
	if err := c.writer.Begin(storage.DurabilityImmediate); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Delete drops every stored row, leaving an empty but initialized chain.
// The containing database file is never removed; re-indexing from scratch
// starts with the next sync session.
func (c *Chain) Delete(ctx context.Context) error {
	if err := c.writer.Begin(storage.DurabilityImmediate); err != nil {
		return err
	}
	if err := c.writer.Exec(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(headersBucketName)) == nil {
			return nil
		}
		if err := tx.DeleteBucket([]byte(headersBucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(headersBucketName))
		return err
	}); err != nil {
		return err
	}
	return c.writer.Flush()
}

// GetLastHeader returns the highest stored height, or !found on an empty
// chain.
func (c *Chain) GetLastHeader(ctx context.Context) (chainsync.Header, bool, error) {
	var hdr chainsync.Header
	found := false
	err := c.writer.Exec(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(headersBucketName))
		if b == nil {
			return nil
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		var rec headerRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return &storage.Error{Kind: storage.KindSerde, Op: "decode header", Table: headersBucketName, Err: err}
		}
		hdr = chainsync.Header{Height: storage.Pointer(k).Height(), Hash: rec.Hash}
		found = true
		return nil
	})
	return hdr, found, err
}

// GetHeaderByHash scans the stored chain for a header with the given
// hash. A real chain integration would index this; the demo chain's
// heights are small enough that a linear scan is adequate.
func (c *Chain) GetHeaderByHash(ctx context.Context, hash string) (chainsync.Header, bool, error) {
	var hdr chainsync.Header
	found := false
	err := c.writer.Exec(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(headersBucketName))
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var rec headerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return &storage.Error{Kind: storage.KindSerde, Op: "decode header", Table: headersBucketName, Err: err}
			}
			if rec.Hash == hash {
				hdr = chainsync.Header{Height: storage.Pointer(k).Height(), Hash: rec.Hash}
				found = true
				return nil
			}
		}
		return nil
	})
	return hdr, found, err
}

// StoreBlocks inserts blocks into the current transaction and commits it
// with dur before returning: DurabilityNone defers the fsync so
// intermediate batches stay cheap, anything else is a durable checkpoint.
func (c *Chain) StoreBlocks(ctx context.Context, wctx *storage.EntityWriteContext, blocks []Block, dur storage.Durability) (chainsync.TaskSummary, error) {
	if len(blocks) == 0 {
		return chainsync.TaskSummary{}, nil
	}
	for _, b := range blocks {
		data, err := json.Marshal(headerRecord{Hash: b.Hash, PrevHash: b.PrevHash, TxCount: b.TxCount})
		if err != nil {
			return chainsync.TaskSummary{}, err
		}
		c.writer.InsertOne(storage.RootPointer(b.BlockHeight), data)
	}
	if err := wctx.TwoPhaseCommit(dur); err != nil {
		return chainsync.TaskSummary{}, err
	}
	return chainsync.TaskSummary{
		Count:      len(blocks),
		FromHeight: blocks[0].BlockHeight,
		ToHeight:   blocks[len(blocks)-1].BlockHeight,
	}, nil
}

// UpdateBlocks replaces the stored rows for each block's height with the
// re-fetched version, then durably commits. Used only by fork recovery:
// the caller has already called wctx.Begin before invoking this.
func (c *Chain) UpdateBlocks(ctx context.Context, wctx *storage.EntityWriteContext, blocks []Block) error {
	for _, b := range blocks {
		key := storage.RootPointer(b.BlockHeight)
		if _, err := c.writer.Remove(key); err != nil {
			return err
		}
		data, err := json.Marshal(headerRecord{Hash: b.Hash, PrevHash: b.PrevHash, TxCount: b.TxCount})
		if err != nil {
			return err
		}
		c.writer.InsertOne(key, data)
	}
	return wctx.TwoPhaseCommit(storage.DurabilityImmediate)
}

// ValidateChain compares every stored header from fromHeight onward
// against the provider's current canonical hash chain. The first height
// whose stored hash no longer matches marks the start of an orphaned
// range; everything stored from that height on is returned for
// re-indexing, since a hash fork invalidates every descendant.
func (c *Chain) ValidateChain(ctx context.Context, fromHeight uint64) ([]chainsync.Header, error) {
	type stored struct {
		height uint64
		rec    headerRecord
	}
	var all []stored
	err := c.writer.Exec(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(headersBucketName))
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		for k, v := cur.Seek(storage.RootPointer(fromHeight)); k != nil; k, v = cur.Next() {
			var rec headerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return &storage.Error{Kind: storage.KindSerde, Op: "decode header", Table: headersBucketName, Err: err}
			}
			all = append(all, stored{height: storage.Pointer(k).Height(), rec: rec})
		}
		return nil
	})
	if err != nil || len(all) == 0 {
		return nil, err
	}

	canonical := c.provider.chainHashes(all[len(all)-1].height)
	var orphaned []chainsync.Header
	for _, s := range all {
		if s.rec.Hash != canonical[s.height] {
			for _, rest := range all {
				if rest.height >= s.height {
					orphaned = append(orphaned, chainsync.Header{Height: rest.height, Hash: rest.rec.Hash})
				}
			}
			break
		}
	}
	return orphaned, nil
}
