package storage

import (
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/internal/schema"
)

func TestBuildEntityWriteContextWalksColumnsAndChildren(t *testing.T) {
	spec := &schema.EntitySpec{
		Name: "block",
		Columns: []schema.ColumnSpec{
			{Name: "header", Kind: schema.ColumnPlain},
			{Name: "derived", Kind: schema.ColumnTransient},
		},
		Relationships: []schema.RelationshipSpec{
			{
				Name: "txs",
				Kind: schema.OneToMany,
				Child: &schema.EntitySpec{
					Name: "block_tx",
					Columns: []schema.ColumnSpec{
						{Name: "hash", Kind: schema.ColumnDict, LRUSize: 16},
					},
				},
			},
		},
	}

	dbs := map[string]*bolt.DB{
		"block_header":  openTestDB(t),
		"block_tx_hash": openTestDB(t),
	}

	wctx, err := BuildEntityWriteContext(spec, dbs)
	if err != nil {
		t.Fatalf("build entity write context: %v", err)
	}
	if len(wctx.Writers) != 1 {
		t.Fatalf("expected transient column to be skipped, got %d writers", len(wctx.Writers))
	}
	if _, ok := wctx.Writers[0].(*TableWriter); !ok {
		t.Fatalf("expected plain column to resolve to a *TableWriter")
	}
	if len(wctx.Children) != 1 {
		t.Fatalf("expected one child context for the txs relationship, got %d", len(wctx.Children))
	}
	if wctx.Children[0].Name != "block_tx" {
		t.Fatalf("expected child context named block_tx, got %q", wctx.Children[0].Name)
	}

	if err := wctx.Begin(DurabilityImmediate); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := wctx.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestBuildEntityWriteContextErrorsOnMissingDB(t *testing.T) {
	spec := &schema.EntitySpec{
		Name: "block",
		Columns: []schema.ColumnSpec{
			{Name: "header", Kind: schema.ColumnPlain},
		},
	}
	if _, err := BuildEntityWriteContext(spec, map[string]*bolt.DB{}); err == nil {
		t.Fatal("expected an error when no db is registered for a column's bucket")
	}
}

func TestBuildEntityWriteContextRejectsDuplicateBucketNames(t *testing.T) {
	spec := &schema.EntitySpec{
		Name: "block",
		Columns: []schema.ColumnSpec{
			{Name: "header", Kind: schema.ColumnPlain},
		},
		Relationships: []schema.RelationshipSpec{
			{
				Name: "dup",
				Kind: schema.OneToOne,
				Child: &schema.EntitySpec{
					Name: "block",
					Columns: []schema.ColumnSpec{
						{Name: "header", Kind: schema.ColumnPlain},
					},
				},
			},
		},
	}
	if _, err := BuildEntityWriteContext(spec, map[string]*bolt.DB{}); err == nil {
		t.Fatal("expected an error for a schema with two columns resolving to the same bucket")
	}
}

func TestBuildEntityWriteContextWiresShardedColumn(t *testing.T) {
	spec := &schema.EntitySpec{
		Name: "utxo",
		Columns: []schema.ColumnSpec{
			{Name: "address", Kind: schema.ColumnDict, Shards: 2, Partitioning: schema.PartitionByValue, LRUSize: 8},
		},
	}
	dbs := map[string]*bolt.DB{
		"utxo_address_0": openTestDB(t),
		"utxo_address_1": openTestDB(t),
	}

	wctx, err := BuildEntityWriteContext(spec, dbs)
	if err != nil {
		t.Fatalf("build entity write context: %v", err)
	}
	if _, ok := wctx.Writers[0].(*ShardedWriter); !ok {
		t.Fatalf("expected a 2-shard column to resolve to a *ShardedWriter")
	}
}
