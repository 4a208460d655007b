package demo

import (
	"context"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/internal/chainsync"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestSyncer(t *testing.T, db *bolt.DB, tip uint64) (*chainsync.Syncer[RawBlock, Block], *Chain) {
	t.Helper()
	provider := &Provider{TipHeight: tip}
	chain, err := NewChain(map[string]*bolt.DB{headersBucketName: db}, provider)
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}
	if err := chain.Init(context.Background()); err != nil {
		t.Fatalf("init chain: %v", err)
	}
	wctx := chain.WriteContext()

	cfg := chainsync.Config{
		Entity:                "demo",
		ForkDetectionHeights:  10,
		BatchingModeLagBlocks: 5,
		ProcessingParallelism: 2,
		FetchingParallelism:   4,
		MinEntityBatchSize:    8,
		NonDurableBatches:     2,
		MaxEntityBufferKBSize: 256,
		SoftBufferHint:        16,
	}
	return chainsync.New[RawBlock, Block](cfg, provider, chain, wctx), chain
}

func TestSyncFromGenesisToTip(t *testing.T) {
	db := openTestDB(t)
	syncer, chain := newTestSyncer(t, db, 50)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	hdr, found, err := chain.GetLastHeader(context.Background())
	if err != nil {
		t.Fatalf("get last header: %v", err)
	}
	if !found {
		t.Fatalf("expected a stored header after sync")
	}
	if hdr.Height != 50 {
		t.Fatalf("expected height 50, got %d", hdr.Height)
	}
}

func TestSecondSyncNearTipIsNoOp(t *testing.T) {
	db := openTestDB(t)
	syncer, chain := newTestSyncer(t, db, 50)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	before, _, err := chain.GetLastHeader(context.Background())
	if err != nil {
		t.Fatalf("get last header: %v", err)
	}

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	after, _, err := chain.GetLastHeader(context.Background())
	if err != nil {
		t.Fatalf("get last header: %v", err)
	}
	if before != after {
		t.Fatalf("expected second sync to be a no-op, got %+v -> %+v", before, after)
	}
}

func TestForkDetectionReindexesOrphanedRange(t *testing.T) {
	db := openTestDB(t)
	syncer, chain := newTestSyncer(t, db, 30)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	// The remote reorgs at height 25: a competing block wins there, so
	// every descendant hash changes with it, and the chain grows to 40.
	forked := &Provider{TipHeight: 40, ForkHeight: 25, ForkSeed: "uncle"}
	chain.provider = forked
	cfg := chainsync.Config{
		Entity:                "demo",
		ForkDetectionHeights:  10,
		BatchingModeLagBlocks: 5,
		ProcessingParallelism: 2,
		FetchingParallelism:   4,
		MinEntityBatchSize:    8,
		NonDurableBatches:     2,
		MaxEntityBufferKBSize: 256,
		SoftBufferHint:        16,
	}
	resync := chainsync.New[RawBlock, Block](cfg, forked, chain, chain.WriteContext())

	if err := resync.Sync(context.Background()); err != nil {
		t.Fatalf("resync after fork: %v", err)
	}

	hdr, found, err := chain.GetLastHeader(context.Background())
	if err != nil || !found {
		t.Fatalf("get last header: found=%v err=%v", found, err)
	}
	if hdr.Height != 40 {
		t.Fatalf("expected height 40 after fork resync, got %d", hdr.Height)
	}

	// Every stored header must now sit on the forked canonical chain.
	orphaned, err := chain.ValidateChain(context.Background(), 0)
	if err != nil {
		t.Fatalf("validate chain: %v", err)
	}
	if len(orphaned) != 0 {
		t.Fatalf("expected no orphaned headers after resync, got %d", len(orphaned))
	}
	canonical := forked.chainHashes(40)
	forkHdr, found, err := chain.GetHeaderByHash(context.Background(), canonical[25])
	if err != nil || !found {
		t.Fatalf("expected forked header at height 25 to be stored, found=%v err=%v", found, err)
	}
	if forkHdr.Height != 25 {
		t.Fatalf("expected forked hash at height 25, got %d", forkHdr.Height)
	}
}

func TestDeleteClearsStoredChain(t *testing.T) {
	db := openTestDB(t)
	syncer, chain := newTestSyncer(t, db, 20)

	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := chain.Delete(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, found, err := chain.GetLastHeader(context.Background())
	if err != nil {
		t.Fatalf("get last header: %v", err)
	}
	if found {
		t.Fatal("expected no stored header after delete")
	}

	// A fresh session re-indexes from genesis.
	if err := syncer.Sync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	hdr, found, err := chain.GetLastHeader(context.Background())
	if err != nil || !found {
		t.Fatalf("get last header after resync: found=%v err=%v", found, err)
	}
	if hdr.Height != 20 {
		t.Fatalf("expected height 20 after resync, got %d", hdr.Height)
	}
}

func TestGetProcessedBlockResolvesCanonicalHashesOnly(t *testing.T) {
	p := &Provider{TipHeight: 10}
	tip, err := p.GetChainTip(context.Background())
	if err != nil {
		t.Fatalf("get chain tip: %v", err)
	}

	b, found, err := p.GetProcessedBlock(context.Background(), tip.Hash)
	if err != nil || !found {
		t.Fatalf("expected tip hash to resolve, found=%v err=%v", found, err)
	}
	if b.BlockHeight != 10 {
		t.Fatalf("expected height 10, got %d", b.BlockHeight)
	}

	if _, found, _ := p.GetProcessedBlock(context.Background(), "no-such-hash"); found {
		t.Fatal("expected unknown hash to not resolve")
	}
}
