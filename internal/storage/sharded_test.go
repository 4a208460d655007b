package storage

import "testing"

func newShardedPlainWriters(t *testing.T, n int, table string) []*TableWriter {
	t.Helper()
	writers := make([]*TableWriter, n)
	for i := 0; i < n; i++ {
		db := openTestDB(t)
		writers[i] = NewTableWriter(table, db, newPlainOps(table))
		if err := writers[i].Begin(DurabilityImmediate); err != nil {
			t.Fatalf("begin shard %d: %v", i, err)
		}
	}
	t.Cleanup(func() {
		for _, w := range writers {
			_ = w.Stop()
		}
	})
	return writers
}

func TestShardedWriterRequiresAtLeastTwoShards(t *testing.T) {
	writers := newShardedPlainWriters(t, 1, "t")
	if _, err := NewShardedWriter(writers, PartitionByKey); err == nil {
		t.Fatal("expected error constructing a single-shard sharded writer")
	}
}

func TestShardedWriterByKeyRoutesConsistently(t *testing.T) {
	writers := newShardedPlainWriters(t, 3, "t")
	sw, err := NewShardedWriter(writers, PartitionByKey)
	if err != nil {
		t.Fatalf("new sharded writer: %v", err)
	}

	for i := 0; i < 20; i++ {
		k := []byte{byte(i)}
		sw.InsertOne(k, []byte("v"))
	}
	if err := sw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	for i := 0; i < 20; i++ {
		k := []byte{byte(i)}
		ok, err := sw.Remove(k)
		if err != nil || !ok {
			t.Fatalf("remove key %d: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestShardedWriterByValueGetHeadForIndexStitchesOrder(t *testing.T) {
	writers := newShardedPlainWriters(t, 3, "idx")
	// plain table has no reverse index, so exercise routing/stitching using
	// index-table shards instead.
	for _, w := range writers {
		_ = w.Stop()
	}

	idxWriters := make([]*TableWriter, 3)
	for i := range idxWriters {
		db := openTestDB(t)
		idxWriters[i] = NewTableWriter("idx", db, newIndexOps("idx"))
		if err := idxWriters[i].Begin(DurabilityImmediate); err != nil {
			t.Fatalf("begin: %v", err)
		}
	}
	t.Cleanup(func() {
		for _, w := range idxWriters {
			_ = w.Stop()
		}
	})

	sw, err := NewShardedWriter(idxWriters, PartitionByValue)
	if err != nil {
		t.Fatalf("new sharded writer: %v", err)
	}

	values := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	for i, v := range values {
		sw.InsertOne([]byte{byte(i)}, v)
	}
	if err := sw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	queries := [][]byte{[]byte("gamma"), []byte("missing"), []byte("alpha")}
	heads, err := sw.GetHeadForIndex(queries)
	if err != nil {
		t.Fatalf("get head for index: %v", err)
	}
	if string(heads[0]) != string([]byte{2}) {
		t.Fatalf("expected head for gamma to be key 2, got %v", heads[0])
	}
	if heads[1] != nil {
		t.Fatalf("expected no head for missing value, got %v", heads[1])
	}
	if string(heads[2]) != string([]byte{0}) {
		t.Fatalf("expected head for alpha to be key 0, got %v", heads[2])
	}
}

func TestShardedWriterGetKeysRoutesByValue(t *testing.T) {
	idxWriters := make([]*TableWriter, 3)
	for i := range idxWriters {
		db := openTestDB(t)
		idxWriters[i] = NewTableWriter("idx", db, newIndexOps("idx"))
		if err := idxWriters[i].Begin(DurabilityImmediate); err != nil {
			t.Fatalf("begin: %v", err)
		}
	}
	t.Cleanup(func() {
		for _, w := range idxWriters {
			_ = w.Stop()
		}
	})

	sw, err := NewShardedWriter(idxWriters, PartitionByValue)
	if err != nil {
		t.Fatalf("new sharded writer: %v", err)
	}

	// All rows sharing a value land on one shard, so GetKeys finds them all
	// through a single shard's query.
	sw.InsertOne([]byte{1}, []byte("alpha"))
	sw.InsertOne([]byte{2}, []byte("alpha"))
	sw.InsertOne([]byte{3}, []byte("beta"))
	if err := sw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	keys, err := sw.GetKeys([]byte("alpha"))
	if err != nil {
		t.Fatalf("get keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys for alpha, got %v", keys)
	}
	if keys, err := sw.GetKeys([]byte("missing")); err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys for missing value, got %v (err %v)", keys, err)
	}
}
