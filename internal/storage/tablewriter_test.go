package storage

import (
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestTableWriterQueryHeadManyResolvesEachValueInOrder(t *testing.T) {
	db := openTestDB(t)
	w := NewTableWriter("idx", db, newIndexOps("idx"))
	t.Cleanup(func() { _ = w.Stop() })

	if err := w.Begin(DurabilityImmediate); err != nil {
		t.Fatalf("begin: %v", err)
	}
	w.InsertOne([]byte{1}, []byte("alpha"))
	w.InsertOne([]byte{2}, []byte("beta"))
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	results, err := w.QueryHeadMany([][]byte{[]byte("beta"), []byte("missing"), []byte("alpha")})
	if err != nil {
		t.Fatalf("query head many: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].found || results[0].key[0] != 2 {
		t.Fatalf("expected beta -> key 2, got %+v", results[0])
	}
	if results[1].found {
		t.Fatalf("expected missing value not found, got %+v", results[1])
	}
	if !results[2].found || results[2].key[0] != 1 {
		t.Fatalf("expected alpha -> key 1, got %+v", results[2])
	}
}

func TestTableWriterQueryHeadManyEmptyInputReturnsNil(t *testing.T) {
	db := openTestDB(t)
	w := NewTableWriter("idx", db, newIndexOps("idx"))
	t.Cleanup(func() { _ = w.Stop() })

	if err := w.Begin(DurabilityImmediate); err != nil {
		t.Fatalf("begin: %v", err)
	}
	results, err := w.QueryHeadMany(nil)
	if err != nil {
		t.Fatalf("query head many: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for empty input, got %+v", results)
	}
}

func TestTableWriterDurabilityArmsEachCommit(t *testing.T) {
	db := openTestDB(t)
	w := NewTableWriter("t", db, newPlainOps("t"))
	t.Cleanup(func() { _ = w.Stop() })

	if err := w.Begin(DurabilityImmediate); err != nil {
		t.Fatalf("begin: %v", err)
	}
	w.InsertOne([]byte("a"), []byte("1"))
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if db.NoSync {
		t.Fatal("expected an immediate flush to commit with NoSync off")
	}

	// re-arming durability on the already-open transaction must take
	// effect at its commit, not one batch late
	if err := w.Begin(DurabilityNone); err != nil {
		t.Fatalf("begin: %v", err)
	}
	w.InsertOne([]byte("b"), []byte("2"))
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !db.NoSync {
		t.Fatal("expected a non-durable flush to commit with NoSync on")
	}

	if err := w.Begin(DurabilityImmediate); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if db.NoSync {
		t.Fatal("expected the durable upgrade to commit with NoSync off again")
	}
}

func TestTableWriterGetKeysReturnsAllKeysForValue(t *testing.T) {
	db := openTestDB(t)
	w := NewTableWriter("idx", db, newIndexOps("idx"))
	t.Cleanup(func() { _ = w.Stop() })

	if err := w.Begin(DurabilityImmediate); err != nil {
		t.Fatalf("begin: %v", err)
	}
	w.InsertOne([]byte{1}, []byte("alpha"))
	w.InsertOne([]byte{2}, []byte("alpha"))
	w.InsertOne([]byte{3}, []byte("beta"))

	keys, err := w.GetKeys([]byte("alpha"))
	if err != nil {
		t.Fatalf("get keys: %v", err)
	}
	if len(keys) != 2 || keys[0][0] != 1 || keys[1][0] != 2 {
		t.Fatalf("expected keys [1 2] for alpha, got %v", keys)
	}
	keys, err = w.GetKeys([]byte("missing"))
	if err != nil {
		t.Fatalf("get keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys for missing value, got %v", keys)
	}
}

func TestTableWriterQueryAndWriteSeesPriorInsertsAndSubFlushes(t *testing.T) {
	db := openTestDB(t)
	w := NewTableWriter("t", db, newPlainOps("t"))
	t.Cleanup(func() { _ = w.Stop() })

	if err := w.Begin(DurabilityImmediate); err != nil {
		t.Fatalf("begin: %v", err)
	}
	w.InsertOne([]byte("src"), []byte("payload"))

	// The closure must observe the uncommitted insert queued before it and
	// write a derived row in the same round trip.
	inputs := [][]byte{[]byte("src")}
	err := w.QueryAndWrite(inputs, true, func(tx *bolt.Tx, inputs [][]byte) error {
		b := tx.Bucket([]byte("t"))
		for _, in := range inputs {
			v := b.Get(in)
			if v == nil {
				t.Errorf("expected closure to see uncommitted row for %q", in)
				continue
			}
			if err := b.Put(append([]byte("derived_"), in...), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("query and write: %v", err)
	}

	// isLast triggered a sub-flush: both rows must be visible to a fresh
	// read transaction without any explicit Flush.
	db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte("t"))
		if b.Get([]byte("src")) == nil {
			t.Error("expected src row committed by sub-flush")
		}
		if string(b.Get([]byte("derived_src"))) != "payload" {
			t.Error("expected derived row committed by sub-flush")
		}
		return nil
	})
}
