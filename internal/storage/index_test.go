package storage

import (
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestIndexTableHeadAndReverseMultimap(t *testing.T) {
	db := openTestDB(t)
	ops := newIndexOps("script")

	err := db.Update(func(tx *bolt.Tx) error {
		if err := ops.init(tx); err != nil {
			return err
		}
		if err := ops.insert(tx, []byte{1}, []byte("hash-a")); err != nil {
			return err
		}
		return ops.insert(tx, []byte{2}, []byte("hash-a"))
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	db.View(func(tx *bolt.Tx) error {
		k, found, err := ops.head(tx, []byte("hash-a"))
		if err != nil || !found || k[0] != 1 {
			t.Fatalf("head = %v found=%v err=%v, want key 1", k, found, err)
		}
		return nil
	})

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := ops.remove(tx, []byte{1})
		return err
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	db.View(func(tx *bolt.Tx) error {
		k, found, err := ops.head(tx, []byte("hash-a"))
		if err != nil || !found || k[0] != 2 {
			t.Fatalf("head after remove = %v found=%v err=%v, want key 2", k, found, err)
		}
		return nil
	})
}
