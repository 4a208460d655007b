package storage

import bolt "go.etcd.io/bbolt"

// indexOps implements a key → value table plus its inverse value → {keys}
// multimap. The multimap is stored as one nested bucket per distinct
// value, whose member keys carry an empty value.
type indexOps struct {
	fwd []byte // key -> value
	inv []byte // value -> nested bucket of keys
}

func newIndexOps(name string) *indexOps {
	return &indexOps{fwd: []byte(name), inv: []byte(name + "__inv")}
}

// NewIndexTableWriter builds a TableWriter over a key→value layout plus
// its inverse value→{keys} multimap, for columns that need head(value)
// lookups (e.g. the first height a given address appeared at).
func NewIndexTableWriter(name string, db *bolt.DB) *TableWriter {
	return NewTableWriter(name, db, newIndexOps(name))
}

func (x *indexOps) init(tx *bolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(x.fwd); err != nil {
		return err
	}
	_, err := tx.CreateBucketIfNotExists(x.inv)
	return err
}

func (x *indexOps) insert(tx *bolt.Tx, k, v []byte) error {
	fwd := tx.Bucket(x.fwd)
	if old := fwd.Get(k); old != nil {
		if err := x.removeFromInverse(tx, old, k); err != nil {
			return err
		}
	}
	if err := fwd.Put(k, v); err != nil {
		return err
	}
	return x.addToInverse(tx, v, k)
}

func (x *indexOps) remove(tx *bolt.Tx, k []byte) (bool, error) {
	fwd := tx.Bucket(x.fwd)
	v := fwd.Get(k)
	if v == nil {
		return false, nil
	}
	if err := x.removeFromInverse(tx, v, k); err != nil {
		return false, err
	}
	return true, fwd.Delete(k)
}

func (x *indexOps) head(tx *bolt.Tx, v []byte) ([]byte, bool, error) {
	inv := tx.Bucket(x.inv)
	sub := inv.Bucket(v)
	if sub == nil {
		return nil, false, nil
	}
	k, _ := sub.Cursor().First()
	if k == nil {
		return nil, false, nil
	}
	return append([]byte{}, k...), true, nil
}

// keys returns every key currently mapped to value.
func (x *indexOps) keys(tx *bolt.Tx, v []byte) ([][]byte, error) {
	inv := tx.Bucket(x.inv)
	sub := inv.Bucket(v)
	if sub == nil {
		return nil, nil
	}
	var out [][]byte
	c := sub.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		out = append(out, append([]byte{}, k...))
	}
	return out, nil
}

func (x *indexOps) addToInverse(tx *bolt.Tx, v, k []byte) error {
	inv := tx.Bucket(x.inv)
	sub, err := inv.CreateBucketIfNotExists(v)
	if err != nil {
		return err
	}
	return sub.Put(k, []byte{})
}

func (x *indexOps) removeFromInverse(tx *bolt.Tx, v, k []byte) error {
	inv := tx.Bucket(x.inv)
	sub := inv.Bucket(v)
	if sub == nil {
		return nil
	}
	if err := sub.Delete(k); err != nil {
		return err
	}
	// Stats().KeyN reads committed pages only; a cursor sees this tx's deletes.
	if first, _ := sub.Cursor().First(); first == nil {
		return inv.DeleteBucket(v)
	}
	return nil
}
