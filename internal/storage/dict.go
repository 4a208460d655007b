package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/pragmaxim-com/redbit-sub001/pkg/metrics"
)

// dictOps implements the four-table dictionary layout: key → dictId,
// dictId → value, value → dictId, dictId → {keys}, plus an LRU cache of
// value-bytes → dictId-bytes. A new value's dictId is the primary key of
// the row that first introduced it.
type dictOps struct {
	table    string
	keyToID  []byte
	idToVal  []byte
	valToID  []byte
	idToKeys []byte
	cache    *lru.Cache[string, []byte]
}

func newDictOps(name string, lruSize int) *dictOps {
	if lruSize <= 0 {
		lruSize = 1024
	}
	c, _ := lru.New[string, []byte](lruSize)
	return &dictOps{
		table:    name,
		keyToID:  []byte(name + "__key_id"),
		idToVal:  []byte(name + "__id_val"),
		valToID:  []byte(name + "__val_id"),
		idToKeys: []byte(name + "__id_keys"),
		cache:    c,
	}
}

// NewDictTableWriter builds a TableWriter over the four-bucket
// dictionary layout with an LRU cache of size lruSize, for columns whose
// values repeat heavily across rows (e.g. an address interned once and
// referenced by every output that pays to it).
func NewDictTableWriter(name string, db *bolt.DB, lruSize int) *TableWriter {
	return NewTableWriter(name, db, newDictOps(name, lruSize))
}

func (d *dictOps) init(tx *bolt.Tx) error {
	for _, b := range [][]byte{d.keyToID, d.idToVal, d.valToID, d.idToKeys} {
		if _, err := tx.CreateBucketIfNotExists(b); err != nil {
			return err
		}
	}
	return nil
}

// insert's value parameter doubles as the column's value bytes; the
// caller passes key as the row's primary key (a Pointer).
func (d *dictOps) insert(tx *bolt.Tx, key, value []byte) error {
	id, err := d.resolveOrAllocateID(tx, key, value)
	if err != nil {
		return err
	}
	if err := tx.Bucket(d.keyToID).Put(key, id); err != nil {
		return err
	}
	keys, err := tx.Bucket(d.idToKeys).CreateBucketIfNotExists(id)
	if err != nil {
		return err
	}
	return keys.Put(key, []byte{})
}

func (d *dictOps) resolveOrAllocateID(tx *bolt.Tx, key, value []byte) ([]byte, error) {
	valStr := string(value)
	if id, ok := d.cache.Get(valStr); ok {
		metrics.DictCacheHitsTotal.WithLabelValues(d.table).Inc()
		return id, nil
	}
	metrics.DictCacheMissesTotal.WithLabelValues(d.table).Inc()

	if id := tx.Bucket(d.valToID).Get(value); id != nil {
		idCopy := append([]byte{}, id...)
		d.cache.Add(valStr, idCopy)
		return idCopy, nil
	}

	id := append([]byte{}, key...)
	if err := tx.Bucket(d.valToID).Put(value, id); err != nil {
		return nil, err
	}
	if err := tx.Bucket(d.idToVal).Put(id, value); err != nil {
		return nil, err
	}
	d.cache.Add(valStr, id)
	return id, nil
}

func (d *dictOps) remove(tx *bolt.Tx, key []byte) (bool, error) {
	keyToID := tx.Bucket(d.keyToID)
	id := keyToID.Get(key)
	if id == nil {
		return false, nil
	}
	id = append([]byte{}, id...)
	if err := keyToID.Delete(key); err != nil {
		return false, err
	}

	idToKeys := tx.Bucket(d.idToKeys)
	if sub := idToKeys.Bucket(id); sub != nil {
		if err := sub.Delete(key); err != nil {
			return false, err
		}
		// Stats().KeyN reads committed pages only; a cursor sees this tx's deletes.
		first, _ := sub.Cursor().First()
		if first == nil {
			if err := idToKeys.DeleteBucket(id); err != nil {
				return false, err
			}
			idToVal := tx.Bucket(d.idToVal)
			value := idToVal.Get(id)
			if value != nil {
				valStr := string(value)
				if err := tx.Bucket(d.valToID).Delete(value); err != nil {
					return false, err
				}
				if err := idToVal.Delete(id); err != nil {
					return false, err
				}
				d.cache.Remove(valStr)
			}
		}
	}
	return true, nil
}

func (d *dictOps) head(tx *bolt.Tx, value []byte) ([]byte, bool, error) {
	id := tx.Bucket(d.valToID).Get(value)
	if id == nil {
		return nil, false, nil
	}
	sub := tx.Bucket(d.idToKeys).Bucket(id)
	if sub == nil {
		return nil, false, nil
	}
	k, _ := sub.Cursor().First()
	if k == nil {
		return nil, false, nil
	}
	return append([]byte{}, k...), true, nil
}

// keys returns every key currently interned under value's dictId.
func (d *dictOps) keys(tx *bolt.Tx, value []byte) ([][]byte, error) {
	id := tx.Bucket(d.valToID).Get(value)
	if id == nil {
		return nil, nil
	}
	sub := tx.Bucket(d.idToKeys).Bucket(id)
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
