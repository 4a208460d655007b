package storage

import (
	"errors"

	bolt "go.etcd.io/bbolt"
)

// errHeadUnsupported is returned by plainOps.head and plainOps.keys: a
// plain column has no reverse value→key mapping to answer them from.
var errHeadUnsupported = errors.New("storage: plain table has no reverse index")

// plainOps implements a straight key → value table with no secondary
// structure.
type plainOps struct {
	bucket []byte
}

func newPlainOps(name string) *plainOps {
	return &plainOps{bucket: []byte(name)}
}

// NewPlainTableWriter builds a TableWriter over a straight key→value
// layout with no reverse index, for columns only ever looked up by key
// (e.g. a height→header table).
func NewPlainTableWriter(name string, db *bolt.DB) *TableWriter {
	return NewTableWriter(name, db, newPlainOps(name))
}

func (p *plainOps) init(tx *bolt.Tx) error {
	_, err := tx.CreateBucketIfNotExists(p.bucket)
	return err
}

func (p *plainOps) insert(tx *bolt.Tx, k, v []byte) error {
	return tx.Bucket(p.bucket).Put(k, v)
}

func (p *plainOps) remove(tx *bolt.Tx, k []byte) (bool, error) {
	b := tx.Bucket(p.bucket)
	existed := b.Get(k) != nil
	if !existed {
		return false, nil
	}
	return true, b.Delete(k)
}

func (p *plainOps) head(tx *bolt.Tx, v []byte) ([]byte, bool, error) {
	return nil, false, errHeadUnsupported
}

func (p *plainOps) keys(tx *bolt.Tx, v []byte) ([][]byte, error) {
	return nil, errHeadUnsupported
}

// RangeScan returns copies of every key/value pair in [lo, hi] (inclusive),
// or the whole table when lo/hi are nil.
func RangeScan(tx *bolt.Tx, bucketName string, lo, hi []byte) ([][2][]byte, error) {
	b := tx.Bucket([]byte(bucketName))
	if b == nil {
		return nil, nil
	}
	c := b.Cursor()
	var out [][2][]byte
	var k, v []byte
	if lo == nil {
		k, v = c.First()
	} else {
		k, v = c.Seek(lo)
	}
	for ; k != nil; k, v = c.Next() {
		if hi != nil && bytesGreater(k, hi) {
			break
		}
		out = append(out, [2][]byte{append([]byte{}, k...), append([]byte{}, v...)})
	}
	return out, nil
}

func bytesGreater(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return len(a) > len(b)
}
