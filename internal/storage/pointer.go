package storage

import "encoding/binary"

// Pointer is a lexicographically ordered composite key: a parent's Pointer
// bytes followed by a fixed-width big-endian index suffix. Byte-order
// comparison of two Pointers therefore matches numeric comparison of the
// (parent, index) pair, which is what gives child tables contiguous range
// scans per parent.
type Pointer []byte

// RootPointer encodes a root-entity primary key (e.g., block height) as an
// 8-byte big-endian value.
func RootPointer(height uint64) Pointer {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, height)
	return b
}

// Child appends a fixed-width big-endian index suffix to a parent pointer,
// producing the child's composite primary key.
func (p Pointer) Child(index uint32) Pointer {
	out := make([]byte, len(p)+4)
	copy(out, p)
	binary.BigEndian.PutUint32(out[len(p):], index)
	return out
}

// RangeBounds returns the inclusive byte range [lo, hi] that contains every
// child pointer of parent, used to implement "all children of this parent"
// range scans and to verify the child-containment invariant.
func (p Pointer) RangeBounds() (lo, hi Pointer) {
	lo = append(Pointer{}, p...)
	lo = append(lo, 0x00, 0x00, 0x00, 0x00)
	hi = append(Pointer{}, p...)
	hi = append(hi, 0xff, 0xff, 0xff, 0xff)
	return lo, hi
}

// Height decodes a root pointer back into its uint64 height.
func (p Pointer) Height() uint64 {
	return binary.BigEndian.Uint64(p)
}
