package storage

import (
	"bytes"
	"fmt"
	"hash/fnv"
)

// Partitioning selects how a ShardedWriter routes an operation to one of
// its N independent physical shards.
type Partitioning int

const (
	// PartitionByKey routes every operation for a given key to one shard;
	// deletes, ranges and point reads are O(1) in shard selection.
	PartitionByKey Partitioning = iota
	// PartitionByValue routes writes by value; a point read by key alone
	// must probe every shard, but GetKeys(value) routes to exactly one.
	PartitionByValue
)

// ShardedWriter fans a logical table out across N independent
// TableWriters, one per physical database file.
type ShardedWriter struct {
	shards       []*TableWriter
	partitioning Partitioning
}

// NewShardedWriter requires at least two shards; a single-shard "sharded"
// writer is a contradiction the caller should use a plain TableWriter for
// instead.
func NewShardedWriter(shards []*TableWriter, partitioning Partitioning) (*ShardedWriter, error) {
	if len(shards) < 2 {
		return nil, fmt.Errorf("storage: sharded writer requires at least 2 shards, got %d", len(shards))
	}
	return &ShardedWriter{shards: shards, partitioning: partitioning}, nil
}

func (s *ShardedWriter) shardOf(routingBytes []byte) int {
	h := fnv.New32a()
	_, _ = h.Write(routingBytes)
	return int(h.Sum32()) % len(s.shards)
}

func (s *ShardedWriter) routingKey(k, v []byte) []byte {
	if s.partitioning == PartitionByValue {
		return v
	}
	return k
}

// Begin opens a write transaction on every shard.
func (s *ShardedWriter) Begin(dur Durability) error {
	for _, w := range s.shards {
		if err := w.Begin(dur); err != nil {
			return err
		}
	}
	return nil
}

// InsertOne routes a single key/value pair to its shard.
func (s *ShardedWriter) InsertOne(k, v []byte) {
	shard := s.shards[s.shardOf(s.routingKey(k, v))]
	shard.InsertOne(k, v)
}

// InsertMany bucketizes inputs by shard and dispatches one InsertMany per
// shard that received at least one item.
func (s *ShardedWriter) InsertMany(kvs []kv) {
	buckets := make(map[int][]kv)
	for _, e := range kvs {
		idx := s.shardOf(s.routingKey(e.k, e.v))
		buckets[idx] = append(buckets[idx], e)
	}
	for idx, bucket := range buckets {
		s.shards[idx].InsertMany(bucket)
	}
}

// Remove deletes k. Under PartitionByKey the shard is known directly;
// under PartitionByValue the key's shard is unknown, so every shard is
// probed until one reports the key existed.
func (s *ShardedWriter) Remove(k []byte) (bool, error) {
	if s.partitioning == PartitionByKey {
		return s.shards[s.shardOf(k)].Remove(k)
	}
	for _, w := range s.shards {
		ok, err := w.Remove(k)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// QueryHead returns the smallest key mapped to value. Under
// PartitionByValue this routes to exactly one shard; under PartitionByKey
// the value's home shard is unknown, so every shard is probed.
func (s *ShardedWriter) QueryHead(value []byte) ([]byte, bool, error) {
	if s.partitioning == PartitionByValue {
		return s.shards[s.shardOf(value)].QueryHead(value)
	}
	var best []byte
	found := false
	for _, w := range s.shards {
		k, ok, err := w.QueryHead(value)
		if err != nil {
			return nil, false, err
		}
		if ok && (!found || bytes.Compare(k, best) < 0) {
			best, found = k, true
		}
	}
	return best, found, nil
}

// GetKeys returns every key mapped to value. Under PartitionByValue all of
// a value's rows live on one shard, so the call routes to exactly it;
// under PartitionByKey the keys are scattered, so every shard is queried
// and the results concatenated.
func (s *ShardedWriter) GetKeys(value []byte) ([][]byte, error) {
	if s.partitioning == PartitionByValue {
		return s.shards[s.shardOf(value)].GetKeys(value)
	}
	var out [][]byte
	for _, w := range s.shards {
		ks, err := w.GetKeys(value)
		if err != nil {
			return nil, err
		}
		out = append(out, ks...)
	}
	return out, nil
}

// indexedInput pairs a fan-out input with its original position so results
// can be stitched back into input order after per-shard dispatch.
type indexedInput struct {
	pos   int
	value []byte
}

// GetHeadForIndex resolves QueryHead for many values at once (PartitionByValue
// only), bucketizing by shard and dispatching a single QueryHeadMany command
// with an ack channel per shard, then restitching results into the
// caller's input order, the only place cross-shard ordering is
// re-established.
func (s *ShardedWriter) GetHeadForIndex(values [][]byte) ([][]byte, error) {
	if s.partitioning != PartitionByValue {
		return nil, fmt.Errorf("storage: GetHeadForIndex requires PartitionByValue")
	}
	buckets := make(map[int][]indexedInput)
	for i, v := range values {
		idx := s.shardOf(v)
		buckets[idx] = append(buckets[idx], indexedInput{pos: i, value: v})
	}
	out := make([][]byte, len(values))
	for idx, inputs := range buckets {
		batchValues := make([][]byte, len(inputs))
		for i, in := range inputs {
			batchValues[i] = in.value
		}
		results, err := s.shards[idx].QueryHeadMany(batchValues)
		if err != nil {
			return nil, err
		}
		for i, r := range results {
			if r.found {
				out[inputs[i].pos] = r.key
			}
		}
	}
	return out, nil
}

// Flush commits and reopens every shard's transaction.
func (s *ShardedWriter) Flush() error {
	for _, w := range s.shards {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Stop flushes and terminates every shard's writer goroutine.
func (s *ShardedWriter) Stop() error {
	var firstErr error
	for _, w := range s.shards {
		if err := w.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
