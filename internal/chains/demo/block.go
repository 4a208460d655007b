// Package demo implements a synthetic UTXO-style chain: deterministic
// blocks generated in-process rather than fetched from a real node. It
// exists to exercise the ingestion engine end to end (chainsync, storage,
// blockstream) without external network dependencies.
package demo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RawBlock is what the synthetic fetcher "downloads": a height and a
// deterministic transaction count, standing in for a node's wire-format
// block payload.
type RawBlock struct {
	Height  uint64
	TxCount int
}

// Size reports an approximate wire footprint, satisfying batch.Sized:
// a fixed header cost plus a per-transaction cost.
func (r RawBlock) Size() int {
	return 80 + r.TxCount*250
}

// Block is the processed, chain-linked form persisted by Chain.
type Block struct {
	BlockHeight uint64
	Hash        string
	PrevHash    string
	TxCount     int
}

// Height implements chainsync.Block.
func (b Block) Height() uint64 { return b.BlockHeight }

// Weight reports the processing cost the pipeline's batcher accumulates
// against, here simply the transaction count.
func (b Block) Weight() uint64 { return uint64(b.TxCount) }

// genesisHash is the fixed hash of the (virtual) block at height 0, the
// PrevHash every chain at height 1 must link against.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000"

// txCountForHeight deterministically derives a block's transaction count
// from its height so repeated syncs of the same range are reproducible.
func txCountForHeight(height uint64) int {
	return 1 + int(height%37)
}

// hashFor computes the deterministic content hash of a block from its
// height and its predecessor's hash, so any divergence in prevHash (as
// injected by a simulated reorg) propagates forward into every
// descendant's hash.
func hashFor(height uint64, prevHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", prevHash, height)))
	return hex.EncodeToString(sum[:])
}
