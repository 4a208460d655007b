package demo

import (
	"context"
	"fmt"

	"github.com/pragmaxim-com/redbit-sub001/internal/blockstream"
	"github.com/pragmaxim-com/redbit-sub001/internal/chainsync"
)

// Provider is a synthetic chainsync.BlockProvider: it fabricates a
// deterministic chain up to TipHeight rather than talking to a node.
// ForkHeight/ForkSeed let a test simulate a one-off reorg at a given
// height by perturbing the hash input fed to that height only; every
// descendant hash changes as a result, since each hash folds in its
// parent's.
type Provider struct {
	TipHeight   uint64
	ForkHeight  uint64
	ForkSeed    string
	Parallelism int
}

// chainHashes computes hashes[0..upTo] where hashes[0] is the genesis
// hash and hashes[h] links to hashes[h-1], optionally perturbed at
// ForkHeight.
func (p *Provider) chainHashes(upTo uint64) []string {
	hashes := make([]string, upTo+1)
	hashes[0] = genesisHash
	for h := uint64(1); h <= upTo; h++ {
		seed := hashes[h-1]
		if p.ForkHeight != 0 && h == p.ForkHeight {
			seed = seed + p.ForkSeed
		}
		hashes[h] = hashFor(h, seed)
	}
	return hashes
}

// GetChainTip reports the synthetic chain's fixed tip.
func (p *Provider) GetChainTip(ctx context.Context) (chainsync.Header, error) {
	hashes := p.chainHashes(p.TipHeight)
	return chainsync.Header{Height: p.TipHeight, Hash: hashes[p.TipHeight]}, nil
}

// Stream fetches [fromHeight, TipHeight] through blockstream.Stream,
// generating each RawBlock in place of a network round trip.
func (p *Provider) Stream(ctx context.Context, fromHeight uint64, mode blockstream.Mode) (<-chan []RawBlock, error) {
	if fromHeight > p.TipHeight {
		out := make(chan []RawBlock)
		close(out)
		return out, nil
	}
	parallelism := p.Parallelism
	if parallelism < 1 {
		parallelism = 4
	}
	fetch := func(ctx context.Context, height uint64) (RawBlock, error) {
		return RawBlock{Height: height, TxCount: txCountForHeight(height)}, nil
	}
	return blockstream.Stream[RawBlock](ctx, fromHeight, p.TipHeight, parallelism, mode, 256, fetch), nil
}

// Process links raw into the deterministic hash chain.
func (p *Provider) Process(raw RawBlock) (Block, error) {
	if raw.Height == 0 {
		return Block{}, fmt.Errorf("demo: height 0 is the virtual genesis, not a processable block")
	}
	hashes := p.chainHashes(raw.Height)
	return Block{
		BlockHeight: raw.Height,
		Hash:        hashes[raw.Height],
		PrevHash:    hashes[raw.Height-1],
		TxCount:     raw.TxCount,
	}, nil
}

// GetProcessedBlock resolves a block by hash against the current
// canonical chain, or !found when the hash belongs to an orphaned branch.
func (p *Provider) GetProcessedBlock(ctx context.Context, hash string) (Block, bool, error) {
	hashes := p.chainHashes(p.TipHeight)
	for h := uint64(1); h <= p.TipHeight; h++ {
		if hashes[h] == hash {
			return Block{
				BlockHeight: h,
				Hash:        hashes[h],
				PrevHash:    hashes[h-1],
				TxCount:     txCountForHeight(h),
			}, true, nil
		}
	}
	return Block{}, false, nil
}

// Weight reports a block's transaction count as its batching cost.
func (p *Provider) Weight(b Block) uint64 { return b.Weight() }
