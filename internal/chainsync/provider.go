// Package chainsync orchestrates the fetch → reorder → batch → persist
// pipeline: tip discovery, fork detection, mode selection, and the
// pipeline wiring between the block stream, the reorder buffer, the
// weight batcher and the entity write context.
package chainsync

import (
	"context"

	"github.com/pragmaxim-com/redbit-sub001/internal/batch"
	"github.com/pragmaxim-com/redbit-sub001/internal/blockstream"
	"github.com/pragmaxim-com/redbit-sub001/internal/storage"
)

// Header is a minimal chain header: a height and an opaque hash used for
// fork-detection comparisons.
type Header struct {
	Height uint64
	Hash   string
}

// Block is satisfied by any processed block type the pipeline can reorder
// and persist by height.
type Block interface {
	Height() uint64
}

// TaskSummary reports what a StoreBlocks/UpdateBlocks call actually wrote,
// used for progress logging.
type TaskSummary struct {
	Count      int
	FromHeight uint64
	ToHeight   uint64
}

// BlockProvider is the external collaborator that knows how to talk to a
// specific chain's node: discover its tip, stream raw blocks, and decode
// them into the engine's processed block type.
type BlockProvider[Raw batch.Sized, B Block] interface {
	GetChainTip(ctx context.Context) (Header, error)
	Stream(ctx context.Context, fromHeight uint64, mode blockstream.Mode) (<-chan []Raw, error)
	Process(raw Raw) (B, error)
	GetProcessedBlock(ctx context.Context, hash string) (B, bool, error)
	Weight(b B) uint64
}

// BlockChain is the external collaborator that knows how to persist a
// specific entity's processed blocks and answer questions about what is
// already on disk.
type BlockChain[B Block] interface {
	Init(ctx context.Context) error
	Delete(ctx context.Context) error
	GetLastHeader(ctx context.Context) (Header, bool, error)
	GetHeaderByHash(ctx context.Context, hash string) (Header, bool, error)
	StoreBlocks(ctx context.Context, wctx *storage.EntityWriteContext, blocks []B, dur storage.Durability) (TaskSummary, error)
	UpdateBlocks(ctx context.Context, wctx *storage.EntityWriteContext, blocks []B) error
	ValidateChain(ctx context.Context, fromHeight uint64) ([]Header, error)
}
