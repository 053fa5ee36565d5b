package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PendingTx is a broadcast transaction awaiting inclusion.
type PendingTx struct {
	Hash common.Hash
	wait func(context.Context, common.Hash) (*types.Receipt, error)
}

// NewPendingTx pairs a hash with the function that waits for its receipt.
func NewPendingTx(hash common.Hash, wait func(context.Context, common.Hash) (*types.Receipt, error)) *PendingTx {
	return &PendingTx{Hash: hash, wait: wait}
}

// Wait blocks until the transaction is mined or ctx is done.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	return p.wait(ctx, p.Hash)
}
