package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the chain access a bound contract needs. *chain.Client
// satisfies it.
type Backend interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Send(ctx context.Context, signer chain.TxSigner, to common.Address, data []byte, fallbackGas uint64) (*chain.PendingTx, error)
	ChainID(ctx context.Context) (*big.Int, error)
	LatestTimestamp(ctx context.Context) (uint64, error)
}

// Bound is one contract address paired with a builtin ABI.
type Bound struct {
	Address common.Address
	kind    string
	abi     abi.ABI
	backend Backend
}

// Bind pairs address with the builtin ABI kind.
func Bind(kind string, address common.Address, backend Backend) (*Bound, error) {
	b, ok := GetBuiltin(kind)
	if !ok {
		return nil, fmt.Errorf("unknown builtin ABI %q", kind)
	}
	parsed, err := b.Parse()
	if err != nil {
		return nil, err
	}
	return &Bound{Address: address, kind: kind, abi: parsed, backend: backend}, nil
}

// Call runs a read method and returns its decoded outputs.
func (b *Bound) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	out, err := b.backend.Call(ctx, b.Address, data)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", b.kind, method, err)
	}
	vals, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decoding %s.%s from %s: %w", b.kind, method, b.Address.Hex(), err)
	}
	return vals, nil
}

// CallUint runs a read method that returns a single uint256.
func (b *Bound) CallUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	vals, err := b.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%s.%s: expected 1 output, got %d", b.kind, method, len(vals))
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected output type %T", b.kind, method, vals[0])
	}
	return n, nil
}

// Transact encodes a write method and broadcasts it from signer.
func (b *Bound) Transact(ctx context.Context, signer chain.TxSigner, fallbackGas uint64, method string, args ...any) (*chain.PendingTx, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	tx, err := b.backend.Send(ctx, signer, b.Address, data, fallbackGas)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", b.kind, method, err)
	}
	return tx, nil
}
