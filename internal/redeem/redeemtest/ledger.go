// Package redeemtest provides an in-memory ledger for tests.
package redeemtest

import (
	"context"
	"math/big"
	"sync"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token and helper addresses used by Ledger.
var (
	Token  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	Helper = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

// PermitCall records one PermitAndRedeem.
type PermitCall struct {
	Amount *big.Int
	Permit contract.Permit
}

// Ledger simulates the token contracts. Transactions take effect when their
// receipt is awaited, like a mined block.
type Ledger struct {
	mu sync.Mutex

	Name      string
	Balance   *big.Int
	Allow     *big.Int
	Dest      *big.Int
	Nonce     *big.Int
	Stable    *big.Int
	Timestamp uint64

	ReadErr   error // returned by every read
	SendErr   error // returned by every write
	RevertTxs bool  // mined transactions fail

	// OnBalanceRead runs before the n-th redeemable balance read returns,
	// outside the lock.
	OnBalanceRead func(n int)

	BalanceReads int
	Approvals    []*big.Int
	Redeems      []*big.Int
	Permits      []PermitCall
	Transfers    []*big.Int
	txs          int
}

// New returns a ledger holding balance of the redeemable token, with no
// allowance and an empty destination balance.
func New(balance *big.Int) *Ledger {
	return &Ledger{
		Name:      "Liquid Staked Drip",
		Balance:   new(big.Int).Set(balance),
		Allow:     new(big.Int),
		Dest:      new(big.Int),
		Nonce:     new(big.Int),
		Stable:    new(big.Int),
		Timestamp: 1_700_000_000,
	}
}

func (l *Ledger) RedeemableToken() common.Address { return Token }
func (l *Ledger) Helper() common.Address          { return Helper }

func (l *Ledger) read(v **big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	return new(big.Int).Set(*v), nil
}

func (l *Ledger) RedeemableBalance(context.Context) (*big.Int, error) {
	l.mu.Lock()
	l.BalanceReads++
	n, hook := l.BalanceReads, l.OnBalanceRead
	l.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return l.read(&l.Balance)
}

func (l *Ledger) DestinationBalance(context.Context) (*big.Int, error) { return l.read(&l.Dest) }
func (l *Ledger) Allowance(context.Context) (*big.Int, error)          { return l.read(&l.Allow) }
func (l *Ledger) PermitNonce(context.Context) (*big.Int, error)        { return l.read(&l.Nonce) }
func (l *Ledger) StableBalance(context.Context) (*big.Int, error)      { return l.read(&l.Stable) }

func (l *Ledger) TokenName(context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Name, l.ReadErr
}

func (l *Ledger) LatestTimestamp(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Timestamp, l.ReadErr
}

// Set replaces a reading under the lock.
func (l *Ledger) Set(fn func(l *Ledger)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l)
}

func (l *Ledger) Approve(_ context.Context, amount *big.Int) (*chain.PendingTx, error) {
	amount = new(big.Int).Set(amount)
	return l.submit(func() { l.Approvals = append(l.Approvals, amount) }, func() {
		l.Allow.Set(amount)
	})
}

func (l *Ledger) Redeem(_ context.Context, amount *big.Int) (*chain.PendingTx, error) {
	amount = new(big.Int).Set(amount)
	return l.submit(func() { l.Redeems = append(l.Redeems, amount) }, func() {
		l.Allow.Sub(l.Allow, amount)
		l.redeem(amount)
	})
}

func (l *Ledger) PermitAndRedeem(_ context.Context, amount *big.Int, p contract.Permit) (*chain.PendingTx, error) {
	amount = new(big.Int).Set(amount)
	return l.submit(func() { l.Permits = append(l.Permits, PermitCall{Amount: amount, Permit: p}) }, func() {
		l.Nonce.Add(l.Nonce, big.NewInt(1))
		l.redeem(amount)
	})
}

func (l *Ledger) TransferStable(_ context.Context, _ common.Address, amount *big.Int) (*chain.PendingTx, error) {
	amount = new(big.Int).Set(amount)
	return l.submit(func() { l.Transfers = append(l.Transfers, amount) }, func() {
		l.Stable.Sub(l.Stable, amount)
	})
}

func (l *Ledger) redeem(amount *big.Int) {
	l.Balance.Sub(l.Balance, amount)
	l.Dest.Add(l.Dest, amount)
}

// submit records a write and returns a pending tx that applies effect once
// awaited.
func (l *Ledger) submit(record, effect func()) (*chain.PendingTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SendErr != nil {
		return nil, l.SendErr
	}
	record()
	l.txs++
	hash := common.BigToHash(big.NewInt(int64(l.txs)))

	var once sync.Once
	return chain.NewPendingTx(hash, func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.RevertTxs {
			return &types.Receipt{TxHash: h, Status: types.ReceiptStatusFailed}, &chain.RevertError{Hash: h, Reason: "execution reverted"}
		}
		once.Do(effect)
		return &types.Receipt{TxHash: h, Status: types.ReceiptStatusSuccessful}, nil
	}), nil
}
