// Package session establishes and tears down the wallet/RPC connection that
// every redeem action runs against.
package session

import (
	"context"
	"errors"
	"math/big"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	// ErrConfiguration means the connect could not start: no provider key,
	// unknown network, missing contract addresses or an unusable wallet.
	ErrConfiguration = errors.New("configuration error")

	// ErrUserRejected means the user cancelled the wallet picker or declined
	// to unlock the key.
	ErrUserRejected = errors.New("user rejected the connection")

	// ErrDisconnected is the cause reported when the RPC stops answering.
	ErrDisconnected = errors.New("rpc connection lost")

	// ErrChainChanged is the cause reported when the endpoint switches chains.
	ErrChainChanged = errors.New("chain changed")
)

// Ledger is the contract surface a Session exposes. *contract.Suite
// implements it.
type Ledger interface {
	RedeemableToken() common.Address
	Helper() common.Address

	RedeemableBalance(ctx context.Context) (*big.Int, error)
	DestinationBalance(ctx context.Context) (*big.Int, error)
	Allowance(ctx context.Context) (*big.Int, error)
	PermitNonce(ctx context.Context) (*big.Int, error)
	TokenName(ctx context.Context) (string, error)
	LatestTimestamp(ctx context.Context) (uint64, error)

	Approve(ctx context.Context, amount *big.Int) (*chain.PendingTx, error)
	Redeem(ctx context.Context, amount *big.Int) (*chain.PendingTx, error)
	PermitAndRedeem(ctx context.Context, amount *big.Int, p contract.Permit) (*chain.PendingTx, error)

	StableBalance(ctx context.Context) (*big.Int, error)
	TransferStable(ctx context.Context, to common.Address, amount *big.Int) (*chain.PendingTx, error)
}

// Signer produces off-chain signatures for the session account.
// *wallet.Signer implements it.
type Signer interface {
	Address() common.Address
	SignTypedData(ctx context.Context, td apitypes.TypedData) ([]byte, error)
	Lock()
}

// Session is one live connection. It is immutable once handed out.
type Session struct {
	ID      uint64
	ChainID int64
	Account common.Address
	Wallet  string
	Network string // deployment key, e.g. "sepolia"
	Label   string // display name, e.g. "Ethereum Sepolia"
	Mode    string // "mainnet" | "testnet"
	RPC     string
	Ledger  Ledger
	Signer  Signer
}

// Client is the chain connection a Session owns. *chain.Client implements it.
type Client interface {
	contract.Backend
	Close()
}

// DialFunc opens a Client for url.
type DialFunc func(ctx context.Context, url string) (Client, error)

func dialChain(ctx context.Context, url string) (Client, error) {
	c, err := chain.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}
