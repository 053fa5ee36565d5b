package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoStablecoin is returned by stablecoin operations on a network whose
// deployment does not name one.
var ErrNoStablecoin = errors.New("no stablecoin configured for this network")

// Permit is a split EIP-2612 authorisation ready for the helper.
type Permit struct {
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// Suite binds the contracts of one deployment to a signing account.
type Suite struct {
	backend Backend
	signer  chain.TxSigner

	token       *Bound
	destination *Bound
	helper      *Bound
	stable      *Bound // nil when no stablecoin is configured

	destID  *big.Int
	erc1155 bool

	mu   sync.Mutex
	name string // cached token name
}

// NewSuite validates d and binds its contracts for signer.
func NewSuite(backend Backend, signer chain.TxSigner, d config.Deployment) (*Suite, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	s := &Suite{backend: backend, signer: signer, erc1155: d.DestinationStandard != "erc20"}

	var err error
	if s.token, err = Bind(KindERC20Permit, common.HexToAddress(d.RedeemableToken), backend); err != nil {
		return nil, err
	}
	destKind := KindERC1155
	if !s.erc1155 {
		destKind = KindERC20Permit
	}
	if s.destination, err = Bind(destKind, common.HexToAddress(d.DestinationToken), backend); err != nil {
		return nil, err
	}
	if s.helper, err = Bind(KindHelper, common.HexToAddress(d.RedemptionHelper), backend); err != nil {
		return nil, err
	}
	if d.Stablecoin != "" {
		if s.stable, err = Bind(KindERC20Permit, common.HexToAddress(d.Stablecoin), backend); err != nil {
			return nil, err
		}
	}

	id := d.DestinationTokenID
	if id == "" {
		id = config.DefaultDestinationTokenID
	}
	var ok bool
	if s.destID, ok = new(big.Int).SetString(id, 10); !ok {
		return nil, fmt.Errorf("invalid destination token id %q", d.DestinationTokenID)
	}
	return s, nil
}

// Account is the address every read and write is made for.
func (s *Suite) Account() common.Address { return s.signer.Address() }

// RedeemableToken is the address of the token being redeemed.
func (s *Suite) RedeemableToken() common.Address { return s.token.Address }

// Helper is the address of the redemption helper (the spender).
func (s *Suite) Helper() common.Address { return s.helper.Address }

// RedeemableBalance is the account's balance of the redeemable token.
func (s *Suite) RedeemableBalance(ctx context.Context) (*big.Int, error) {
	return s.token.CallUint(ctx, "balanceOf", s.Account())
}

// DestinationBalance is the account's balance of the destination token,
// read per its standard.
func (s *Suite) DestinationBalance(ctx context.Context) (*big.Int, error) {
	if s.erc1155 {
		return s.destination.CallUint(ctx, "balanceOf", s.Account(), s.destID)
	}
	return s.destination.CallUint(ctx, "balanceOf", s.Account())
}

// Allowance is how much of the redeemable token the helper may pull.
func (s *Suite) Allowance(ctx context.Context) (*big.Int, error) {
	return s.token.CallUint(ctx, "allowance", s.Account(), s.helper.Address)
}

// PermitNonce reads the account's current EIP-2612 nonce.
func (s *Suite) PermitNonce(ctx context.Context) (*big.Int, error) {
	return s.token.CallUint(ctx, "nonces", s.Account())
}

// TokenName returns the redeemable token's name, used as the EIP-712
// domain name. It is read once per suite.
func (s *Suite) TokenName(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name != "" {
		return s.name, nil
	}
	vals, err := s.token.Call(ctx, "name")
	if err != nil {
		return "", err
	}
	name, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("token name: unexpected output type %T", vals[0])
	}
	s.name = name
	return name, nil
}

// ChainID is the chain the backend is connected to.
func (s *Suite) ChainID(ctx context.Context) (*big.Int, error) {
	return s.backend.ChainID(ctx)
}

// LatestTimestamp is the latest block's timestamp in seconds.
func (s *Suite) LatestTimestamp(ctx context.Context) (uint64, error) {
	return s.backend.LatestTimestamp(ctx)
}

// Approve lets the helper pull amount of the redeemable token.
func (s *Suite) Approve(ctx context.Context, amount *big.Int) (*chain.PendingTx, error) {
	return s.token.Transact(ctx, s.signer, config.GasLimitERC20Approve, "approve", s.helper.Address, amount)
}

// Redeem asks the helper to redeem amount using the existing allowance.
func (s *Suite) Redeem(ctx context.Context, amount *big.Int) (*chain.PendingTx, error) {
	return s.helper.Transact(ctx, s.signer, config.GasLimitContractCall, "redeem", amount)
}

// PermitAndRedeem redeems amount in one transaction, authorised by p.
func (s *Suite) PermitAndRedeem(ctx context.Context, amount *big.Int, p Permit) (*chain.PendingTx, error) {
	return s.helper.Transact(ctx, s.signer, config.GasLimitContractCall, "permitAndRedeem",
		amount, p.Deadline, p.V, p.R, p.S)
}

// StableBalance is the account's stablecoin balance.
func (s *Suite) StableBalance(ctx context.Context) (*big.Int, error) {
	if s.stable == nil {
		return nil, ErrNoStablecoin
	}
	return s.stable.CallUint(ctx, "balanceOf", s.Account())
}

// TransferStable sends amount of the stablecoin to to.
func (s *Suite) TransferStable(ctx context.Context, to common.Address, amount *big.Int) (*chain.PendingTx, error) {
	if s.stable == nil {
		return nil, ErrNoStablecoin
	}
	return s.stable.Transact(ctx, s.signer, config.GasLimitERC20Transfer, "transfer", to, amount)
}
