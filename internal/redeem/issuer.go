// Package redeem reads the redeem quantities and submits approve, redeem
// and permit-and-redeem transactions.
package redeem

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/logging"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Approve modes.
const (
	ApproveBalance = "balance"
	ApproveFixed   = "fixed"
)

// Issuer submits state-changing transactions and waits for them.
type Issuer struct {
	settings config.RedeemSettings
	strategy Strategy
	permit   *PermitRedeem
	log      *zap.Logger
}

// NewIssuer builds an Issuer whose default strategy is s.Strategy.
func NewIssuer(s config.RedeemSettings, log *zap.Logger) (*Issuer, error) {
	log = logging.OrNop(log)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	strat, err := NewStrategy(s.Strategy, s, log)
	if err != nil {
		return nil, err
	}
	permit, err := NewStrategy(StrategyPermit, s, log)
	if err != nil {
		return nil, err
	}
	return &Issuer{settings: s, strategy: strat, permit: permit.(*PermitRedeem), log: log}, nil
}

// Strategy is the strategy Redeem uses.
func (i *Issuer) Strategy() Strategy { return i.strategy }

// SetStrategy switches the strategy used by Redeem.
func (i *Issuer) SetStrategy(name string) error {
	s, err := NewStrategy(name, i.settings, i.log)
	if err != nil {
		return err
	}
	i.strategy = s
	return nil
}

// Threshold is the allowance at which the flow offers redeem instead of
// approve.
func (i *Issuer) Threshold() *big.Int {
	return chain.Units(i.settings.ThresholdUnits, i.settings.TokenDecimals)
}

// ApproveAmount is what Approve would grant. In balance mode it reads the
// current redeemable balance.
func (i *Issuer) ApproveAmount(ctx context.Context, sess *session.Session) (*big.Int, error) {
	if sess == nil {
		return nil, ErrNotConnected
	}
	if i.settings.ApproveMode == ApproveFixed {
		return chain.Units(i.settings.ApproveUnits, i.settings.TokenDecimals), nil
	}
	bal, err := sess.Ledger.RedeemableBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("redeemable balance: %w", err)
	}
	return bal, nil
}

// Approve grants the helper an allowance per the approve mode and returns
// the pending transaction with the approved amount.
func (i *Issuer) Approve(ctx context.Context, sess *session.Session) (*chain.PendingTx, *big.Int, error) {
	amount, err := i.ApproveAmount(ctx, sess)
	if err != nil {
		return nil, nil, err
	}
	tx, err := sess.Ledger.Approve(ctx, amount)
	if err != nil {
		return nil, nil, err
	}
	i.log.Info("approve submitted",
		zap.Uint64("session", sess.ID),
		zap.String("tx", tx.Hash.Hex()),
		zap.String("amount", amount.String()),
		zap.String("mode", i.settings.ApproveMode),
	)
	return tx, amount, nil
}

// Redeem submits a redeem of amount with the current strategy.
func (i *Issuer) Redeem(ctx context.Context, sess *session.Session, amount *big.Int) (*chain.PendingTx, error) {
	return i.redeemWith(ctx, i.strategy, sess, amount)
}

// PermitAndRedeem submits a permit-authorised redeem regardless of the
// configured strategy.
func (i *Issuer) PermitAndRedeem(ctx context.Context, sess *session.Session, amount *big.Int) (*chain.PendingTx, error) {
	return i.redeemWith(ctx, i.permit, sess, amount)
}

func (i *Issuer) redeemWith(ctx context.Context, s Strategy, sess *session.Session, amount *big.Int) (*chain.PendingTx, error) {
	if err := CheckAmount(amount); err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotConnected
	}
	tx, err := s.Redeem(ctx, sess, amount)
	if err != nil {
		return nil, err
	}
	i.log.Info("redeem submitted",
		zap.Uint64("session", sess.ID),
		zap.String("tx", tx.Hash.Hex()),
		zap.String("amount", amount.String()),
		zap.String("strategy", s.Name()),
	)
	return tx, nil
}

// Transfer sends amount of the stablecoin to to.
func (i *Issuer) Transfer(ctx context.Context, sess *session.Session, to common.Address, amount *big.Int) (*chain.PendingTx, error) {
	if err := CheckAmount(amount); err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotConnected
	}
	return sess.Ledger.TransferStable(ctx, to, amount)
}

// Confirm waits for tx within config.TxConfirmTimeout.
func Confirm(ctx context.Context, tx *chain.PendingTx) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, config.TxConfirmTimeout)
	defer cancel()
	return tx.Wait(ctx)
}
