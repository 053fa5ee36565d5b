package redeem

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/logging"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"go.uber.org/zap"
)

// Strategy names.
const (
	StrategyApprove = "approve"
	StrategyPermit  = "permit"
)

// Strategy submits a redeem of amount for the session account.
type Strategy interface {
	Name() string
	Redeem(ctx context.Context, sess *session.Session, amount *big.Int) (*chain.PendingTx, error)
}

// NewStrategy returns the strategy called name, configured from s.
func NewStrategy(name string, s config.RedeemSettings, log *zap.Logger) (Strategy, error) {
	log = logging.OrNop(log)
	switch name {
	case StrategyApprove:
		return ApproveThenRedeem{}, nil
	case StrategyPermit:
		version := s.PermitVersion
		if version == "" {
			version = config.DefaultPermitVersion
		}
		window := s.PermitWindow()
		if window <= 0 {
			window = config.DefaultPermitWindow
		}
		return &PermitRedeem{Window: window, Version: version, log: log}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q (want %s or %s)", name, StrategyApprove, StrategyPermit)
}

// ApproveThenRedeem spends an allowance granted by an earlier approve.
type ApproveThenRedeem struct{}

func (ApproveThenRedeem) Name() string { return StrategyApprove }

func (ApproveThenRedeem) Redeem(ctx context.Context, sess *session.Session, amount *big.Int) (*chain.PendingTx, error) {
	return sess.Ledger.Redeem(ctx, amount)
}

// PermitRedeem signs an EIP-2612 permit for the helper and redeems in the
// same transaction.
type PermitRedeem struct {
	Window  time.Duration // added to the latest block timestamp
	Version string        // EIP-712 domain version
	log     *zap.Logger
}

func (*PermitRedeem) Name() string { return StrategyPermit }

// Sign builds and signs the permit for amount. The nonce is read at signing
// time.
func (p *PermitRedeem) Sign(ctx context.Context, sess *session.Session, amount *big.Int) (PermitRequest, []byte, error) {
	l := sess.Ledger
	name, err := l.TokenName(ctx)
	if err != nil {
		return PermitRequest{}, nil, fmt.Errorf("token name: %w", err)
	}
	nonce, err := l.PermitNonce(ctx)
	if err != nil {
		return PermitRequest{}, nil, fmt.Errorf("permit nonce: %w", err)
	}
	ts, err := l.LatestTimestamp(ctx)
	if err != nil {
		return PermitRequest{}, nil, err
	}
	req := PermitRequest{
		TokenName: name,
		Version:   p.Version,
		ChainID:   big.NewInt(sess.ChainID),
		Token:     l.RedeemableToken(),
		Owner:     sess.Account,
		Spender:   l.Helper(),
		Value:     amount,
		Nonce:     nonce,
		Deadline:  new(big.Int).SetUint64(ts + uint64(p.Window/time.Second)),
	}

	td := req.TypedData()
	sig, err := sess.Signer.SignTypedData(ctx, td)
	if err != nil {
		return PermitRequest{}, nil, fmt.Errorf("%w: %w", ErrSignature, err)
	}
	signer, err := wallet.RecoverTypedData(td, sig)
	if err != nil {
		return PermitRequest{}, nil, fmt.Errorf("%w: %w", ErrSignature, err)
	}
	if signer != sess.Account {
		return PermitRequest{}, nil, fmt.Errorf("%w: signed by %s, expected %s", ErrSignature, signer.Hex(), sess.Account.Hex())
	}
	return req, sig, nil
}

func (p *PermitRedeem) Redeem(ctx context.Context, sess *session.Session, amount *big.Int) (*chain.PendingTx, error) {
	req, sig, err := p.Sign(ctx, sess, amount)
	if err != nil {
		return nil, err
	}
	permit, err := SplitSignature(sig, req.Deadline)
	if err != nil {
		return nil, err
	}
	p.log.Debug("permit signed",
		zap.Uint64("session", sess.ID),
		zap.String("nonce", req.Nonce.String()),
		zap.String("deadline", req.Deadline.String()),
	)
	return sess.Ledger.PermitAndRedeem(ctx, amount, permit)
}
