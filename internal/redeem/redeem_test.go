package redeem_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem/redeemtest"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var oneToken = chain.Units(1, 18)

func settings() config.RedeemSettings {
	return config.RedeemSettings{
		Strategy:        redeem.StrategyApprove,
		ApproveMode:     redeem.ApproveBalance,
		ApproveUnits:    config.DefaultApproveUnits,
		TokenDecimals:   config.DefaultTokenDecimals,
		PermitWindowSec: int64(config.DefaultPermitWindow.Seconds()),
		PermitVersion:   config.DefaultPermitVersion,
		ThresholdUnits:  config.DefaultRedeemThresholdUnits,
	}
}

func newSession(t *testing.T, l session.Ledger) *session.Session {
	t.Helper()
	m := wallet.NewManager()
	_, err := m.AddWithKey("alice", testKey)
	require.NoError(t, err)
	signer, err := m.Unlock("alice")
	require.NoError(t, err)
	return &session.Session{
		ID:      1,
		ChainID: 11155111,
		Account: signer.Address(),
		Wallet:  "alice",
		Network: "sepolia",
		Ledger:  l,
		Signer:  signer,
	}
}

func newIssuer(t *testing.T, s config.RedeemSettings) *redeem.Issuer {
	t.Helper()
	i, err := redeem.NewIssuer(s, zaptest.NewLogger(t))
	require.NoError(t, err)
	return i
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{
		"1":                        "1",
		"  42 ":                    "42",
		"007":                      "7",
		"1000000000000000000000000": "1000000000000000000000000",
	}
	for in, want := range valid {
		n, err := redeem.ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, n.String())
	}

	maxUint256 := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	n, err := redeem.ParseAmount(maxUint256)
	require.NoError(t, err)
	assert.Equal(t, maxUint256, n.String())

	for _, in := range []string{
		"", "0", "000", "-1", "1.5", "1e18", "abc", "0x10", " ",
		"115792089237316195423570985008687907853269984665640564039457584007913129639936", // 2^256
		"115792089237316195423570985008687907853269984665640564039457584007913129639941", // 2^256+5
	} {
		_, err := redeem.ParseAmount(in)
		assert.ErrorIs(t, err, redeem.ErrInvalidAmount, in)
	}
}

func TestSanitizeAmountInput(t *testing.T) {
	assert.Equal(t, "12345", redeem.SanitizeAmountInput("1a2-3.4 5"))
	assert.Equal(t, "", redeem.SanitizeAmountInput("abc"))
	assert.Equal(t, "0", redeem.SanitizeAmountInput("0"))
}

func TestRefreshNotConnected(t *testing.T) {
	_, err := redeem.Reader{}.Refresh(context.Background(), nil)
	assert.ErrorIs(t, err, redeem.ErrNotConnected)
}

func TestRefreshReadsTriple(t *testing.T) {
	l := redeemtest.New(big.NewInt(500))
	l.Set(func(l *redeemtest.Ledger) {
		l.Allow.SetInt64(20)
		l.Dest.SetInt64(3)
	})
	q, err := redeem.Reader{}.Refresh(context.Background(), newSession(t, l))
	require.NoError(t, err)
	assert.Equal(t, int64(500), q.Redeemable.Int64())
	assert.Equal(t, int64(20), q.Allowance.Int64())
	assert.Equal(t, int64(3), q.Destination.Int64())
}

func TestRefreshIsStable(t *testing.T) {
	sess := newSession(t, redeemtest.New(big.NewInt(9)))
	a, err := redeem.Reader{}.Refresh(context.Background(), sess)
	require.NoError(t, err)
	b, err := redeem.Reader{}.Refresh(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRefreshError(t *testing.T) {
	l := redeemtest.New(big.NewInt(1))
	boom := errors.New("rpc down")
	l.ReadErr = boom
	q, err := redeem.Reader{}.Refresh(context.Background(), newSession(t, l))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, q.Redeemable)
}

func TestApproveBalanceMode(t *testing.T) {
	l := redeemtest.New(big.NewInt(750))
	sess := newSession(t, l)
	i := newIssuer(t, settings())

	tx, amount, err := i.Approve(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, int64(750), amount.Int64())

	_, err = redeem.Confirm(context.Background(), tx)
	require.NoError(t, err)

	q, err := redeem.Reader{}.Refresh(context.Background(), sess)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, q.Allowance.Cmp(amount), 0)
}

func TestApproveFixedMode(t *testing.T) {
	l := redeemtest.New(big.NewInt(5))
	s := settings()
	s.ApproveMode = redeem.ApproveFixed
	s.ApproveUnits = 3

	_, amount, err := newIssuer(t, s).Approve(context.Background(), newSession(t, l))
	require.NoError(t, err)
	assert.Equal(t, chain.Units(3, 18), amount)
	require.Len(t, l.Approvals, 1)
	assert.Equal(t, chain.Units(3, 18), l.Approvals[0])
}

func TestApproveNotConnected(t *testing.T) {
	_, _, err := newIssuer(t, settings()).Approve(context.Background(), nil)
	assert.ErrorIs(t, err, redeem.ErrNotConnected)
}

func TestRedeemRejectsBadAmountBeforeLedger(t *testing.T) {
	l := redeemtest.New(big.NewInt(5))
	sess := newSession(t, l)
	i := newIssuer(t, settings())

	twoTo256 := new(big.Int).Lsh(big.NewInt(1), 256)
	for _, amount := range []*big.Int{
		nil, big.NewInt(0), big.NewInt(-4),
		twoTo256, new(big.Int).Add(twoTo256, big.NewInt(5)),
	} {
		_, err := i.Redeem(context.Background(), sess, amount)
		assert.ErrorIs(t, err, redeem.ErrInvalidAmount)
		_, err = i.PermitAndRedeem(context.Background(), sess, amount)
		assert.ErrorIs(t, err, redeem.ErrInvalidAmount)
	}
	assert.Empty(t, l.Redeems)
	assert.Empty(t, l.Permits)
	assert.Zero(t, l.BalanceReads)
}

func TestRedeemNotConnected(t *testing.T) {
	_, err := newIssuer(t, settings()).Redeem(context.Background(), nil, big.NewInt(1))
	assert.ErrorIs(t, err, redeem.ErrNotConnected)
}

func TestRedeemWithAllowance(t *testing.T) {
	l := redeemtest.New(oneToken)
	l.Set(func(l *redeemtest.Ledger) { l.Allow.Set(oneToken) })
	sess := newSession(t, l)

	tx, err := newIssuer(t, settings()).Redeem(context.Background(), sess, oneToken)
	require.NoError(t, err)
	_, err = redeem.Confirm(context.Background(), tx)
	require.NoError(t, err)

	require.Len(t, l.Redeems, 1)
	assert.Equal(t, oneToken, l.Redeems[0])
	q, err := redeem.Reader{}.Refresh(context.Background(), sess)
	require.NoError(t, err)
	assert.Zero(t, q.Redeemable.Sign())
	assert.Equal(t, oneToken, q.Destination)
}

func TestRedeemRevertSurfaces(t *testing.T) {
	l := redeemtest.New(oneToken)
	l.RevertTxs = true
	tx, err := newIssuer(t, settings()).Redeem(context.Background(), newSession(t, l), big.NewInt(1))
	require.NoError(t, err)

	_, err = redeem.Confirm(context.Background(), tx)
	var rerr *chain.RevertError
	assert.ErrorAs(t, err, &rerr)
}

func TestPermitAndRedeem(t *testing.T) {
	l := redeemtest.New(oneToken)
	l.Set(func(l *redeemtest.Ledger) { l.Nonce.SetInt64(4) })
	sess := newSession(t, l)

	_, err := newIssuer(t, settings()).PermitAndRedeem(context.Background(), sess, big.NewInt(100))
	require.NoError(t, err)

	require.Len(t, l.Permits, 1)
	call := l.Permits[0]
	assert.Equal(t, int64(100), call.Amount.Int64())
	assert.Equal(t, int64(1_700_000_000+10_000), call.Permit.Deadline.Int64())
	assert.Contains(t, []uint8{27, 28}, call.Permit.V)

	// The signature must verify against a permit carrying the nonce read
	// at signing time.
	req := redeem.PermitRequest{
		TokenName: "Liquid Staked Drip",
		Version:   "1",
		ChainID:   big.NewInt(11155111),
		Token:     redeemtest.Token,
		Owner:     sess.Account,
		Spender:   redeemtest.Helper,
		Value:     big.NewInt(100),
		Nonce:     big.NewInt(4),
		Deadline:  call.Permit.Deadline,
	}
	sig := append(append(call.Permit.R[:], call.Permit.S[:]...), call.Permit.V)
	got, err := wallet.RecoverTypedData(req.TypedData(), sig)
	require.NoError(t, err)
	assert.Equal(t, sess.Account, got)
}

func TestPermitUsesFreshNonce(t *testing.T) {
	l := redeemtest.New(oneToken)
	sess := newSession(t, l)
	strat, err := redeem.NewStrategy(redeem.StrategyPermit, settings(), nil)
	require.NoError(t, err)
	p := strat.(*redeem.PermitRedeem)

	req, _, err := p.Sign(context.Background(), sess, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), req.Nonce.Int64())

	l.Set(func(l *redeemtest.Ledger) { l.Nonce.SetInt64(7) })
	req, _, err = p.Sign(context.Background(), sess, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(7), req.Nonce.Int64())
}

func TestPermitStrategyRoutesRedeem(t *testing.T) {
	l := redeemtest.New(oneToken)
	s := settings()
	s.Strategy = redeem.StrategyPermit
	i := newIssuer(t, s)
	assert.Equal(t, redeem.StrategyPermit, i.Strategy().Name())

	_, err := i.Redeem(context.Background(), newSession(t, l), big.NewInt(5))
	require.NoError(t, err)
	assert.Len(t, l.Permits, 1)
	assert.Empty(t, l.Redeems)

	require.NoError(t, i.SetStrategy(redeem.StrategyApprove))
	_, err = i.Redeem(context.Background(), newSession(t, l), big.NewInt(5))
	require.NoError(t, err)
	assert.Len(t, l.Redeems, 1)

	assert.Error(t, i.SetStrategy("yolo"))
}

type brokenSigner struct {
	addr common.Address
	sig  []byte
	err  error
}

func (b brokenSigner) Address() common.Address { return b.addr }
func (b brokenSigner) Lock()                   {}
func (b brokenSigner) SignTypedData(context.Context, apitypes.TypedData) ([]byte, error) {
	return b.sig, b.err
}

func TestPermitSignatureErrors(t *testing.T) {
	l := redeemtest.New(oneToken)
	sess := newSession(t, l)

	cases := map[string]brokenSigner{
		"signer fails": {addr: sess.Account, err: errors.New("device unplugged")},
		"short sig":    {addr: sess.Account, sig: make([]byte, 64)},
		"wrong signer": {addr: sess.Account, sig: append(make([]byte, 64), 27)},
	}
	for name, signer := range cases {
		t.Run(name, func(t *testing.T) {
			s := *sess
			s.Signer = signer
			_, err := newIssuer(t, settings()).PermitAndRedeem(context.Background(), &s, big.NewInt(1))
			assert.ErrorIs(t, err, redeem.ErrSignature)
		})
	}
	assert.Empty(t, l.Permits)
}

func TestSplitSignature(t *testing.T) {
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i)
	}
	sig[64] = 1
	p, err := redeem.SplitSignature(sig, big.NewInt(99))
	require.NoError(t, err)
	assert.Equal(t, uint8(28), p.V)
	assert.Equal(t, byte(0), p.R[0])
	assert.Equal(t, byte(31), p.R[31])
	assert.Equal(t, byte(32), p.S[0])
	assert.Equal(t, int64(99), p.Deadline.Int64())

	_, err = redeem.SplitSignature(sig[:64], big.NewInt(1))
	assert.ErrorIs(t, err, redeem.ErrSignature)

	sig[64] = 30
	_, err = redeem.SplitSignature(sig, big.NewInt(1))
	assert.ErrorIs(t, err, redeem.ErrSignature)
}

func TestThreshold(t *testing.T) {
	s := settings()
	s.ThresholdUnits = 2
	assert.Equal(t, chain.Units(2, 18), newIssuer(t, s).Threshold())
}

func TestTransfer(t *testing.T) {
	l := redeemtest.New(oneToken)
	l.Set(func(l *redeemtest.Ledger) { l.Stable.SetInt64(1000) })
	i := newIssuer(t, settings())
	to := common.HexToAddress("0x00000000000000000000000000000000000000c0")

	_, err := i.Transfer(context.Background(), newSession(t, l), to, big.NewInt(0))
	assert.ErrorIs(t, err, redeem.ErrInvalidAmount)

	tx, err := i.Transfer(context.Background(), newSession(t, l), to, big.NewInt(250))
	require.NoError(t, err)
	_, err = redeem.Confirm(context.Background(), tx)
	require.NoError(t, err)
	bal, err := l.StableBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(750), bal.Int64())
}
