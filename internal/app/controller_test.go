package app_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/app"
	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem/redeemtest"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var oneToken = chain.Units(1, 18)

type fakeConnector struct {
	ledger *redeemtest.Ledger
	signer *wallet.Signer
	err    error

	mu           sync.Mutex
	seq          uint64
	onDisconnect session.DisconnectFunc
	resets       int
	hold         func() // runs before Connect returns
}

func (f *fakeConnector) Connect(_ context.Context, onDisconnect session.DisconnectFunc) (*session.Session, error) {
	f.mu.Lock()
	hold := f.hold
	f.mu.Unlock()
	if hold != nil {
		hold()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.seq++
	f.onDisconnect = onDisconnect
	return &session.Session{
		ID:      f.seq,
		ChainID: 11155111,
		Account: f.signer.Address(),
		Wallet:  "alice",
		Network: "sepolia",
		Label:   "Ethereum Sepolia",
		Mode:    "testnet",
		Ledger:  f.ledger,
		Signer:  f.signer,
	}, nil
}

func (f *fakeConnector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

// drop simulates the watcher ending session id.
func (f *fakeConnector) drop(id uint64, cause error) {
	f.mu.Lock()
	cb := f.onDisconnect
	f.mu.Unlock()
	cb(id, cause)
}

func settings() config.RedeemSettings {
	return config.RedeemSettings{
		Strategy:        redeem.StrategyApprove,
		ApproveMode:     redeem.ApproveBalance,
		ApproveUnits:    1,
		TokenDecimals:   18,
		PermitWindowSec: 10_000,
		PermitVersion:   "1",
		ThresholdUnits:  1,
	}
}

func newController(t *testing.T, l *redeemtest.Ledger, s config.RedeemSettings) (*app.Controller, *fakeConnector) {
	t.Helper()
	m := wallet.NewManager()
	_, err := m.AddWithKey("alice", testKey)
	require.NoError(t, err)
	signer, err := m.Unlock("alice")
	require.NoError(t, err)

	issuer, err := redeem.NewIssuer(s, zaptest.NewLogger(t))
	require.NoError(t, err)
	conn := &fakeConnector{ledger: l, signer: signer}
	return app.New(conn, issuer, zaptest.NewLogger(t)), conn
}

func TestInitialState(t *testing.T) {
	c, _ := newController(t, redeemtest.New(oneToken), settings())
	s := c.State()
	assert.Equal(t, app.Disconnected, s.Phase)
	assert.False(t, s.Busy)
	assert.Nil(t, s.Account)
	assert.Nil(t, s.Quantities)
	assert.Equal(t, redeem.StrategyApprove, s.Strategy)
	assert.Equal(t, app.ActionConnect, app.NextAction(s, c.Threshold()))
}

func TestActionsRequireSession(t *testing.T) {
	c, _ := newController(t, redeemtest.New(oneToken), settings())
	ctx := context.Background()

	assert.ErrorIs(t, c.Refresh(ctx), redeem.ErrNotConnected)
	_, err := c.Approve(ctx)
	assert.ErrorIs(t, err, redeem.ErrNotConnected)
	_, err = c.Redeem(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, redeem.ErrNotConnected)
	_, err = c.PermitAndRedeem(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, redeem.ErrNotConnected)
	assert.Equal(t, app.Disconnected, c.State().Phase)
}

func TestConnectLoadsQuantities(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, _ := newController(t, l, settings())

	require.NoError(t, c.Connect(context.Background()))
	s := c.State()
	assert.Equal(t, app.Connected, s.Phase)
	require.NotNil(t, s.Account)
	assert.Equal(t, "alice", s.Account.Wallet)
	assert.Equal(t, int64(11155111), s.Account.ChainID)
	require.NotNil(t, s.Quantities)
	assert.Equal(t, oneToken, s.Quantities.Redeemable)
	assert.Zero(t, s.Quantities.Allowance.Sign())
	assert.Equal(t, app.ActionApprove, app.NextAction(s, c.Threshold()))
}

func TestConnectFailure(t *testing.T) {
	c, conn := newController(t, redeemtest.New(oneToken), settings())
	conn.err = session.ErrConfiguration

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, session.ErrConfiguration)
	s := c.State()
	assert.Equal(t, app.Disconnected, s.Phase)
	assert.False(t, s.Busy)
	assert.ErrorIs(t, s.Err, session.ErrConfiguration)
}

func TestApproveThenRedeem(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, _ := newController(t, l, settings())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	res, err := c.Approve(ctx)
	require.NoError(t, err)
	assert.Equal(t, oneToken, res.Amount)
	require.NotNil(t, res.Receipt)

	s := c.State()
	assert.Equal(t, app.Connected, s.Phase)
	assert.Equal(t, res.Tx, s.LastTx)
	assert.GreaterOrEqual(t, s.Quantities.Allowance.Cmp(oneToken), 0)
	assert.Equal(t, app.ActionRedeem, app.NextAction(s, c.Threshold()))

	res, err = c.Redeem(ctx, oneToken)
	require.NoError(t, err)
	s = c.State()
	assert.Equal(t, res.Tx, s.LastTx)
	assert.Zero(t, s.Quantities.Redeemable.Sign())
	assert.Equal(t, oneToken, s.Quantities.Destination)
	assert.Equal(t, app.ActionApprove, app.NextAction(s, c.Threshold()))
}

func TestRedeemRejectsInvalidAmount(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, _ := newController(t, l, settings())
	require.NoError(t, c.Connect(context.Background()))

	for _, n := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1)} {
		_, err := c.Redeem(context.Background(), n)
		assert.ErrorIs(t, err, redeem.ErrInvalidAmount)
	}
	assert.Empty(t, l.Redeems)
	assert.Equal(t, app.Connected, c.State().Phase)
}

func TestPermitStrategy(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, _ := newController(t, l, settings())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, c.SetStrategy(redeem.StrategyPermit))
	s := c.State()
	assert.Equal(t, redeem.StrategyPermit, s.Strategy)
	assert.Equal(t, app.ActionRedeem, app.NextAction(s, c.Threshold()))

	_, err := c.Redeem(ctx, big.NewInt(40))
	require.NoError(t, err)
	require.Len(t, l.Permits, 1)
	assert.Empty(t, l.Approvals)
	assert.Equal(t, int64(40), c.State().Quantities.Destination.Int64())

	assert.Error(t, c.SetStrategy("yolo"))
	assert.Equal(t, redeem.StrategyPermit, c.State().Strategy)
}

func TestPermitAndRedeemIgnoresStrategy(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, _ := newController(t, l, settings())
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.PermitAndRedeem(context.Background(), big.NewInt(3))
	require.NoError(t, err)
	assert.Len(t, l.Permits, 1)
	assert.Empty(t, l.Redeems)
}

func TestRevertIsReported(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, _ := newController(t, l, settings())
	require.NoError(t, c.Connect(context.Background()))
	l.Set(func(l *redeemtest.Ledger) { l.RevertTxs = true })

	_, err := c.Approve(context.Background())
	var rerr *chain.RevertError
	require.ErrorAs(t, err, &rerr)

	s := c.State()
	assert.False(t, s.Busy)
	assert.Equal(t, app.Connected, s.Phase)
	assert.ErrorAs(t, s.Err, &rerr)
	assert.Zero(t, s.Quantities.Allowance.Sign())
}

// blockBalanceRead makes the n-th redeemable balance read wait for release.
func blockBalanceRead(l *redeemtest.Ledger, n int) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	out := make(chan struct{})
	l.Set(func(l *redeemtest.Ledger) {
		l.OnBalanceRead = func(call int) {
			if call == n {
				close(in)
				<-out
			}
		}
	})
	return in, func() { close(out) }
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestBusyGate(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, _ := newController(t, l, settings())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx)) // balance read #1

	entered, release := blockBalanceRead(l, 2) // approve amount read
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Approve(ctx)
		assert.NoError(t, err)
	}()
	wait(t, entered)

	s := c.State()
	assert.True(t, s.Busy)
	assert.Equal(t, app.Approving, s.Phase)

	_, err := c.Approve(ctx)
	assert.ErrorIs(t, err, app.ErrBusy)
	_, err = c.Redeem(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, app.ErrBusy)
	_, err = c.PermitAndRedeem(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, app.ErrBusy)
	assert.ErrorIs(t, c.SetStrategy(redeem.StrategyPermit), app.ErrBusy)

	release()
	wait(t, done)
	assert.False(t, c.State().Busy)
	assert.Len(t, l.Approvals, 1)
}

func TestStaleRefreshDiscarded(t *testing.T) {
	l := redeemtest.New(big.NewInt(100))
	c, _ := newController(t, l, settings())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	entered, release := blockBalanceRead(l, 2)
	staleErr := make(chan error, 1)
	go func() { staleErr <- c.Refresh(ctx) }()
	wait(t, entered)

	l.Set(func(l *redeemtest.Ledger) { l.Balance.SetInt64(200) })
	require.NoError(t, c.Refresh(ctx))
	assert.Equal(t, int64(200), c.State().Quantities.Redeemable.Int64())

	l.Set(func(l *redeemtest.Ledger) { l.Balance.SetInt64(999) })
	release()
	assert.ErrorIs(t, <-staleErr, app.ErrStale)
	assert.Equal(t, int64(200), c.State().Quantities.Redeemable.Int64())
}

func TestRefreshFromOldSessionDiscarded(t *testing.T) {
	l := redeemtest.New(big.NewInt(100))
	c, conn := newController(t, l, settings())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	entered, release := blockBalanceRead(l, 2)
	staleErr := make(chan error, 1)
	go func() { staleErr <- c.Refresh(ctx) }()
	wait(t, entered)

	c.Disconnect()
	assert.Equal(t, 1, conn.resets)
	release()
	assert.ErrorIs(t, <-staleErr, app.ErrStale)

	s := c.State()
	assert.Equal(t, app.Disconnected, s.Phase)
	assert.Nil(t, s.Quantities)
	assert.Nil(t, s.Account)
}

func TestExternalDisconnect(t *testing.T) {
	c, conn := newController(t, redeemtest.New(oneToken), settings())
	require.NoError(t, c.Connect(context.Background()))
	sess := c.Session()
	require.NotNil(t, sess)

	conn.drop(sess.ID+10, errors.New("someone else"))
	assert.Equal(t, app.Connected, c.State().Phase)

	conn.drop(sess.ID, session.ErrChainChanged)
	s := c.State()
	assert.Equal(t, app.Disconnected, s.Phase)
	assert.Nil(t, s.Quantities)
	assert.Nil(t, s.Account)
	assert.ErrorIs(t, s.Err, session.ErrChainChanged)
	assert.Nil(t, c.Session())
	assert.Equal(t, app.ActionConnect, app.NextAction(s, c.Threshold()))

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, sess.ID+1, c.Session().ID)
}

func TestDisconnectDuringConnect(t *testing.T) {
	c, conn := newController(t, redeemtest.New(oneToken), settings())
	ctx := context.Background()

	entered, release := make(chan struct{}), make(chan struct{})
	conn.hold = func() {
		close(entered)
		<-release
	}
	done := make(chan error, 1)
	go func() { done <- c.Connect(ctx) }()
	wait(t, entered)
	assert.Equal(t, app.Connecting, c.State().Phase)

	c.Disconnect()
	close(release)
	assert.ErrorIs(t, <-done, session.ErrDisconnected)

	s := c.State()
	assert.Equal(t, app.Disconnected, s.Phase)
	assert.False(t, s.Busy)
	assert.Nil(t, s.Account)
	assert.Nil(t, c.Session())
	assert.Equal(t, 2, conn.resets, "the late session is reset too")

	conn.hold = nil
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, app.Connected, c.State().Phase)
}

func TestDisconnectCauseSurvivesFinishedAction(t *testing.T) {
	l := redeemtest.New(oneToken)
	c, conn := newController(t, l, settings())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	sess := c.Session()

	entered, release := blockBalanceRead(l, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Approve(ctx)
	}()
	wait(t, entered)

	conn.drop(sess.ID, session.ErrChainChanged)
	release()
	wait(t, done)

	s := c.State()
	assert.Equal(t, app.Disconnected, s.Phase)
	assert.False(t, s.Busy)
	assert.ErrorIs(t, s.Err, session.ErrChainChanged)
}

func TestSubscribeNewestWins(t *testing.T) {
	c, _ := newController(t, redeemtest.New(oneToken), settings())
	ch, cancel := c.Subscribe()
	defer cancel()

	first := <-ch
	assert.Equal(t, app.Disconnected, first.Phase)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.SetStrategy(redeem.StrategyPermit))

	got := <-ch
	assert.Equal(t, app.Connected, got.Phase)
	assert.Equal(t, redeem.StrategyPermit, got.Strategy)
	assert.NotNil(t, got.Quantities)
	select {
	case extra := <-ch:
		t.Fatalf("expected a single pending snapshot, got another: %+v", extra)
	default:
	}
}

func TestNextAction(t *testing.T) {
	threshold := chain.Units(1, 18)
	acct := &app.Account{Wallet: "alice"}
	q := func(allow *big.Int) *redeem.Quantities {
		return &redeem.Quantities{Redeemable: new(big.Int), Allowance: allow, Destination: new(big.Int)}
	}

	tests := []struct {
		name  string
		state app.State
		want  app.Action
	}{
		{"disconnected", app.State{}, app.ActionConnect},
		{"no quantities yet", app.State{Account: acct}, app.ActionApprove},
		{"zero allowance", app.State{Account: acct, Quantities: q(big.NewInt(0))}, app.ActionApprove},
		{"below threshold", app.State{Account: acct, Quantities: q(big.NewInt(999))}, app.ActionApprove},
		{"at threshold", app.State{Account: acct, Quantities: q(chain.Units(1, 18))}, app.ActionRedeem},
		{"permit", app.State{Account: acct, Strategy: redeem.StrategyPermit, Quantities: q(big.NewInt(0))}, app.ActionRedeem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, app.NextAction(tt.state, threshold))
		})
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "redeeming", app.Redeeming.String())
	assert.Equal(t, "approve", app.ActionApprove.String())
}
