// Package app holds the session controller: the single owner of the state
// shown by the CLI and the interactive screen.
package app

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/logging"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var (
	// ErrBusy rejects an action while another one is in flight.
	ErrBusy = errors.New("another action is in progress")

	// ErrStale is returned by a refresh whose result was superseded by a
	// newer refresh or a different session.
	ErrStale = errors.New("refresh result superseded")
)

// Connector is the connection manager the controller drives.
// *session.Connector implements it.
type Connector interface {
	Connect(ctx context.Context, onDisconnect session.DisconnectFunc) (*session.Session, error)
	Reset()
}

// Result describes a confirmed transaction.
type Result struct {
	Tx      common.Hash
	Amount  *big.Int
	Receipt *types.Receipt
}

// Controller serialises user actions and publishes State snapshots.
type Controller struct {
	conn   Connector
	reader redeem.Reader
	issuer *redeem.Issuer
	log    *zap.Logger

	mu          sync.Mutex
	state       State
	sess        *session.Session
	seq         uint64 // latest refresh token
	dropConnect bool   // Disconnect arrived while a connect was in flight
	subs        map[int]chan State
	nextSub     int
}

// New returns a disconnected controller.
func New(conn Connector, issuer *redeem.Issuer, log *zap.Logger) *Controller {
	log = logging.OrNop(log)
	return &Controller{
		conn:   conn,
		issuer: issuer,
		log:    log,
		state:  State{Phase: Disconnected, Strategy: issuer.Strategy().Name()},
		subs:   make(map[int]chan State),
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the live session, or nil.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Threshold is the allowance NextAction compares against.
func (c *Controller) Threshold() *big.Int { return c.issuer.Threshold() }

// Issuer exposes the transaction issuer for previews.
func (c *Controller) Issuer() *redeem.Issuer { return c.issuer }

// Subscribe returns a channel that always holds the newest snapshot, and a
// function that cancels the subscription.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 1)
	ch <- c.state
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// publish sends the current state to every subscriber, replacing any
// unread value. Callers hold c.mu.
func (c *Controller) publish() {
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

// begin claims the busy gate for an action.
func (c *Controller) begin(phase Phase, needSession bool) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Busy {
		return nil, ErrBusy
	}
	if needSession && c.sess == nil {
		return nil, redeem.ErrNotConnected
	}
	c.state.Busy = true
	c.state.Phase = phase
	c.state.Err = nil
	c.publish()
	return c.sess, nil
}

// end releases the busy gate. A session that ended meanwhile keeps the
// Disconnected phase and the error that ended it.
func (c *Controller) end(sessID uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Busy = false
	if c.sess != nil && c.sess.ID == sessID {
		c.state.Phase = Connected
		c.state.Err = err
	}
	c.publish()
}

func (c *Controller) setTx(sessID uint64, hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil && c.sess.ID == sessID {
		c.state.LastTx = hash
		c.publish()
	}
}

// Connect establishes a session and then refreshes the quantities. A
// refresh failure is recorded in State but does not fail the connect. A
// Disconnect issued while connecting wins: the new session is torn down and
// Connect returns session.ErrDisconnected.
func (c *Controller) Connect(ctx context.Context) error {
	if c.Session() != nil {
		return nil
	}
	if _, err := c.begin(Connecting, false); err != nil {
		return err
	}
	sess, err := c.conn.Connect(ctx, c.onDisconnect)

	c.mu.Lock()
	c.state.Busy = false
	if c.dropConnect {
		c.dropConnect = false
		c.state.Phase = Disconnected
		c.publish()
		c.mu.Unlock()
		if err != nil {
			return err
		}
		c.log.Info("dropping session opened after disconnect", zap.Uint64("session", sess.ID))
		c.conn.Reset()
		return session.ErrDisconnected
	}
	if err != nil {
		c.state.Phase = Disconnected
		c.state.Err = err
		c.publish()
		c.mu.Unlock()
		return err
	}
	c.sess = sess
	c.state = State{
		Phase:    Connected,
		Account:  accountOf(sess),
		Strategy: c.state.Strategy,
	}
	c.publish()
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
		c.log.Warn("refresh after connect", zap.Error(err))
	}
	return nil
}

// onDisconnect handles a session ending underneath us.
func (c *Controller) onDisconnect(id uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.ID != id {
		return
	}
	c.log.Info("session lost", zap.Uint64("session", id), zap.Error(cause))
	c.sess = nil
	c.state = State{Phase: Disconnected, Busy: c.state.Busy, Strategy: c.state.Strategy, Err: cause}
	c.publish()
}

// Disconnect ends the session and forgets the cached selection. A connect
// still in flight is dropped when it returns.
func (c *Controller) Disconnect() {
	c.conn.Reset()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Busy && c.state.Phase == Connecting {
		c.dropConnect = true
	}
	c.sess = nil
	c.state = State{Phase: Disconnected, Busy: c.state.Busy, Strategy: c.state.Strategy}
	c.publish()
}

// Refresh re-reads the quantities. Only the newest refresh for the current
// session may update State; older ones return ErrStale.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return redeem.ErrNotConnected
	}
	c.seq++
	token, sess := c.seq, c.sess
	if c.state.Phase == Connected {
		c.state.Phase = Refreshing
		c.publish()
	}
	c.mu.Unlock()

	q, err := c.reader.Refresh(ctx, sess)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.seq || c.sess == nil || c.sess.ID != sess.ID {
		c.log.Debug("discarding stale refresh",
			zap.Uint64("token", token),
			zap.Uint64("latest", c.seq),
			zap.Uint64("session", sess.ID),
		)
		return ErrStale
	}
	if c.state.Phase == Refreshing {
		c.state.Phase = Connected
	}
	if err != nil {
		c.state.Err = err
		c.publish()
		return err
	}
	c.state.Quantities = &q
	c.state.Err = nil
	c.publish()
	return nil
}

// Approve grants the helper an allowance, waits for it, and refreshes.
func (c *Controller) Approve(ctx context.Context) (Result, error) {
	sess, err := c.begin(Approving, true)
	if err != nil {
		return Result{}, err
	}
	var res Result
	tx, amount, err := c.issuer.Approve(ctx, sess)
	if err == nil {
		res.Tx, res.Amount = tx.Hash, amount
		c.setTx(sess.ID, tx.Hash)
		res.Receipt, err = redeem.Confirm(ctx, tx)
	}
	return c.finish(ctx, sess, res, err)
}

// Redeem redeems amount with the selected strategy.
func (c *Controller) Redeem(ctx context.Context, amount *big.Int) (Result, error) {
	return c.redeem(ctx, amount, c.issuer.Redeem)
}

// PermitAndRedeem redeems amount through a signed permit.
func (c *Controller) PermitAndRedeem(ctx context.Context, amount *big.Int) (Result, error) {
	return c.redeem(ctx, amount, c.issuer.PermitAndRedeem)
}

type redeemFunc func(context.Context, *session.Session, *big.Int) (*chain.PendingTx, error)

func (c *Controller) redeem(ctx context.Context, amount *big.Int, submit redeemFunc) (Result, error) {
	if err := redeem.CheckAmount(amount); err != nil {
		return Result{}, err
	}
	sess, err := c.begin(Redeeming, true)
	if err != nil {
		return Result{}, err
	}
	res := Result{Amount: amount}
	tx, err := submit(ctx, sess, amount)
	if err == nil {
		res.Tx = tx.Hash
		c.setTx(sess.ID, tx.Hash)
		res.Receipt, err = redeem.Confirm(ctx, tx)
	}
	return c.finish(ctx, sess, res, err)
}

// finish releases the gate and refreshes after a confirmed transaction.
func (c *Controller) finish(ctx context.Context, sess *session.Session, res Result, err error) (Result, error) {
	c.end(sess.ID, err)
	if err != nil {
		return res, err
	}
	if rerr := c.Refresh(ctx); rerr != nil && !errors.Is(rerr, ErrStale) {
		c.log.Warn("refresh after transaction", zap.String("tx", res.Tx.Hex()), zap.Error(rerr))
	}
	return res, nil
}

// SetStrategy switches between the approve and permit strategies.
func (c *Controller) SetStrategy(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Busy {
		return ErrBusy
	}
	if err := c.issuer.SetStrategy(name); err != nil {
		return err
	}
	c.state.Strategy = name
	c.publish()
	return nil
}
