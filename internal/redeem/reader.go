package redeem

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"golang.org/x/sync/errgroup"
)

// ErrNotConnected is returned by every action attempted without a session.
var ErrNotConnected = errors.New("not connected")

// Quantities are the three readings for the connected account. They are
// always published together.
type Quantities struct {
	Redeemable  *big.Int // redeemable token balance
	Allowance   *big.Int // redeemable token allowance granted to the helper
	Destination *big.Int // destination token balance
}

// Reader fetches Quantities.
type Reader struct{}

// Refresh reads the three quantities concurrently. It returns the first
// error, and no partial result.
func (Reader) Refresh(ctx context.Context, sess *session.Session) (Quantities, error) {
	if sess == nil {
		return Quantities{}, ErrNotConnected
	}
	var q Quantities
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		q.Redeemable, err = sess.Ledger.RedeemableBalance(ctx)
		if err != nil {
			return fmt.Errorf("redeemable balance: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		q.Destination, err = sess.Ledger.DestinationBalance(ctx)
		if err != nil {
			return fmt.Errorf("destination balance: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		q.Allowance, err = sess.Ledger.Allowance(ctx)
		if err != nil {
			return fmt.Errorf("allowance: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Quantities{}, err
	}
	return q, nil
}
