package app

import (
	"math/big"

	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/ethereum/go-ethereum/common"
)

// Phase is where the controller is in the connect/approve/redeem cycle.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Refreshing
	Approving
	Redeeming
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Refreshing:
		return "refreshing"
	case Approving:
		return "approving"
	case Redeeming:
		return "redeeming"
	}
	return "unknown"
}

// Account summarises the connected session for display.
type Account struct {
	SessionID uint64
	Address   common.Address
	ChainID   int64
	Wallet    string
	Network   string
	Label     string
	Mode      string
	RPC       string
}

func accountOf(s *session.Session) *Account {
	return &Account{
		SessionID: s.ID,
		Address:   s.Account,
		ChainID:   s.ChainID,
		Wallet:    s.Wallet,
		Network:   s.Network,
		Label:     s.Label,
		Mode:      s.Mode,
		RPC:       s.RPC,
	}
}

// State is one published snapshot. Subscribers must not modify it.
type State struct {
	Phase      Phase
	Busy       bool
	Account    *Account           // nil when disconnected
	Quantities *redeem.Quantities // nil until the first refresh succeeds
	Strategy   string
	LastTx     common.Hash
	Err        error
}

// Connected reports whether a session is live.
func (s State) Connected() bool { return s.Account != nil }

// Action is what the user should do next.
type Action int

const (
	ActionConnect Action = iota
	ActionApprove
	ActionRedeem
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "connect"
	case ActionApprove:
		return "approve"
	case ActionRedeem:
		return "redeem"
	}
	return "unknown"
}

// NextAction picks the next step: connect when there is no session, redeem
// when the permit strategy is active or the allowance has reached threshold,
// approve otherwise.
func NextAction(s State, threshold *big.Int) Action {
	if !s.Connected() {
		return ActionConnect
	}
	if s.Strategy == redeem.StrategyPermit {
		return ActionRedeem
	}
	if s.Quantities != nil && s.Quantities.Allowance != nil && s.Quantities.Allowance.Cmp(threshold) >= 0 {
		return ActionRedeem
	}
	return ActionApprove
}
