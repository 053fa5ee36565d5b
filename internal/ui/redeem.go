package ui

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/app"
	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// Controller is the part of *app.Controller the redeem screen drives.
type Controller interface {
	State() app.State
	Subscribe() (<-chan app.State, func())
	Threshold() *big.Int
	Connect(ctx context.Context) error
	Disconnect()
	Refresh(ctx context.Context) error
	Approve(ctx context.Context) (app.Result, error)
	Redeem(ctx context.Context, amount *big.Int) (app.Result, error)
	SetStrategy(name string) error
}

// RedeemOptions tune the redeem screen.
type RedeemOptions struct {
	Decimals     int           // token decimals used to render readings
	Interval     time.Duration // background refresh period
	RefreshEvery time.Duration // minimum gap between manual refreshes
}

// RedeemModel is the Bubble Tea model for the interactive redeem screen.
type RedeemModel struct {
	ctx      context.Context
	ctrl     Controller
	sub      <-chan app.State
	cancel   func()
	state    app.State
	amount   string
	notice   string
	decimals int
	interval time.Duration
	limiter  *rate.Limiter
	quitting bool
}

type tickMsg time.Time
type stateMsg app.State

// actionMsg reports the outcome of a command run off the UI goroutine.
type actionMsg struct {
	action string
	res    app.Result
	err    error
}

// NewRedeemModel subscribes to ctrl. Close must be called when the screen
// exits.
func NewRedeemModel(ctx context.Context, ctrl Controller, opts RedeemOptions) RedeemModel {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.RefreshEvery <= 0 {
		opts.RefreshEvery = 2 * time.Second
	}
	sub, cancel := ctrl.Subscribe()
	return RedeemModel{
		ctx:      ctx,
		ctrl:     ctrl,
		sub:      sub,
		cancel:   cancel,
		state:    ctrl.State(),
		decimals: opts.Decimals,
		interval: opts.Interval,
		limiter:  rate.NewLimiter(rate.Every(opts.RefreshEvery), 1),
	}
}

// Close drops the state subscription.
func (m RedeemModel) Close() { m.cancel() }

// RunRedeem runs the redeem screen until the user quits.
func RunRedeem(m RedeemModel) error {
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("redeem screen: %w", err)
	}
	return nil
}

func (m RedeemModel) Init() tea.Cmd {
	return tea.Batch(m.waitState(), tick(m.interval))
}

func (m RedeemModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state = app.State(msg)
		return m, m.waitState()

	case tickMsg:
		if m.state.Connected() && !m.state.Busy {
			return m, tea.Batch(m.run("refresh", m.refresh), tick(m.interval))
		}
		return m, tick(m.interval)

	case actionMsg:
		m.notice = describe(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m RedeemModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}
	if m.state.Busy {
		return m, nil
	}

	next := app.NextAction(m.state, m.ctrl.Threshold())
	switch key {
	case "c":
		if next == app.ActionConnect {
			m.notice = ""
			return m, m.run("connect", func() (app.Result, error) {
				return app.Result{}, m.ctrl.Connect(m.ctx)
			})
		}
	case "x":
		if m.state.Connected() {
			m.ctrl.Disconnect()
			m.amount, m.notice = "", ""
		}
	case "r":
		if !m.state.Connected() {
			return m, nil
		}
		if !m.limiter.Allow() {
			m.notice = "refresh throttled"
			return m, nil
		}
		return m, m.run("refresh", m.refresh)
	case "s":
		name := redeem.StrategyPermit
		if m.state.Strategy == redeem.StrategyPermit {
			name = redeem.StrategyApprove
		}
		if err := m.ctrl.SetStrategy(name); err != nil {
			m.notice = err.Error()
		} else {
			m.notice = "strategy: " + name
		}
	case "a":
		if next == app.ActionApprove {
			m.notice = ""
			return m, m.run("approve", func() (app.Result, error) {
				return m.ctrl.Approve(m.ctx)
			})
		}
	case "enter":
		if next != app.ActionRedeem {
			return m, nil
		}
		amount, err := redeem.ParseAmount(m.amount)
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.amount, m.notice = "", ""
		return m, m.run("redeem", func() (app.Result, error) {
			return m.ctrl.Redeem(m.ctx, amount)
		})
	case "backspace":
		if m.amount != "" {
			m.amount = m.amount[:len(m.amount)-1]
		}
	default:
		if next == app.ActionRedeem && msg.Type == tea.KeyRunes {
			m.amount += redeem.SanitizeAmountInput(string(msg.Runes))
		}
	}
	return m, nil
}

func (m RedeemModel) refresh() (app.Result, error) {
	return app.Result{}, m.ctrl.Refresh(m.ctx)
}

func (m RedeemModel) run(action string, fn func() (app.Result, error)) tea.Cmd {
	return func() tea.Msg {
		res, err := fn()
		return actionMsg{action: action, res: res, err: err}
	}
}

func (m RedeemModel) waitState() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		s, ok := <-sub
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func describe(msg actionMsg) string {
	switch {
	case errors.Is(msg.err, app.ErrStale):
		return ""
	case msg.err != nil:
		return msg.action + ": " + msg.err.Error()
	case msg.action == "approve":
		return fmt.Sprintf("approved %s in %s", msg.res.Amount, msg.res.Tx.Hex())
	case msg.action == "redeem":
		return fmt.Sprintf("redeemed %s in %s", msg.res.Amount, msg.res.Tx.Hex())
	}
	return ""
}

func (m RedeemModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.state

	var sb strings.Builder
	sb.WriteString(StyleTitle.Render("⚡ Redeem") + "\n")

	if !s.Connected() {
		sb.WriteString(Warn("Not connected") + "\n\n")
		if s.Phase == app.Connecting {
			sb.WriteString(Meta("connecting...") + "\n")
		}
		m.writeNotice(&sb)
		sb.WriteString("\n" + StyleMeta.Render("[c] Connect   [q] quit") + "\n")
		return sb.String()
	}

	acct := s.Account
	sb.WriteString(Success("Connected!") + "\n\n")
	pairs := [][2]string{
		{"Address", Addr(acct.Address.Hex())},
		{"Wallet", acct.Wallet},
		{"Network", ChainName(acct.Label)},
		{"Strategy", s.Strategy},
	}
	if q := s.Quantities; q != nil {
		pairs = append(pairs,
			[2]string{"Redeemable", m.units(q.Redeemable)},
			[2]string{"Allowance", m.units(q.Allowance)},
			[2]string{"Destination", m.units(q.Destination)},
		)
	} else {
		pairs = append(pairs, [2]string{"Balances", Meta("loading...")})
	}
	if s.LastTx != (common.Hash{}) {
		pairs = append(pairs, [2]string{"Last tx", Addr(s.LastTx.Hex())})
	}
	sb.WriteString(KeyValueBlock("", pairs) + "\n")

	if s.Busy {
		sb.WriteString(Meta(s.Phase.String()+"...") + "\n")
	}
	m.writeNotice(&sb)
	sb.WriteString("\n")

	switch app.NextAction(s, m.ctrl.Threshold()) {
	case app.ActionApprove:
		sb.WriteString(StyleValue.Render("[a] Approve") + "\n")
	case app.ActionRedeem:
		sb.WriteString(fmt.Sprintf("Amount: %s▏\n", Val(m.amount)))
		sb.WriteString(StyleValue.Render("[enter] Redeem") + "\n")
	}
	sb.WriteString(StyleMeta.Render("[r] refresh   [s] strategy   [x] disconnect   [q] quit") + "\n")
	return sb.String()
}

func (m RedeemModel) writeNotice(sb *strings.Builder) {
	switch {
	case m.notice != "":
		sb.WriteString(Info(m.notice) + "\n")
	case m.state.Err != nil:
		sb.WriteString(Err(m.state.Err.Error()) + "\n")
	}
}

func (m RedeemModel) units(v *big.Int) string {
	if v == nil {
		return Meta("-")
	}
	return Val(chain.FormatUnits(v, m.decimals)) + "  " + Meta(v.String())
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
