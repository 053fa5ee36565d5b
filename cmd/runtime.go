package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync/atomic"

	"github.com/99designs/keyring"
	"github.com/Mohsinsiddi/lsdredeem/internal/app"
	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
)

// openKeystore is replaced in tests.
var openKeystore = func(dir string) (wallet.KeystoreBackend, error) {
	return wallet.OpenKeystore(dir, keychainPrompt)
}

// screenActive is set while the full-screen app owns the terminal.
var screenActive atomic.Bool

// keychainPrompt reads the file-keychain password from the terminal. It
// refuses while the app screen is up, which has no room for a raw prompt.
func keychainPrompt(msg string) (string, error) {
	if screenActive.Load() {
		return "", errors.New("keychain password cannot be asked inside the app screen: quit and run `lsdredeem connect` first")
	}
	return keyring.TerminalPrompt(msg)
}

// newWalletManager creates a Manager backed by the config-dir JSON store and
// the OS keychain.
func newWalletManager() (*wallet.Manager, error) {
	ks, err := openKeystore(filepath.Join(cfg.Dir(), "keys"))
	if err != nil {
		return nil, err
	}
	store := wallet.NewJSONStore(filepath.Join(cfg.Dir(), "wallets.json"))
	return wallet.NewManager(wallet.WithStore(store), wallet.WithKeystore(ks)), nil
}

// runtime is everything a session-backed command needs.
type runtime struct {
	mgr  *wallet.Manager
	conn *session.Connector
	ctrl *app.Controller
}

// newRuntime wires wallets, connector, issuer and controller from the
// loaded config and global flags.
func newRuntime(opts ...session.Option) (*runtime, error) {
	mgr, err := newWalletManager()
	if err != nil {
		return nil, err
	}
	issuer, err := redeem.NewIssuer(cfg.Redeem, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrConfiguration, err)
	}

	base := []session.Option{
		session.WithLogger(log),
		session.WithWalletSelector(pickWallet),
	}
	if walletFlag != "" {
		base = append(base, session.WithWallet(walletFlag))
	}
	if netFlag != "" {
		base = append(base, session.WithNetwork(netFlag))
	}
	conn := session.NewConnector(cfg, mgr, append(base, opts...)...)
	return &runtime{mgr: mgr, conn: conn, ctrl: app.New(conn, issuer, log)}, nil
}

// connect establishes the session and loads the first readings.
func (r *runtime) connect(ctx context.Context) (app.State, error) {
	fmt.Println(ui.Meta("Connecting..."))
	if err := r.ctrl.Connect(ctx); err != nil {
		return app.State{}, err
	}
	st := r.ctrl.State()
	if st.Quantities == nil && st.Err != nil {
		return st, fmt.Errorf("reading balances: %w", st.Err)
	}
	return st, nil
}

// close ends the session for this process but keeps the cached selection.
func (r *runtime) close() { r.conn.Close() }

// pickWallet asks the user to choose among several signing wallets.
func pickWallet(wallets []*wallet.Wallet) (string, error) {
	return ui.PickItem("Select wallet", walletItems(wallets))
}

func walletItems(wallets []*wallet.Wallet) []ui.PickerItem {
	items := make([]ui.PickerItem, len(wallets))
	for i, w := range wallets {
		items[i] = ui.PickerItem{
			Label:    w.Name,
			SubLabel: ui.TruncateAddr(w.Address),
			Value:    w.Name,
			Current:  w.IsDefault,
		}
	}
	return items
}

// confirm asks before broadcasting unless --yes was given.
func confirm(prompt string) bool {
	return assumeYes || ui.Confirm(prompt)
}

// amount renders raw base units with the configured decimals.
func amount(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", chain.FormatUnits(v, cfg.Redeem.TokenDecimals), v)
}

// txURL links hash on the session network's explorer.
func txURL(acct *app.Account, hash common.Hash) string {
	if acct == nil {
		return hash.Hex()
	}
	c, err := chain.NewRegistry().GetByName(acct.Network)
	if err != nil || c.Explorer(acct.Mode) == "" {
		return hash.Hex()
	}
	return c.TxURL(acct.Mode, hash.Hex())
}

func accountPairs(a *app.Account) [][2]string {
	return [][2]string{
		{"Wallet", ui.Val(a.Wallet)},
		{"Address", ui.Addr(a.Address.Hex())},
		{"Network", ui.ChainName(a.Label)},
		{"Chain ID", fmt.Sprintf("%d", a.ChainID)},
		{"RPC", ui.Meta(a.RPC)},
	}
}

func quantityPairs(q *redeem.Quantities) [][2]string {
	if q == nil {
		return [][2]string{{"Balances", ui.Meta("unavailable")}}
	}
	return [][2]string{
		{"Redeemable", ui.Val(amount(q.Redeemable))},
		{"Allowance", ui.Val(amount(q.Allowance))},
		{"Destination", ui.Val(amount(q.Destination))},
	}
}

// nextStepHint names the command for the next action.
func nextStepHint(st app.State, threshold *big.Int) string {
	switch app.NextAction(st, threshold) {
	case app.ActionConnect:
		return "Connect with: lsdredeem connect"
	case app.ActionApprove:
		return "Approve the helper with: lsdredeem approve  (or redeem with --strategy permit)"
	default:
		return "Redeem with: lsdredeem redeem <amount>"
	}
}

// printResult reports a confirmed transaction.
func printResult(verb string, st app.State, res app.Result) {
	fmt.Println(ui.Success(fmt.Sprintf("%s %s", verb, amount(res.Amount))))
	fmt.Println(ui.Meta("  tx: ") + ui.Addr(txURL(st.Account, res.Tx)))
	if res.Receipt != nil {
		fmt.Println(ui.Meta(fmt.Sprintf("  block %s · gas used %d", res.Receipt.BlockNumber, res.Receipt.GasUsed)))
	}
}
