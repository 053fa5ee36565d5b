package cmd

import (
	"fmt"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet and remember the selection",
	Long: `Pick a signing wallet, select the fastest RPC for the network, check the
chain ID and read the current balances.

The wallet and network are cached, so later commands reconnect to them
without asking. Forget them with: lsdredeem disconnect`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		st, err := rt.connect(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println(ui.Success("Connected!"))
		pairs := append(accountPairs(st.Account), quantityPairs(st.Quantities)...)
		pairs = append(pairs, [2]string{"Strategy", st.Strategy})
		fmt.Println(ui.KeyValueBlock("Session", pairs))
		fmt.Println(ui.Hint(nextStepHint(st, rt.ctrl.Threshold())))
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the cached wallet and network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := session.NewSelectionCache(cfg.Dir())
		sel, ok := cache.Load()
		if err := cache.Clear(); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}
		if !ok {
			fmt.Println(ui.Meta("Not connected. Nothing to forget."))
			return nil
		}
		fmt.Println(ui.Success(fmt.Sprintf("Disconnected %s from %s.", sel.Wallet, sel.Network)))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached connection and settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, ok := session.NewSelectionCache(cfg.Dir()).Load()
		if !ok {
			fmt.Println(ui.Warn("Not connected"))
		} else {
			fmt.Println(ui.KeyValueBlock("Connection", [][2]string{
				{"Wallet", ui.Val(sel.Wallet)},
				{"Address", ui.Addr(sel.Account)},
				{"Network", ui.ChainName(sel.Network)},
				{"Chain ID", fmt.Sprintf("%d", sel.ChainID)},
				{"RPC", ui.Meta(sel.RPC)},
				{"Since", sel.ConnectedAt.Local().Format(time.DateTime)},
			}))
		}

		keySource := "not set"
		if cfg.ProviderKey != "" {
			keySource = "set"
		}
		fmt.Println(ui.KeyValueBlock("Settings", [][2]string{
			{"Default network", cfg.DefaultNetwork},
			{"Mode", cfg.NetworkMode},
			{"Default wallet", cfg.DefaultWallet},
			{"Provider key", keySource},
			{"Strategy", cfg.Redeem.Strategy},
			{"Approve mode", cfg.Redeem.ApproveMode},
		}))
		if !ok {
			fmt.Println(ui.Hint("Connect with: lsdredeem connect"))
		}
		return nil
	},
}
