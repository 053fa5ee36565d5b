package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"github.com/spf13/cobra"
)

var walletKeyFlag string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallets",
}

var walletAddCmd = &cobra.Command{
	Use:   "add <name> [address]",
	Short: "Add a wallet",
	Long: `Add a signing wallet with --key (the key goes to the OS keychain) or a
watch-only wallet with an address. Only signing wallets can connect.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		mgr, err := newWalletManager()
		if err != nil {
			return err
		}

		if walletKeyFlag != "" {
			w, err := mgr.AddWithKey(name, walletKeyFlag)
			if err != nil {
				return err
			}
			fmt.Println(ui.Success(fmt.Sprintf("Signing wallet %q added: %s", name, ui.Addr(w.Address))))
			fmt.Println(ui.Hint(fmt.Sprintf("Set as default with: lsdredeem wallet use %s", name)))
			return nil
		}

		if len(args) < 2 {
			return fmt.Errorf("address required for watch-only wallet\n  Usage: lsdredeem wallet add <name> <address>\n  Or for signing: lsdredeem wallet add <name> --key <private-key>")
		}
		if err := mgr.Add(name, args[1]); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Watch-only wallet %q added: %s", name, ui.Addr(args[1]))))
		fmt.Println(ui.Warn("Watch-only wallets cannot approve or redeem."))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newWalletManager()
		if err != nil {
			return err
		}
		wallets, err := mgr.List()
		if err != nil {
			return err
		}
		if len(wallets) == 0 {
			fmt.Println(ui.Info("No wallets configured yet."))
			fmt.Println(ui.Hint("Add one with: lsdredeem wallet add myWallet --key <private-key>"))
			return nil
		}

		sel, connected := session.NewSelectionCache(cfg.Dir()).Load()
		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 16},
			{Title: "Address", Width: 44},
			{Title: "Type", Width: 12},
			{Title: "Default", Width: 8},
			{Title: "Connected", Width: 10},
		})
		for _, w := range wallets {
			def, conn := "", ""
			if w.IsDefault {
				def = ui.StyleSuccess.Render("✓")
			}
			if connected && sel.Wallet == w.Name {
				conn = ui.StyleSuccess.Render(sel.Network)
			}
			t.AddRow(ui.Row{
				ui.Val(w.Name),
				ui.Addr(w.Address),
				ui.Meta(walletTypeLabel(w.Type)),
				def,
				conn,
			})
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta(fmt.Sprintf("%d wallet(s) configured", len(wallets))))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a wallet and its stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !assumeYes && !ui.ConfirmDanger(fmt.Sprintf("Remove wallet %q?", name)) {
			fmt.Println(ui.Meta("Cancelled."))
			return nil
		}
		mgr, err := newWalletManager()
		if err != nil {
			return err
		}
		if err := mgr.Remove(name); err != nil {
			return err
		}

		cache := session.NewSelectionCache(cfg.Dir())
		if sel, ok := cache.Load(); ok && sel.Wallet == name {
			cache.Clear() //nolint:errcheck
		}
		if cfg.DefaultWallet == name {
			cfg.DefaultWallet = ""
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		fmt.Println(ui.Success(fmt.Sprintf("Wallet %q removed.", name)))
		return nil
	},
}

var walletUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the default wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		mgr, err := newWalletManager()
		if err != nil {
			return err
		}
		if err := mgr.SetDefault(name); err != nil {
			return err
		}
		cfg.DefaultWallet = name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Default wallet set to %q.", name)))
		fmt.Println(ui.Hint("A cached connection still wins; run lsdredeem disconnect to switch now."))
		return nil
	},
}

func init() {
	walletAddCmd.Flags().StringVar(&walletKeyFlag, "key", "", "private key for signing wallet (stored in OS keychain)")
	walletCmd.AddCommand(walletAddCmd, walletListCmd, walletRemoveCmd, walletUseCmd)
}

// walletTypeLabel converts an internal wallet type to a user-friendly label.
func walletTypeLabel(t string) string {
	switch t {
	case wallet.TypeSigning:
		return "read-write"
	default:
		return t
	}
}
