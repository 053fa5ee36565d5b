package cmd

import (
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/Mohsinsiddi/lsdredeem/internal/wallet"
	"github.com/spf13/cobra"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Interactive connect, approve and redeem screen",
	Long: `Full-screen redeem screen. Balances refresh on the watch interval.

Keys: c connect · x disconnect · r refresh · s switch strategy
      a approve · digits + enter redeem · q quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Prompts cannot run inside the alt screen, so the wallet is chosen
		// up front and the in-screen connect never asks.
		if err := prepickWallet(); err != nil {
			return err
		}
		rt, err := newRuntime(session.WithWalletSelector(noPrompt))
		if err != nil {
			return err
		}
		defer rt.close()

		if _, ok := rt.conn.Cache().Load(); ok {
			if _, err := rt.connect(ctx); err != nil {
				fmt.Println(ui.Warn("Auto-connect failed: " + err.Error()))
			}
		} else if err := unlockAhead(rt.mgr); err != nil {
			fmt.Println(ui.Warn("Wallet not unlocked: " + err.Error()))
		}

		m := ui.NewRedeemModel(ctx, rt.ctrl, ui.RedeemOptions{
			Decimals: cfg.Redeem.TokenDecimals,
			Interval: cfg.Watch(),
		})
		defer m.Close()
		screenActive.Store(true)
		defer screenActive.Store(false)
		return ui.RunRedeem(m)
	},
}

// prepickWallet sets --wallet when connecting would otherwise prompt.
func prepickWallet() error {
	if walletFlag != "" {
		return nil
	}
	if _, ok := session.NewSelectionCache(cfg.Dir()).Load(); ok {
		return nil
	}
	mgr, err := newWalletManager()
	if err != nil {
		return err
	}
	all, err := mgr.List()
	if err != nil {
		return err
	}
	signing := signingWallets(all)
	if len(signing) < 2 {
		return nil
	}
	for _, w := range signing {
		if w.IsDefault {
			return nil
		}
	}
	name, err := pickWallet(signing)
	if err != nil {
		return err
	}
	if name == "" {
		return session.ErrUserRejected
	}
	walletFlag = name
	return nil
}

// unlockAhead opens the wallet an in-screen connect would pick, so a file
// keychain asks for its password before the screen starts and keeps it.
func unlockAhead(mgr *wallet.Manager) error {
	name := walletFlag
	if name == "" {
		if d := mgr.Default(); d != nil {
			name = d.Name
		} else {
			all, err := mgr.List()
			if err != nil {
				return err
			}
			signing := signingWallets(all)
			if len(signing) != 1 {
				return nil
			}
			name = signing[0].Name
		}
	}
	s, err := mgr.Unlock(name)
	if err != nil {
		return err
	}
	s.Lock()
	return nil
}

func signingWallets(all []*wallet.Wallet) []*wallet.Wallet {
	var out []*wallet.Wallet
	for _, w := range all {
		if w.Type == wallet.TypeSigning {
			out = append(out, w)
		}
	}
	return out
}

func noPrompt([]*wallet.Wallet) (string, error) {
	return "", errors.New("several signing wallets and no default: restart with --wallet <name>")
}
