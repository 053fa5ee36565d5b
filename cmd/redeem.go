package cmd

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Mohsinsiddi/lsdredeem/internal/app"
	"github.com/Mohsinsiddi/lsdredeem/internal/contract"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var redeemStrategy string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show redeemable balance, allowance and destination balance",
	Args:  cobra.NoArgs,
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
		pairs := quantityPairs(st.Quantities)
		if sess := rt.ctrl.Session(); sess != nil {
			stable, err := sess.Ledger.StableBalance(cmd.Context())
			switch {
			case err == nil:
				pairs = append(pairs, [2]string{"Stablecoin", ui.Val(stable.String())})
			case !errors.Is(err, contract.ErrNoStablecoin):
				pairs = append(pairs, [2]string{"Stablecoin", ui.Err(err.Error())})
			}
		}
		fmt.Println(ui.KeyValueBlock(fmt.Sprintf("%s on %s", ui.TruncateAddr(st.Account.Address.Hex()), st.Account.Label), pairs))
		fmt.Println(ui.Hint(nextStepHint(st, rt.ctrl.Threshold())))
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Grant the redemption helper an allowance",
	Long: `Approve the redemption helper to spend the redeemable token.

With approve_mode=balance (default) the whole current balance is approved;
with approve_mode=fixed, approve_units whole tokens are approved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		st, err := rt.connect(ctx)
		if err != nil {
			return err
		}
		sess := rt.ctrl.Session()
		want, err := rt.ctrl.Issuer().ApproveAmount(ctx, sess)
		if err != nil {
			return err
		}
		if want.Sign() == 0 {
			fmt.Println(ui.Warn("Approving zero: the redeemable balance is empty."))
		}

		fmt.Println(ui.KeyValueBlock("Approve", [][2]string{
			{"Token", ui.Addr(sess.Ledger.RedeemableToken().Hex())},
			{"Spender", ui.Addr(sess.Ledger.Helper().Hex())},
			{"Amount", ui.Val(amount(want))},
			{"Mode", cfg.Redeem.ApproveMode},
			{"From", ui.Addr(st.Account.Address.Hex())},
		}))
		if !confirm("Send approve transaction?") {
			return session.ErrUserRejected
		}

		var res app.Result
		err = ui.Spin("Waiting for confirmation...", func() error {
			res, err = rt.ctrl.Approve(ctx)
			return err
		})
		if err != nil {
			return err
		}
		st = rt.ctrl.State()
		printResult("Approved", st, res)
		if st.Quantities != nil {
			fmt.Println(ui.Meta("  allowance now " + amount(st.Quantities.Allowance)))
		}
		return nil
	},
}

var redeemCmd = &cobra.Command{
	Use:   "redeem [amount]",
	Short: "Redeem an amount of the redeemable token (raw base units)",
	Long: `Redeem through the redemption helper.

The amount is in raw base units. With --strategy approve (default) the
helper must already hold enough allowance; --strategy permit signs an
EIP-2612 permit and redeems in a single transaction.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRedeem(cmd, args, redeemStrategy, false)
	},
}

var permitRedeemCmd = &cobra.Command{
	Use:   "permit-redeem [amount]",
	Short: "Sign a permit and redeem in one transaction",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRedeem(cmd, args, redeem.StrategyPermit, true)
	},
}

// readAmount takes the amount from args or prompts for it.
func readAmount(args []string) (*big.Int, error) {
	var raw string
	if len(args) > 0 {
		raw = args[0]
	} else {
		raw = ui.PromptInput("Amount to redeem (base units)", "")
	}
	return redeem.ParseAmount(raw)
}

// redeemWarnings lists reasons the redeem is likely to revert.
func redeemWarnings(st app.State, amt *big.Int) []string {
	q := st.Quantities
	if q == nil {
		return nil
	}
	var out []string
	if q.Redeemable != nil && amt.Cmp(q.Redeemable) > 0 {
		out = append(out, fmt.Sprintf("amount exceeds the redeemable balance %s", q.Redeemable))
	}
	if st.Strategy == redeem.StrategyApprove && q.Allowance != nil && amt.Cmp(q.Allowance) > 0 {
		out = append(out, fmt.Sprintf("amount exceeds the allowance %s; run lsdredeem approve or use --strategy permit", q.Allowance))
	}
	return out
}

func runRedeem(cmd *cobra.Command, args []string, strategy string, forcePermit bool) error {
	ctx := cmd.Context()
	amt, err := readAmount(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if strategy != "" {
		if err := rt.ctrl.SetStrategy(strategy); err != nil {
			return err
		}
	}
	st, err := rt.connect(ctx)
	if err != nil {
		return err
	}

	fmt.Println(ui.KeyValueBlock("Redeem", [][2]string{
		{"Amount", ui.Val(amount(amt))},
		{"Helper", ui.Addr(rt.ctrl.Session().Ledger.Helper().Hex())},
		{"Strategy", st.Strategy},
		{"From", ui.Addr(st.Account.Address.Hex())},
	}))
	warnings := redeemWarnings(st, amt)
	for _, w := range warnings {
		fmt.Println(ui.Warn(w))
	}
	var ok bool
	if len(warnings) > 0 {
		ok = assumeYes || ui.ConfirmDanger("The transaction will probably revert. Send anyway?")
	} else {
		ok = confirm("Send redeem transaction?")
	}
	if !ok {
		return session.ErrUserRejected
	}

	var res app.Result
	err = ui.Spin("Waiting for confirmation...", func() error {
		if forcePermit {
			res, err = rt.ctrl.PermitAndRedeem(ctx, amt)
		} else {
			res, err = rt.ctrl.Redeem(ctx, amt)
		}
		return err
	})
	if err != nil {
		return err
	}
	st = rt.ctrl.State()
	printResult("Redeemed", st, res)
	if st.Quantities != nil {
		fmt.Println(ui.KeyValueBlock("", quantityPairs(st.Quantities)))
	}
	return nil
}

var transferCmd = &cobra.Command{
	Use:   "transfer <to> <amount>",
	Short: "Send stablecoin to an address (raw base units)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid recipient address %q", args[0])
		}
		to := common.HexToAddress(args[0])
		amt, err := redeem.ParseAmount(args[1])
		if err != nil {
			return err
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		st, err := rt.connect(ctx)
		if err != nil {
			return err
		}
		sess := rt.ctrl.Session()
		bal, err := sess.Ledger.StableBalance(ctx)
		if err != nil {
			return err
		}

		fmt.Println(ui.KeyValueBlock("Transfer", [][2]string{
			{"To", ui.Addr(to.Hex())},
			{"Amount", ui.Val(amt.String())},
			{"Balance", bal.String()},
		}))
		if amt.Cmp(bal) > 0 {
			fmt.Println(ui.Warn("amount exceeds the stablecoin balance"))
		}
		if !confirm("Send transfer?") {
			return session.ErrUserRejected
		}

		res := app.Result{Amount: amt}
		err = ui.Spin("Waiting for confirmation...", func() error {
			tx, err := rt.ctrl.Issuer().Transfer(ctx, sess, to, amt)
			if err != nil {
				return err
			}
			res.Tx = tx.Hash
			res.Receipt, err = redeem.Confirm(ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Sent %s", amt)))
		fmt.Println(ui.Meta("  tx: ") + ui.Addr(txURL(st.Account, res.Tx)))
		return nil
	},
}

func init() {
	redeemCmd.Flags().StringVar(&redeemStrategy, "strategy", "", "approve or permit (default: config redeem.strategy)")
}
