package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/Mohsinsiddi/lsdredeem/internal/config"
	"github.com/Mohsinsiddi/lsdredeem/internal/logging"
	"github.com/Mohsinsiddi/lsdredeem/internal/redeem"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/lsdredeem/cmd.Version=1.2.3" .
var Version = "1.0.0"

var (
	cfgDir     string
	cfg        *config.Config
	log        *zap.Logger
	verbose    bool
	testnet    bool
	mainnet    bool
	walletFlag string
	netFlag    string
	assumeYes  bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "lsdredeem",
	Short: "Redeem liquid staked tokens from the terminal",
	Long: `lsdredeem connects a wallet, approves the redemption helper and redeems
liquid staked tokens for their destination token.

  lsdredeem connect               # pick a wallet and network
  lsdredeem balance               # redeemable, allowance, destination
  lsdredeem approve               # grant the helper an allowance
  lsdredeem redeem 1000000        # redeem raw base units
  lsdredeem app                   # interactive screen

Global flags --testnet and --mainnet override the configured network mode
for a single invocation.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if testnet {
			cfg.NetworkMode = "testnet"
		}
		if mainnet {
			cfg.NetworkMode = "mainnet"
		}
		log, err = logging.New(cfg.Dir(), verbose)
		if err != nil {
			return fmt.Errorf("starting logger: %w", err)
		}
		log.Debug("command", zap.String("name", cmd.CommandPath()), zap.String("config", cfg.Dir()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync() //nolint:errcheck
		}
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(os.Stderr, ui.Hint(hint))
		}
		os.Exit(1)
	}
}

// hintFor suggests the next step for errors the user can fix.
func hintFor(err error) string {
	switch {
	case errors.Is(err, config.ErrMissing):
		return "Configure contracts with: lsdredeem config set-contract <network> <field> <address>  (or lsdredeem sync run)"
	case errors.Is(err, session.ErrConfiguration):
		return "Check lsdredeem config show and lsdredeem wallet list"
	case errors.Is(err, session.ErrUserRejected):
		return "Nothing was sent."
	case errors.Is(err, redeem.ErrInvalidAmount):
		return "Amounts are whole numbers of base units, e.g. 1000000000000000000 for one 18-decimal token."
	case errors.Is(err, session.ErrChainChanged), errors.Is(err, session.ErrDisconnected):
		return "Reconnect with: lsdredeem connect"
	}
	return ""
}

func init() {
	// LSDREDEEM_CONFIG_DIR env var overrides --config flag default.
	if envDir := os.Getenv("LSDREDEEM_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.lsdredeem)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log to stderr instead of the log file")
	pf.BoolVar(&testnet, "testnet", false, "use testnet instead of mainnet")
	pf.BoolVar(&mainnet, "mainnet", false, "use mainnet instead of testnet")
	pf.StringVarP(&walletFlag, "wallet", "w", "", "wallet to connect (default: cached, then default wallet)")
	pf.StringVarP(&netFlag, "network", "n", "", "network slug, e.g. ethereum or sepolia")
	pf.BoolVarP(&assumeYes, "yes", "y", false, "skip confirmation prompts")
	rootCmd.MarkFlagsMutuallyExclusive("testnet", "mainnet")

	// Top-level help opens with the banner; subcommand help stays plain.
	help := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		if c == rootCmd {
			fmt.Fprint(c.OutOrStdout(), ui.Banner(Version))
		}
		help(c, args)
	})

	rootCmd.AddCommand(
		connectCmd,
		disconnectCmd,
		statusCmd,
		balanceCmd,
		approveCmd,
		redeemCmd,
		permitRedeemCmd,
		transferCmd,
		walletCmd,
		configCmd,
		syncCmd,
		networkCmd,
		abiCmd,
		appCmd,
	)
}
