package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/session"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show current configuration",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.ProviderKey != "" {
			shown.ProviderKey = maskKey(shown.ProviderKey)
		}
		data, err := json.MarshalIndent(&shown, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("Current Configuration"))
		fmt.Println(string(data))
		fmt.Println(ui.Meta("Config directory: " + cfg.Dir()))
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <provider-key>",
	Short: "Store the RPC provider API key (INFURA_ID overrides it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.SetProviderKey(strings.TrimSpace(args[0]))
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success("Provider key saved."))
		return nil
	},
}

var configSetNetworkCmd = &cobra.Command{
	Use:   "set-network <network>",
	Short: "Set the default network",
	Long: `Set the default network by chain name (ethereum) or testnet slug
(sepolia). A testnet slug also persists testnet mode; --mainnet and
--testnet persist the mode explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.ToLower(args[0])
		c, err := chain.NewRegistry().GetByName(name)
		if err != nil {
			return fmt.Errorf("unknown network %q: run `lsdredeem network list` to see all networks", name)
		}
		cfg.DefaultNetwork = c.Name
		if name == c.TestnetSlug {
			cfg.NetworkMode = "testnet"
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		session.NewSelectionCache(cfg.Dir()).Clear() //nolint:errcheck
		fmt.Println(ui.Success(fmt.Sprintf("Default network set to %s (%s)",
			ui.ChainName(c.Label(cfg.NetworkMode)), cfg.NetworkMode)))
		return nil
	},
}

var configSetContractCmd = &cobra.Command{
	Use:   "set-contract <network> <field> <value>",
	Short: "Set one contract address for a network",
	Long: `Set one field of a network's deployment. Fields:

  redeemable_token       token being redeemed (ERC-20 + EIP-2612 permit)
  destination_token      token received
  destination_token_id   ERC-1155 id of the destination token
  destination_standard   erc1155 (default) or erc20
  redemption_helper      contract that performs the redemption
  stablecoin             optional ERC-20 used by lsdredeem transfer`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, field, value := args[0], args[1], args[2]
		if _, err := chain.NewRegistry().GetByName(network); err != nil {
			return fmt.Errorf("unknown network %q", network)
		}
		if err := cfg.SetContract(network, field, value); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("%s.%s = %s", strings.ToLower(network), field, value)))
		if _, err := cfg.Deployment(network); err != nil {
			fmt.Println(ui.Meta("  still incomplete: " + err.Error()))
		}
		return nil
	},
}

var configSetStrategyCmd = &cobra.Command{
	Use:       "set-strategy <approve|permit>",
	Short:     "Set the default redeem strategy",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"approve", "permit"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRedeemOption("strategy", args[0])
	},
}

var configSetRedeemCmd = &cobra.Command{
	Use:   "set-redeem <key> <value>",
	Short: "Set a redeem option",
	Long: `Set a redeem option. Keys:

  strategy            approve | permit
  approve_mode        balance | fixed
  approve_units       whole tokens approved in fixed mode
  threshold_units     allowance (whole tokens) at which redeem is offered
  token_decimals      decimals of the redeemable token
  permit_window_sec   permit deadline offset from the latest block
  permit_version      EIP-712 domain version of the token`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRedeemOption(args[0], args[1])
	},
}

func setRedeemOption(key, value string) error {
	if err := cfg.SetRedeemOption(key, value); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Println(ui.Success(fmt.Sprintf("redeem.%s = %s", key, value)))
	return nil
}

var configAddRPCCmd = &cobra.Command{
	Use:   "add-rpc <network> <url>",
	Short: "Add a custom RPC, tried before the provider and public RPCs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, url := strings.ToLower(args[0]), args[1]
		if err := cfg.AddRPC(network, url); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Added %s for %s", url, network)))
		return nil
	},
}

var configRemoveRPCCmd = &cobra.Command{
	Use:   "remove-rpc <network> <url>",
	Short: "Remove a custom RPC",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		network, url := strings.ToLower(args[0]), args[1]
		if err := cfg.RemoveRPC(network, url); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Removed %s from %s", url, network)))
		return nil
	},
}

var configContractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List configured deployments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Contracts) == 0 {
			fmt.Println(ui.Info("No contracts configured."))
			fmt.Println(ui.Hint("lsdredeem config set-contract sepolia redeemable_token 0x..."))
			return nil
		}
		networks := make([]string, 0, len(cfg.Contracts))
		for n := range cfg.Contracts {
			networks = append(networks, n)
		}
		sort.Strings(networks)
		for _, n := range networks {
			d := cfg.Contracts[n]
			status := ui.Success("complete")
			if err := d.Validate(); err != nil {
				status = ui.Warn(err.Error())
			}
			fmt.Println(ui.KeyValueBlock(ui.ChainName(n), [][2]string{
				{"Redeemable", ui.Addr(d.RedeemableToken)},
				{"Destination", ui.Addr(d.DestinationToken)},
				{"Token ID", d.DestinationTokenID},
				{"Standard", d.DestinationStandard},
				{"Helper", ui.Addr(d.RedemptionHelper)},
				{"Stablecoin", ui.Addr(d.Stablecoin)},
				{"Status", status},
			}))
		}
		return nil
	},
}

// maskKey keeps the first and last four characters of a secret.
func maskKey(k string) string {
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + strings.Repeat("*", len(k)-8) + k[len(k)-4:]
}

func init() {
	configCmd.AddCommand(
		configShowCmd,
		configSetKeyCmd,
		configSetNetworkCmd,
		configSetContractCmd,
		configSetStrategyCmd,
		configSetRedeemCmd,
		configAddRPCCmd,
		configRemoveRPCCmd,
		configContractsCmd,
	)
}
