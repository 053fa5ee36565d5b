package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"github.com/Mohsinsiddi/lsdredeem/internal/rpc"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/spf13/cobra"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "List networks and probe their RPCs",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported networks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := ui.NewTable([]ui.Column{
			{Title: "Network", Width: 12},
			{Title: "Name", Width: 22},
			{Title: "Chain ID", Width: 10, Align: ui.AlignRight},
			{Title: "Contracts", Width: 10},
			{Title: "Default", Width: 8},
		})
		for _, c := range chain.NewRegistry().All() {
			t.AddRow(networkRow(c, cfg.NetworkMode))
		}
		fmt.Println(t.Render())
		fmt.Println(ui.Meta("Mode: " + cfg.NetworkMode + "  (switch with --testnet / --mainnet)"))
		return nil
	},
}

func networkRow(c chain.Chain, mode string) ui.Row {
	slug := c.Slug(mode)
	contracts := ui.Meta("-")
	if _, err := cfg.Deployment(slug); err == nil {
		contracts = ui.StyleSuccess.Render("✓")
	}
	def := ""
	if c.Name == cfg.DefaultNetwork {
		def = ui.StyleSuccess.Render("✓")
	}
	return ui.Row{
		ui.ChainName(slug),
		c.Label(mode),
		fmt.Sprintf("%d", c.ID(mode)),
		contracts,
		def,
	}
}

var networkRPCsCmd = &cobra.Command{
	Use:   "rpcs [network]",
	Short: "Probe a network's RPC endpoints",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.DefaultNetwork
		if netFlag != "" {
			name = netFlag
		}
		if len(args) > 0 {
			name = args[0]
		}
		c, err := chain.NewRegistry().GetByName(name)
		if err != nil {
			return fmt.Errorf("unknown network %q", name)
		}
		mode := cfg.NetworkMode
		if name == c.TestnetSlug {
			mode = "testnet"
		}

		urls := append([]string{}, cfg.GetRPCs(c.Slug(mode))...)
		if u, err := c.ProviderURL(mode, cfg.ProviderKey); err == nil {
			urls = append(urls, u)
		}
		urls = append(urls, c.RPCs(mode)...)

		var eps []rpc.Endpoint
		ui.Spin(fmt.Sprintf("Probing %d endpoints...", len(urls)), func() error { //nolint:errcheck
			eps = rpc.ProbeAll(cmd.Context(), urls)
			return nil
		})

		t := ui.NewTable([]ui.Column{
			{Title: "URL", Width: 52},
			{Title: "Latency", Width: 10, Align: ui.AlignRight},
			{Title: "Block", Width: 12, Align: ui.AlignRight},
			{Title: "Status", Width: 10},
		})
		for _, e := range eps {
			status := ui.StyleSuccess.Render("ok")
			if !e.Healthy {
				status = ui.StyleError.Render("down")
			}
			t.AddRow(ui.Row{
				ui.Meta(redactURL(e.URL, cfg.ProviderKey)),
				e.Latency.Round(time.Millisecond).String(),
				fmt.Sprintf("%d", e.BlockNumber),
				status,
			})
		}
		fmt.Println(t.Render())
		return nil
	},
}

// redactURL hides the provider key inside a provider URL.
func redactURL(url, key string) string {
	if key == "" {
		return url
	}
	return strings.ReplaceAll(url, key, maskKey(key))
}

func init() {
	networkCmd.AddCommand(networkListCmd, networkRPCsCmd)
}
