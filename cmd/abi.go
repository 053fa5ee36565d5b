package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/lsdredeem/internal/contract"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/spf13/cobra"
)

var abiCmd = &cobra.Command{
	Use:   "abi",
	Short: "Inspect the embedded contract ABIs",
}

var abiListCmd = &cobra.Command{
	Use:   "list",
	Short: "List embedded ABIs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, b := range contract.AllBuiltins() {
			fmt.Printf("  %s  %s\n", ui.Val(fmt.Sprintf("%-14s", b.ID)), ui.Meta(b.Description))
		}
		fmt.Println(ui.Hint("Show functions with: lsdredeem abi show <id>"))
		return nil
	},
}

var abiShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the functions and selectors of an embedded ABI",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, ok := contract.GetBuiltin(args[0])
		if !ok {
			return fmt.Errorf("unknown ABI %q: run `lsdredeem abi list`", args[0])
		}
		t := ui.NewTable([]ui.Column{
			{Title: "Selector", Width: 12},
			{Title: "Function", Width: 60},
			{Title: "Kind", Width: 8},
		})
		for _, e := range b.ABI {
			var kind string
			switch {
			case e.IsReadFunction():
				kind = "read"
			case e.IsWriteFunction():
				kind = "write"
			default:
				continue
			}
			t.AddRow(ui.Row{ui.Meta(e.Selector()), ui.Val(e.Signature()), kind})
		}
		fmt.Println(ui.StyleTitle.Render(b.Name))
		fmt.Println(t.Render())
		return nil
	},
}

func init() {
	abiCmd.AddCommand(abiListCmd, abiShowCmd)
}
