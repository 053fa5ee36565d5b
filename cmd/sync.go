package cmd

import (
	"fmt"
	"sort"

	csync "github.com/Mohsinsiddi/lsdredeem/internal/sync"
	"github.com/Mohsinsiddi/lsdredeem/internal/ui"
	"github.com/spf13/cobra"
)

var syncWatch bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync contract deployments from a manifest",
}

var syncSetSourceCmd = &cobra.Command{
	Use:   "set-source <url-or-path>",
	Short: "Set the deployments manifest (http(s) URL or local JSON/YAML file)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := csync.New(cfg, log).SetSource(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Success("Sync source set to: " + args[0]))
		fmt.Println(ui.Hint("Fetch it with: lsdredeem sync run"))
		return nil
	},
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the manifest and update contract deployments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := csync.New(cfg, log)
		if syncWatch {
			fmt.Println(ui.Meta(fmt.Sprintf("Syncing every %s. Press Ctrl+C to stop.", cfg.Watch())))
			return s.Watch(cmd.Context(), cfg.Watch())
		}

		var rep csync.Report
		err := ui.Spin("Fetching manifest...", func() error {
			var err error
			rep, err = s.Run(cmd.Context())
			return err
		})
		printReport(rep)
		return err
	},
}

func printReport(rep csync.Report) {
	for _, n := range rep.Updated {
		fmt.Println(ui.Success("updated " + n))
	}
	skipped := make([]string, 0, len(rep.Skipped))
	for n := range rep.Skipped {
		skipped = append(skipped, n)
	}
	sort.Strings(skipped)
	for _, n := range skipped {
		fmt.Println(ui.Warn(fmt.Sprintf("skipped %s: %v", n, rep.Skipped[n])))
	}
}

func init() {
	syncRunCmd.Flags().BoolVar(&syncWatch, "watch", false, "keep syncing on the watch interval")
	syncCmd.AddCommand(syncSetSourceCmd, syncRunCmd)
}
