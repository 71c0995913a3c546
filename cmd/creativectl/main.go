// Command creativectl runs lifecycle operations by hand: a single engine run,
// a warehouse refresh, a dry evaluation of one ad, the performance report and
// hook clip maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "creativectl",
		Short:         "Operate the ad creative lifecycle engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolP("json", "j", false, "Output as JSON")

	root.AddCommand(runCmd())
	root.AddCommand(aggregateCmd())
	root.AddCommand(evaluateCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(clipsCmd())
	return root
}
