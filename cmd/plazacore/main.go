// Command plazacore administers facilities and drives the allocation
// engine from the command line. Storage and blob backends are selected
// through PLAZACORE_* environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "plazacore",
		Short:         "Plaza allocation engine",
		Long:          "plazacore assigns prioritized requests to facilities with bounded capacity.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newFacilitiesCmd(opts),
		newLoadCmd(opts),
		newProcessCmd(opts),
		newProcessOneCmd(opts),
		newRebalanceCmd(opts),
		newDedupeCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func newLogger(opts *cliOptions) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}
