package cmd

import (
	"github.com/spf13/cobra"

	"github.com/browserbench/browserbench/benchmark"
)

func getFlagsCmd(_ *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "flags <benchmark>",
		Short: "Print the flags the browser must be started with",
		Long: `Print the flags the browser must be started with, one per line.

browserbench never starts the browser itself: start it with these flags and
pass its DevTools websocket URL to "browserbench run".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTest(args[0])
			if err != nil {
				return err
			}
			for _, arg := range benchmark.BrowserArgs(t) {
				fprintf(cmd.OutOrStdout(), "%s\n", arg)
			}
			return nil
		},
	}
}
