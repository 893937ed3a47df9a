package cmd

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/browserbench/browserbench/benchmark"
)

func getListCmd(c *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available benchmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fprintf(w, "NAME\tENABLED\tDESCRIPTION\n")
			for _, t := range benchmark.All() {
				fprintf(w, "%s\t%t\t%s\n", t.Name, t.IsEnabled(c.gs.goos), t.Description)
			}
			return w.Flush() //nolint:wrapcheck
		},
	}
}
