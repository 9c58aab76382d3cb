package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// bundleCmd lists the bundled snapshot. Keys written under another cache
// version show "-" as they are never read.
func (c *cli) bundleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bundle",
		Short: "List regions available in the bundled boundary snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scheme := c.app.Store.Scheme()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tREGION")
			for _, k := range c.app.Bundle.Keys() {
				name, ok := scheme.Region(k)
				if !ok {
					name = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\n", k, name)
			}
			return tw.Flush()
		},
	}
}
