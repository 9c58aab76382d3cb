package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/catalog"
)

func (c *cli) regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the region catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat := c.app.Catalog
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPOSTCODE\tPOPULATION\tDENSITY\tCOLOR\tAGGREGATE")
			for _, r := range cat.All() {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%t\n",
					r.Name, r.Postcode, r.Population, catalog.Density(r), cat.Color(r.Name), cat.IsAggregate(r.Name))
			}
			return tw.Flush()
		},
	}
}
