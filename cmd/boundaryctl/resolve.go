package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/model"
)

func (c *cli) regions(names []string) ([]model.Region, error) {
	if len(names) == 0 {
		return c.app.Catalog.All(), nil
	}
	out := make([]model.Region, 0, len(names))
	for _, n := range names {
		r, err := c.app.Catalog.Lookup(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// resolve runs the startup path: cache, then bundle. Nothing is fetched.
func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [region...]",
		Short: "Show where each region's boundary resolves from without fetching",
		RunE: func(cmd *cobra.Command, args []string) error {
			regions, err := c.regions(args)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REGION\tSOURCE\tKIND")
			for _, res := range c.app.Resolver.ResolveAll(cmd.Context(), regions) {
				kind := "-"
				if res.Boundary != nil {
					kind = res.Boundary.Kind()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Region, res.Source, kind)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) fetchCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "fetch <region>",
		Short: "Fetch a region's boundary from the remote service and cache it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Catalog.Lookup(args[0])
			if err != nil {
				return err
			}
			b := c.app.Resolver.ResolveOnDemand(cmd.Context(), r)
			if b == nil {
				return errors.New("no boundary available for " + r.Name)
			}
			if raw {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), b.String())
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d bytes\n", r.Name, b.Kind(), len(b.Bytes()))
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the GeoJSON geometry")
	return cmd
}
