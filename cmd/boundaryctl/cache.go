package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Operate on the shared boundary cache container",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached region names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				names, err := c.app.Store.Regions(cmd.Context())
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <region>",
			Short: "Print the cached geometry for a region",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, ok := c.app.Store.Get(cmd.Context(), args[0])
				if !ok {
					return fmt.Errorf("%s: not cached (key %s)", args[0], c.app.Store.Key(args[0]))
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), b.String())
				return err
			},
		},
		&cobra.Command{
			Use:   "evict <region...>",
			Short: "Remove regions from the cache",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.app.Store.Delete(cmd.Context(), args...); err != nil {
					return err
				}
				c.app.Resolver.Forget(args...)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop the whole cache container",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := c.app.Store.Clear(cmd.Context()); err != nil {
					return err
				}
				c.app.Resolver.Forget()
				return nil
			},
		},
	)
	return cmd
}
