package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/app"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/config"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/logger"
)

type cli struct {
	envFile string
	level   string
	remote  string
	app     *app.App
	load    func(files ...string) (config.Config, error)
}

func newRootCmd() *cobra.Command { return buildRoot(config.Load) }

func buildRoot(load func(files ...string) (config.Config, error)) *cobra.Command {
	c := &cli{load: load}

	root := &cobra.Command{
		Use:           "boundaryctl",
		Short:         "Inspect and maintain the suburb boundary cache",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env", ".env", "optional dotenv file")
	root.PersistentFlags().StringVar(&c.level, "log-level", "warn", "log level")
	root.PersistentFlags().StringVar(&c.remote, "remote", "", "override REMOTE_DRIVER (nominatim|overpass|none)")

	root.AddCommand(
		c.regionsCmd(),
		c.resolveCmd(),
		c.fetchCmd(),
		c.cacheCmd(),
		c.bundleCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := c.load(c.envFile)
	if err != nil {
		return err
	}
	if c.remote != "" {
		cfg.Remote.Driver = c.remote
	}
	zl := logger.Build(logger.Config{
		Level:     c.level,
		Service:   "boundaryctl",
		Component: cmd.Name(),
	}, cmd.ErrOrStderr())
	observability.Init(nil, false)

	a, err := app.New(cmd.Context(), cfg, logger.NewSlog(&zl))
	if err != nil {
		return err
	}
	c.app = a
	return nil
}
