// Package app wires configuration into the cache medium, catalog, bundle,
// remote client and resolver shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/bundle"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/boundarystore"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/keys"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/medium"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/cache/sqlstore"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/catalog"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/config"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/health"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/router"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/server"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/popularity"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/remote"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/remote/nominatim"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/remote/overpass"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/resolver"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/session"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Medium   medium.Medium
	Store    *boundarystore.Store
	Bundle   *bundle.Bundle
	Catalog  *catalog.Catalog
	Remote   remote.Fetcher
	Resolver *resolver.Resolver
	Sessions *session.Manager
}

// OpenMedium connects the container medium selected by CACHE_DRIVER.
func OpenMedium(ctx context.Context, c config.CacheCfg) (medium.Medium, error) {
	switch c.Driver {
	case "", "memory":
		return medium.NewMemory(), nil
	case "redis":
		rc, err := redisstore.New(ctx, c.RedisAddr)
		if err != nil {
			return nil, err
		}
		return rc, nil
	case "sqlite", "postgres":
		st, err := sqlstore.Open(ctx, c.Driver, c.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q (want memory|redis|sqlite|postgres)", c.Driver)
	}
}

// NewRemote builds the boundary service client selected by REMOTE_DRIVER.
func NewRemote(c config.RemoteCfg, hc *http.Client, logger *slog.Logger) (remote.Fetcher, error) {
	switch c.Driver {
	case "", "nominatim":
		return nominatim.New(nominatim.Config{
			BaseURL:         c.NominatimURL,
			Suffix:          c.QuerySuffix,
			UserAgent:       c.UserAgent,
			Timeout:         c.Timeout,
			BreakerFailures: c.BreakerFailures,
			BreakerCooldown: c.BreakerCooldown,
		}, hc, logger), nil
	case "overpass":
		return overpass.New(overpass.Config{
			BaseURL:         c.OverpassURL,
			Area:            c.OverpassArea,
			UserAgent:       c.UserAgent,
			Timeout:         c.Timeout,
			BreakerFailures: c.BreakerFailures,
			BreakerCooldown: c.BreakerCooldown,
		}, hc, logger), nil
	case "none":
		return remote.None{}, nil
	default:
		return nil, fmt.Errorf("unknown remote driver %q (want nominatim|overpass|none)", c.Driver)
	}
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	cat, err := catalog.Load(catalog.Options{
		Path:      cfg.Catalog.Path,
		Aggregate: cfg.Catalog.AggregateRegion,
		H3Res:     cfg.Catalog.H3Res,
	})
	if err != nil {
		return nil, err
	}
	bn, err := bundle.Load(cfg.Catalog.BundlePath)
	if err != nil {
		return nil, err
	}
	m, err := OpenMedium(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("open cache medium: %w", err)
	}
	fetcher, err := NewRemote(cfg.Remote, httpclient.NewOutbound(cfg.Remote.Timeout), logger)
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	st := boundarystore.New(m, cfg.Cache.ContainerKey,
		keys.Scheme{Prefix: cfg.Cache.KeyPrefix, Version: cfg.Cache.Version},
		boundarystore.WithLogger(logger),
		boundarystore.WithTimeout(cfg.Cache.OpTimeout),
	)
	res := resolver.New(st, bn, fetcher,
		resolver.WithLogger(logger),
		// detached fetches get a little longer than the client's own deadline
		resolver.WithFetchTimeout(cfg.Remote.Timeout+cfg.Cache.OpTimeout),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Medium:   m,
		Store:    st,
		Bundle:   bn,
		Catalog:  cat,
		Remote:   fetcher,
		Resolver: res,
		Sessions: session.NewManager(cat, res, cfg.SessionTTL, logger,
			session.WithPopularity(popularity.New(cfg.PopularityHalfLife))),
	}, nil
}

// Handler is the full HTTP surface. Extra readiness checks (e.g. the kafka
// consumer) are merged with the cache medium check.
func (a *App) Handler(metrics http.Handler, extra map[string]health.Pinger) http.Handler {
	checks := map[string]health.Pinger{"cache": a.Medium}
	for k, v := range extra {
		checks[k] = v
	}
	return server.Handler(a.Logger, server.Deps{
		Routes:      router.New(a.Logger, a.Catalog, a.Sessions, a.Store, a.Resolver),
		Checks:      checks,
		Metrics:     metrics,
		MetricsPath: a.Config.MetricsPath,
	})
}

func (a *App) Close() error {
	if a.Medium == nil {
		return nil
	}
	if err := a.Medium.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close cache medium: %w", err)
	}
	return nil
}
