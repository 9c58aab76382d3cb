package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/suburb-boundary-cache/internal/app"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/config"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/health"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/observability"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/core/server"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/logger"
	"github.com/mohammed-shakir/suburb-boundary-cache/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "optional dotenv file")
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "mapserver",
		Component: "http",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting mapserver",
		"addr", cfg.Addr,
		"version", Version,
		"cache_driver", cfg.Cache.Driver,
		"remote_driver", cfg.Remote.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsHandler http.Handler
	if cfg.MetricsOn {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.MetricsAddr,
			Path:    cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:  Version,
				Revision: os.Getenv("BUILD_REVISION"),
			},
		})
		if cfg.MetricsAddr == "" || cfg.MetricsAddr == cfg.Addr {
			metricsHandler = p.Handler()
		} else {
			go serveMetrics(ctx, appLog, cfg.MetricsAddr, p)
		}
	} else {
		observability.Init(nil, false)
	}

	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("app setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("close", "err", err)
		}
	}()

	extra := map[string]health.Pinger{}
	if cfg.Invalidation.Enabled {
		c := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, a.Store, a.Resolver)
		extra["kafka"] = c
		go func() {
			if err := c.Start(ctx); err != nil {
				appLog.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	if err := server.Run(ctx, cfg.Addr, appLog, a.Handler(metricsHandler, extra)); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string, p *metrics.Provider) {
	mux := http.NewServeMux()
	mux.Handle(p.Path(), p.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("metrics listen", "addr", addr, "path", p.Path())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server exited", "err", err)
	}
}
