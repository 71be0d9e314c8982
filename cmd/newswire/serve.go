// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/newswire/newswire/internal/config"
	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/logging"
	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/poller"
	"github.com/newswire/newswire/internal/ratelimit"
	"github.com/newswire/newswire/internal/server"
	"github.com/newswire/newswire/internal/socket"
	"github.com/newswire/newswire/pkg/errutil"
)

const serviceName = "newswire"

// metricsShutdownTimeout bounds the observability listener's shutdown.
const metricsShutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fan-out server",
		Long: `Run the WebSocket fan-out server. It polls the upstream content and alert
APIs on independent timers and pushes matching items to subscribed clients.

Settings come from flags, a YAML file (--config, or
$XDG_CONFIG_HOME/newswire/config.yaml when present) and NEWSWIRE_* environment
variables (PORT is honoured for the listen port).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), config.ResolvePath(configFile))
			if err != nil {
				return err
			}
			logger, err := logging.SetDefault(serviceName, version, cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runServe(ctx, cfg, logger); err != nil {
				errutil.LogError(logger, "server exited with error", err)
				return err
			}
			return nil
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// sources builds the content and alert sources selected by cfg. upstream is
// nil when nothing talks to the aggregator API.
func sources(cfg config.Config, logger *slog.Logger) (content poller.ContentSource, alerts poller.AlertSource, upstream *feed.Client, err error) {
	if cfg.Source == config.SourceHTTP || cfg.Alerts {
		upstream, err = feed.NewClient(feed.ClientConfig{
			BaseURL:   cfg.UpstreamURL,
			APIKey:    cfg.UpstreamAPIKey,
			Timeout:   cfg.UpstreamTimeout,
			UserAgent: serviceName + "/" + version,
		})
		if err != nil {
			return nil, nil, nil, err
		}
	}

	switch cfg.Source {
	case config.SourceRSS:
		specs, err := cfg.FeedSpecs()
		if err != nil {
			return nil, nil, nil, err
		}
		content = feed.NewRSSSource(specs, cfg.UpstreamTimeout, logger.With("component", "rss_source"))
	default:
		content = upstream
	}
	if cfg.Alerts {
		alerts = upstream
	}
	return content, alerts, upstream, nil
}

// serverOptions maps configuration onto the server's options.
func serverOptions(cfg config.Config, logger *slog.Logger) (server.Options, error) {
	content, alerts, upstream, err := sources(cfg, logger)
	if err != nil {
		return server.Options{}, err
	}

	opts := server.Options{
		Version:        version,
		ListenAddr:     cfg.ListenAddr,
		Content:        content,
		Alerts:         alerts,
		PollInterval:   cfg.PollInterval,
		AlertInterval:  cfg.AlertInterval,
		SweepInterval:  cfg.SweepInterval,
		IdleTimeout:    cfg.IdleTimeout,
		NewsLimit:      cfg.NewsLimit,
		BreakingLimit:  cfg.BreakingLimit,
		AlertDedupSize: cfg.AlertDedupSize,
		Socket: socket.Config{
			AllowedOrigins:  cfg.AllowedOrigins,
			MaxMessageBytes: cfg.MaxMessageBytes,
			SendQueueSize:   cfg.SendQueueSize,
		},
		RateLimit: ratelimit.Config{
			Burst: cfg.RateBurst,
			Rate:  cfg.RatePerSecond,
		},
		DisableRateLimit: !cfg.RateLimited(),
		Logger:           logger,
	}
	if upstream != nil {
		opts.Upstream = upstream
	}
	return opts, nil
}

// runServe runs the server, and the metrics listener when configured, until
// ctx ends or either fails.
func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	opts, err := serverOptions(cfg, logger)
	if err != nil {
		return err
	}

	reg := observability.NewRegistry()
	opts.Registerer = reg

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	logger.Info("starting newswire",
		"listen_addr", cfg.ListenAddr,
		"source", cfg.Source,
		"alerts", cfg.Alerts,
		"metrics_addr", cfg.MetricsAddr,
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		obs := observability.NewServer(cfg.MetricsAddr, reg, srv.Ready)
		obsErrCh, err := obs.Start()
		if err != nil {
			return oops.Code("METRICS_LISTEN_FAILED").Wrapf(err, "starting observability server")
		}
		g.Go(func() error {
			var serveErr error
			select {
			case <-gctx.Done():
			case serveErr = <-obsErrCh:
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
			return serveErr
		})
	}

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // already carries context from the failing component
	}
	logger.Info("shutdown complete")
	return nil
}
