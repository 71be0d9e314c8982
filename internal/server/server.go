// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package server assembles the fan-out server: the connection registry, the
// pollers and sweeper on their schedules, and the HTTP front door that
// serves the socket endpoint and the health and stats reports.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/newswire/newswire/internal/dispatch"
	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/poller"
	"github.com/newswire/newswire/internal/ratelimit"
	"github.com/newswire/newswire/internal/registry"
	"github.com/newswire/newswire/internal/schedule"
	"github.com/newswire/newswire/internal/socket"
	"github.com/newswire/newswire/internal/sweeper"
)

// DefaultShutdownTimeout bounds Run's graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// RateLimitReporter exposes the upstream quota seen on the last response.
type RateLimitReporter interface {
	RateLimit() (feed.RateLimitInfo, bool)
}

// Options configures a Server.
type Options struct {
	Version    string
	ListenAddr string

	// Content is polled for regular and breaking news. Required.
	Content poller.ContentSource
	// Alerts is evaluated on its own schedule. Nil disables alerting.
	Alerts poller.AlertSource
	// Upstream, when set, adds the upstream quota to the stats report.
	Upstream RateLimitReporter

	PollInterval   time.Duration
	AlertInterval  time.Duration
	SweepInterval  time.Duration
	IdleTimeout    time.Duration
	NewsLimit      int
	BreakingLimit  int
	AlertDedupSize int

	Socket    socket.Config
	RateLimit ratelimit.Config
	// DisableRateLimit turns off inbound message limiting.
	DisableRateLimit bool

	// Registerer receives the server's metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ListenAddr == "" {
		o.ListenAddr = ":8080"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = poller.DefaultInterval
	}
	if o.AlertInterval <= 0 {
		o.AlertInterval = poller.DefaultInterval
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = sweeper.DefaultInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Server is the fan-out server.
type Server struct {
	opts   Options
	logger *slog.Logger

	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	content    *poller.ContentPoller
	alerts     *poller.AlertEvaluator
	sweeper    *sweeper.Sweeper
	limiter    *ratelimit.Limiter
	socket     *socket.Handler
	reporter   *observability.Reporter
	tasks      []*schedule.Task
	router     chi.Router

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
	ready      atomic.Bool
}

// New wires a server. Nothing runs until Start.
func New(opts Options) (*Server, error) {
	if opts.Content == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("content source is required")
	}
	opts = opts.withDefaults()
	logger := opts.Logger

	var metrics *observability.Metrics
	if opts.Registerer != nil {
		metrics = observability.NewMetrics(opts.Registerer)
	}

	s := &Server{opts: opts, logger: logger}

	s.registry = registry.New(registry.Options{Logger: logger})
	s.dispatcher = dispatch.New(s.registry, dispatch.Options{
		AlertDedupSize: opts.AlertDedupSize,
		Metrics:        metrics,
		Logger:         logger,
	})
	s.content = poller.NewContentPoller(opts.Content, s.dispatcher, poller.ContentConfig{
		NewsLimit:     opts.NewsLimit,
		BreakingLimit: opts.BreakingLimit,
	}, metrics, logger.With("component", "content_poller"))
	s.sweeper = sweeper.New(s.registry, sweeper.Config{IdleTimeout: opts.IdleTimeout}, metrics, logger.With("component", "sweeper"))

	if !opts.DisableRateLimit {
		s.limiter = ratelimit.New(opts.RateLimit, opts.Registerer)
	}
	messages := socket.NewMessageHandler(s.registry, s.limiter, metrics, logger)
	s.socket = socket.NewHandler(s.registry, messages, opts.Socket, metrics, logger)

	if opts.Registerer != nil {
		observability.RegisterClientGauge(opts.Registerer, s.registry.Len)
	}

	s.tasks = append(s.tasks,
		schedule.New("content_poller", opts.PollInterval, s.content.Run,
			schedule.WithImmediateRun(), schedule.WithLogger(logger)),
		schedule.New("sweeper", opts.SweepInterval, s.sweeper.Run,
			schedule.WithLogger(logger)),
	)
	if opts.Alerts != nil {
		s.alerts = poller.NewAlertEvaluator(opts.Alerts, s.dispatcher, metrics, logger.With("component", "alert_evaluator"))
		s.tasks = append(s.tasks, schedule.New("alert_evaluator", opts.AlertInterval, s.alerts.Run,
			schedule.WithImmediateRun(), schedule.WithLogger(logger)))
	}

	s.reporter = s.newReporter()
	s.router = s.routes()
	return s, nil
}

func (s *Server) newReporter() *observability.Reporter {
	r := observability.NewReporter(s.opts.Version, s.registry.Len)
	r.AddSection("connections", func() any { return s.registry.Stats() })
	r.AddSection("poller", func() any { return s.content.Stats() })
	if s.alerts != nil {
		r.AddSection("alerts", func() any { return s.alerts.Stats() })
	}
	if s.opts.Upstream != nil {
		r.AddSection("upstream", func() any {
			info, ok := s.opts.Upstream.RateLimit()
			if !ok {
				return nil
			}
			return info
		})
	}
	return r
}

// Handler returns the HTTP handler serving all client routes.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the connection registry.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Dispatcher returns the broadcast dispatcher.
func (s *Server) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// ContentPoller returns the content poller, e.g. to force a cycle.
func (s *Server) ContentPoller() *poller.ContentPoller { return s.content }

// AlertEvaluator returns the alert evaluator, or nil if alerting is off.
func (s *Server) AlertEvaluator() *poller.AlertEvaluator { return s.alerts }

// Reporter returns the health and stats reporter.
func (s *Server) Reporter() *observability.Reporter { return s.reporter }

// Ready reports whether the server is accepting connections.
func (s *Server) Ready() bool { return s.ready.Load() }

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Start binds the listener, begins serving and starts the scheduled tasks.
// A listen failure is returned directly. The channel receives a later serve
// error, if any, and is closed when serving ends.
func (s *Server) Start(ctx context.Context) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("SERVER_RUNNING").Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("LISTEN_FAILED").With("addr", s.opts.ListenAddr).Wrap(err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	httpSrv := s.httpServer
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	for _, t := range s.tasks {
		if err := t.Start(ctx); err != nil {
			s.logger.Error("failed to start task", "task", t.Name(), "error", err)
		}
	}

	s.ready.Store(true)
	s.logger.Info("server started",
		"addr", listener.Addr().String(),
		"version", s.opts.Version,
		"poll_interval", s.opts.PollInterval,
		"alerts", s.alerts != nil,
	)
	return errCh, nil
}

// Stop stops the tasks, stops accepting connections, closes every client
// and waits for their handlers, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.ready.Store(false)

	for _, t := range s.tasks {
		t.Stop()
	}

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, oops.With("operation", "shutdown_http").Wrap(err))
	}
	if err := s.socket.Shutdown(ctx); err != nil {
		errs = append(errs, oops.With("operation", "close_clients").Wrap(err))
	}
	if s.limiter != nil {
		s.limiter.Close()
	}

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// Run starts the server and blocks until ctx is done or serving fails, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh, err := s.Start(ctx)
	if err != nil {
		if s.limiter != nil {
			s.limiter.Close()
		}
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	stopErr := s.Stop(shutdownCtx)

	if serveErr != nil {
		return oops.Code("SERVE_FAILED").Wrap(serveErr)
	}
	return stopErr
}
