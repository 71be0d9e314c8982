// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package sweeper evicts dead and idle connections from the registry.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/registry"
)

// Defaults for the sweep loop.
const (
	DefaultInterval    = 60 * time.Second
	DefaultIdleTimeout = 5 * time.Minute
)

// Eviction reasons.
const (
	ReasonClosed = "closed"
	ReasonIdle   = "idle"
)

// Config configures a Sweeper.
type Config struct {
	// IdleTimeout is how long a client may go without a ping before it is
	// evicted. Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
}

// Result summarises one sweep.
type Result struct {
	Scanned int
	Closed  int
	Idle    int
}

// Evicted returns the total number of removed entries.
func (r Result) Evicted() int { return r.Closed + r.Idle }

// Sweeper scans the registry for connections that are no longer open or
// have not pinged within the idle timeout.
type Sweeper struct {
	registry    *registry.Registry
	idleTimeout time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates a sweeper over reg.
func New(reg *registry.Registry, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Sweeper {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		registry:    reg,
		idleTimeout: cfg.IdleTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run sweeps once at the current time. It has the shape of a schedule.Func.
func (s *Sweeper) Run(context.Context) {
	s.Sweep(time.Now())
}

// evictionReason returns why e should be evicted, or "" to keep it.
func evictionReason(e registry.Entry, cutoff time.Time) string {
	switch {
	case !e.Conn.Open():
		return ReasonClosed
	case e.LastPing.Before(cutoff):
		return ReasonIdle
	default:
		return ""
	}
}

// Sweep removes every entry whose connection is closed or whose last ping is
// older than now minus the idle timeout. Removed connections are closed on a
// best-effort basis.
func (s *Sweeper) Sweep(now time.Time) Result {
	var result Result
	cutoff := now.Add(-s.idleTimeout)

	s.registry.ForEach(func(e registry.Entry) bool {
		result.Scanned++
		if evictionReason(e, cutoff) == "" {
			return true
		}

		// Re-check under the lock: a ping may have landed since the snapshot.
		reason := ""
		removed := s.registry.RemoveIf(e.ClientID, func(cur registry.Entry) bool {
			reason = evictionReason(cur, cutoff)
			return reason != ""
		})
		if !removed {
			return true
		}
		if err := e.Conn.Close(); err != nil {
			s.logger.Debug("close evicted connection", "client_id", e.ClientID, "error", err)
		}

		if reason == ReasonClosed {
			result.Closed++
		} else {
			result.Idle++
		}
		s.metrics.RecordEviction(reason)
		s.logger.Info("evicted connection",
			"client_id", e.ClientID,
			"reason", reason,
			"last_ping", e.LastPing,
		)
		return true
	})

	if result.Evicted() > 0 {
		s.logger.Info("sweep complete",
			"scanned", result.Scanned,
			"evicted", result.Evicted(),
			"remaining", s.registry.Len(),
		)
	}
	return result
}
