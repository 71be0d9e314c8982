// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package dispatch delivers content batches and alert events to the clients
// that want them.
package dispatch

import (
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/match"
	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/protocol"
	"github.com/newswire/newswire/internal/registry"
)

// Result summarises one broadcast.
type Result struct {
	// Delivered counts clients the message was handed to.
	Delivered int
	// Failed counts sends that returned an error or panicked.
	Failed int
	// Removed counts clients dropped because their connection was closed.
	Removed int
	// Duplicate is set when an alert was suppressed by the dedup window.
	Duplicate bool
}

// Options configures a Dispatcher.
type Options struct {
	// AlertDedupSize is the number of recent alert event IDs remembered.
	// Zero disables deduplication.
	AlertDedupSize int
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

// Dispatcher fans messages out over the registry. Each send is isolated: a
// failure or panic on one connection never stops delivery to the others.
type Dispatcher struct {
	registry *registry.Registry
	dedup    *dedupWindow
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a dispatcher over reg.
func New(reg *registry.Registry, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		registry: reg,
		dedup:    newDedupWindow(opts.AlertDedupSize),
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// BroadcastContent sends each open client one message holding the articles
// that match its subscription. Clients with no matches get nothing.
func (d *Dispatcher) BroadcastContent(articles []feed.Article, breaking bool) Result {
	var result Result
	if len(articles) == 0 {
		return result
	}

	msgType := protocol.TypeNews
	build := protocol.News
	if breaking {
		msgType = protocol.TypeBreaking
		build = protocol.Breaking
	}

	now := d.now()
	d.registry.ForEach(func(e registry.Entry) bool {
		if !e.Conn.Open() {
			return true
		}
		matched := match.Select(articles, e.Subscription)
		if len(matched) == 0 {
			return true
		}
		d.deliver(e, build(matched, now), &result)
		return true
	})

	d.metrics.RecordBroadcast(string(msgType), result.Delivered)
	d.logger.Debug("content broadcast",
		"type", msgType,
		"articles", len(articles),
		"delivered", result.Delivered,
		"failed", result.Failed,
		"removed", result.Removed,
	)
	return result
}

// BroadcastAlert sends event to every client whose alert subscriptions cover
// its rule.
func (d *Dispatcher) BroadcastAlert(event feed.AlertEvent) Result {
	var result Result
	if d.dedup.seen(event.ID) {
		d.logger.Debug("duplicate alert suppressed", "event_id", event.ID, "rule_id", event.RuleID)
		result.Duplicate = true
		return result
	}

	env := protocol.Alert(event, d.now())
	d.registry.ForEach(func(e registry.Entry) bool {
		if !match.WantsAlert(e.AlertSubscriptions, event.RuleID) {
			return true
		}
		d.deliver(e, env, &result)
		return true
	})

	d.metrics.RecordBroadcast(string(protocol.TypeAlert), result.Delivered)
	d.logger.Debug("alert broadcast",
		"event_id", event.ID,
		"rule_id", event.RuleID,
		"delivered", result.Delivered,
		"failed", result.Failed,
	)
	return result
}

func (d *Dispatcher) deliver(e registry.Entry, env protocol.Envelope, result *Result) {
	err := safeSend(e.Conn, env)
	if err == nil {
		result.Delivered++
		d.metrics.RecordSent(string(env.Type))
		return
	}

	result.Failed++
	if errors.Is(err, registry.ErrConnClosed) {
		d.metrics.RecordSendFailure("closed")
		if d.registry.Remove(e.ClientID) {
			result.Removed++
		}
		_ = e.Conn.Close()
		d.logger.Debug("removed closed connection", "client_id", e.ClientID)
		return
	}

	// Left in place; the sweeper reclaims it if it stays broken.
	d.metrics.RecordSendFailure("error")
	d.logger.Warn("send failed",
		"client_id", e.ClientID,
		"type", env.Type,
		"error", err,
	)
}

func safeSend(conn registry.Conn, env protocol.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("SEND_PANIC").
				With("panic", r).
				Errorf("send panicked: %v", r)
		}
	}()
	return conn.Send(env)
}
