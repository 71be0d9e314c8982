// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/newswire/newswire/internal/dispatch"
	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/pkg/errutil"
)

// AlertSource asks upstream for the alert events triggered since the last
// evaluation.
type AlertSource interface {
	Evaluate(ctx context.Context) ([]feed.AlertEvent, error)
}

// AlertBroadcaster delivers one alert event to interested clients.
type AlertBroadcaster interface {
	BroadcastAlert(event feed.AlertEvent) dispatch.Result
}

// EvaluateResult describes one evaluation cycle.
type EvaluateResult struct {
	Events      []feed.AlertEvent
	Delivered   int
	Duplicates  int
	PausedUntil time.Time
}

// AlertStats is the evaluator section of the stats report.
type AlertStats struct {
	Cycles       int64     `json:"cycles"`
	Failures     int64     `json:"failures"`
	Events       int64     `json:"events"`
	LastEvaluate time.Time `json:"lastEvaluate,omitzero"`
	PausedUntil  time.Time `json:"pausedUntil,omitzero"`
}

// AlertEvaluator runs the alert cycle on its own schedule, independent of
// the content poller.
type AlertEvaluator struct {
	source      AlertSource
	broadcaster AlertBroadcaster
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
	pause       backoff

	mu    sync.Mutex
	stats AlertStats
}

// NewAlertEvaluator creates an evaluator.
func NewAlertEvaluator(source AlertSource, broadcaster AlertBroadcaster, metrics *observability.Metrics, logger *slog.Logger) *AlertEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertEvaluator{
		source:      source,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Run performs one cycle. It has the shape of a schedule.Func.
func (e *AlertEvaluator) Run(ctx context.Context) {
	_, _ = e.Evaluate(ctx)
}

// Evaluate calls the upstream evaluator and broadcasts each returned event.
// A failure skips the cycle.
func (e *AlertEvaluator) Evaluate(ctx context.Context) (result EvaluateResult, err error) {
	start := e.now()
	if until, paused := e.pause.active(start); paused {
		e.logger.DebugContext(ctx, "alert evaluation paused by upstream", "until", until)
		e.metrics.RecordPoll("alerts", observability.ResultPaused, 0)
		result.PausedUntil = until
		return result, nil
	}

	ctx, span := tracer.Start(ctx, "poller.alerts")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	events, err := e.source.Evaluate(ctx)

	e.mu.Lock()
	e.stats.Cycles++
	e.stats.LastEvaluate = start
	if err != nil {
		e.stats.Failures++
	} else {
		e.stats.Events += int64(len(events))
	}
	e.mu.Unlock()

	if err != nil {
		e.metrics.RecordPoll("alerts", observability.ResultError, e.now().Sub(start))
		attrs := append([]any{"reason", feed.Reason(err)}, errutil.Attrs(err)...)
		if d, ok := e.pause.observe(e.now(), err); ok {
			attrs = append(attrs, "retry_after", d)
		}
		e.logger.WarnContext(ctx, "alert evaluation failed, skipping cycle", attrs...)
		return result, err
	}

	result.Events = events
	for _, event := range events {
		r := e.broadcaster.BroadcastAlert(event)
		result.Delivered += r.Delivered
		if r.Duplicate {
			result.Duplicates++
		}
	}
	span.SetAttributes(
		attribute.Int("alerts.events", len(events)),
		attribute.Int("alerts.delivered", result.Delivered),
	)

	if len(events) == 0 {
		e.metrics.RecordPoll("alerts", observability.ResultSkipped, e.now().Sub(start))
		return result, nil
	}
	e.metrics.RecordPoll("alerts", observability.ResultOK, e.now().Sub(start))
	e.logger.InfoContext(ctx, "alerts broadcast",
		"events", len(events),
		"delivered", result.Delivered,
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// Stats returns a copy of the evaluator counters.
func (e *AlertEvaluator) Stats() AlertStats {
	until, paused := e.pause.active(e.now())
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	if paused {
		s.PausedUntil = until
	}
	return s
}
