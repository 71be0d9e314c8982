// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package poller runs the upstream content and alert cycles and hands their
// results to the dispatcher.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/newswire/newswire/internal/dispatch"
	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/pkg/errutil"
)

var tracer = otel.Tracer("newswire/poller")

// Defaults for the content poller.
const (
	DefaultInterval      = 30 * time.Second
	DefaultNewsLimit     = 20
	DefaultBreakingLimit = 10
)

// ContentSource fetches articles from upstream, newest first.
type ContentSource interface {
	Latest(ctx context.Context, limit int) ([]feed.Article, error)
	Breaking(ctx context.Context, limit int) ([]feed.Article, error)
}

// ContentBroadcaster delivers an article batch to interested clients.
type ContentBroadcaster interface {
	BroadcastContent(articles []feed.Article, breaking bool) dispatch.Result
}

// ContentConfig configures a ContentPoller.
type ContentConfig struct {
	NewsLimit     int
	BreakingLimit int
}

// PollResult describes one content cycle. Either half may fail on its own.
type PollResult struct {
	// News holds the regular articles that were broadcast.
	News []feed.Article
	// Breaking holds the breaking articles that were broadcast.
	Breaking []feed.Article
	// NewsUnchanged is set when the newest article matched the last-seen
	// marker and the regular broadcast was skipped.
	NewsUnchanged bool
	// PausedUntil is set when the cycle was skipped because upstream asked
	// the server to back off.
	PausedUntil time.Time

	NewsErr     error
	BreakingErr error
}

// Err joins the errors of both halves.
func (r PollResult) Err() error {
	return errors.Join(r.NewsErr, r.BreakingErr)
}

// ContentStats is the poller section of the stats report.
type ContentStats struct {
	Cycles          int64     `json:"cycles"`
	Failures        int64     `json:"failures"`
	LastPoll        time.Time `json:"lastPoll,omitzero"`
	LastBroadcast   time.Time `json:"lastBroadcast,omitzero"`
	LastArticleLink string    `json:"lastArticleLink,omitempty"`
	PausedUntil     time.Time `json:"pausedUntil,omitzero"`
}

// ContentPoller fetches regular and breaking news each cycle. Regular news
// is only broadcast when the newest article differs from the last one
// broadcast; breaking news is broadcast whenever there is any.
type ContentPoller struct {
	source      ContentSource
	broadcaster ContentBroadcaster
	cfg         ContentConfig
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
	pause       backoff

	mu    sync.Mutex
	last  string
	stats ContentStats
}

// NewContentPoller creates a poller. Zero limits take their defaults.
func NewContentPoller(source ContentSource, broadcaster ContentBroadcaster, cfg ContentConfig, metrics *observability.Metrics, logger *slog.Logger) *ContentPoller {
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = DefaultNewsLimit
	}
	if cfg.BreakingLimit <= 0 {
		cfg.BreakingLimit = DefaultBreakingLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentPoller{
		source:      source,
		broadcaster: broadcaster,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Run performs one cycle and logs its outcome. It has the shape of a
// schedule.Func.
func (p *ContentPoller) Run(ctx context.Context) {
	_, _ = p.Poll(ctx)
}

// Poll performs one content cycle. Upstream failures are logged and
// returned; they never stop the next cycle.
func (p *ContentPoller) Poll(ctx context.Context) (result PollResult, err error) {
	start := p.now()
	if until, paused := p.pause.active(start); paused {
		p.logger.DebugContext(ctx, "content poll paused by upstream", "until", until)
		p.metrics.RecordPoll("news", observability.ResultPaused, 0)
		result.PausedUntil = until
		return result, nil
	}

	ctx, span := tracer.Start(ctx, "poller.content",
		trace.WithAttributes(
			attribute.Int("poller.news_limit", p.cfg.NewsLimit),
			attribute.Int("poller.breaking_limit", p.cfg.BreakingLimit),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p.pollNews(ctx, &result)
	p.pollBreaking(ctx, &result)

	span.SetAttributes(
		attribute.Int("poller.news_sent", len(result.News)),
		attribute.Int("poller.breaking_sent", len(result.Breaking)),
		attribute.Bool("poller.news_unchanged", result.NewsUnchanged),
	)

	p.mu.Lock()
	p.stats.Cycles++
	p.stats.LastPoll = start
	if result.Err() != nil {
		p.stats.Failures++
	}
	if len(result.News) > 0 || len(result.Breaking) > 0 {
		p.stats.LastBroadcast = start
	}
	p.mu.Unlock()

	return result, result.Err()
}

func (p *ContentPoller) pollNews(ctx context.Context, result *PollResult) {
	start := p.now()
	articles, err := p.source.Latest(ctx, p.cfg.NewsLimit)
	if err != nil {
		result.NewsErr = err
		p.fail(ctx, "news", start, err)
		return
	}

	batch, changed := p.advance(articles)
	if !changed {
		result.NewsUnchanged = true
		p.metrics.RecordPoll("news", observability.ResultSkipped, p.now().Sub(start))
		p.logger.DebugContext(ctx, "no new articles", "fetched", len(articles))
		return
	}

	p.broadcaster.BroadcastContent(batch, false)
	result.News = batch
	p.metrics.RecordPoll("news", observability.ResultOK, p.now().Sub(start))
	p.logger.InfoContext(ctx, "news broadcast",
		"articles", len(batch),
		"newest_link", batch[0].Link,
	)
}

func (p *ContentPoller) pollBreaking(ctx context.Context, result *PollResult) {
	start := p.now()
	articles, err := p.source.Breaking(ctx, p.cfg.BreakingLimit)
	if err != nil {
		result.BreakingErr = err
		p.fail(ctx, "breaking", start, err)
		return
	}
	if len(articles) == 0 {
		p.metrics.RecordPoll("breaking", observability.ResultSkipped, p.now().Sub(start))
		return
	}

	p.broadcaster.BroadcastContent(articles, true)
	result.Breaking = articles
	p.metrics.RecordPoll("breaking", observability.ResultOK, p.now().Sub(start))
	p.logger.InfoContext(ctx, "breaking broadcast", "articles", len(articles))
}

// advance compares a fetched batch with the last-seen marker. When the newest
// article differs from the marker it moves the marker and returns the whole
// batch.
func (p *ContentPoller) advance(articles []feed.Article) ([]feed.Article, bool) {
	if len(articles) == 0 || articles[0].Link == "" {
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	newest := articles[0].Link
	if newest == p.last {
		return nil, false
	}
	p.last = newest
	p.stats.LastArticleLink = newest
	return articles, true
}

func (p *ContentPoller) fail(ctx context.Context, kind string, start time.Time, err error) {
	p.metrics.RecordPoll(kind, observability.ResultError, p.now().Sub(start))
	attrs := append([]any{
		"kind", kind,
		"reason", feed.Reason(err),
	}, errutil.Attrs(err)...)
	if d, ok := p.pause.observe(p.now(), err); ok {
		attrs = append(attrs, "retry_after", d)
	}
	p.logger.WarnContext(ctx, "content poll failed, skipping cycle", attrs...)
}

// LastArticleLink returns the last-seen marker.
func (p *ContentPoller) LastArticleLink() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Stats returns a copy of the poller counters.
func (p *ContentPoller) Stats() ContentStats {
	until, paused := p.pause.active(p.now())
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	if paused {
		s.PausedUntil = until
	}
	return s
}
