// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package feed

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/oops"

	"github.com/newswire/newswire/pkg/errutil"
)

// FeedSpec names one RSS or Atom feed.
type FeedSpec struct {
	Name     string
	URL      string
	Category string
}

// ParseFeedSpec parses "name=url" or "name=url#category".
func ParseFeedSpec(s string) (FeedSpec, error) {
	name, rest, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(rest) == "" {
		return FeedSpec{}, oops.Code("CONFIG_INVALID").With("feed", s).Errorf("feed must be name=url, got %q", s)
	}
	rawURL, category, _ := strings.Cut(rest, "#")
	return FeedSpec{
		Name:     strings.TrimSpace(name),
		URL:      strings.TrimSpace(rawURL),
		Category: strings.TrimSpace(category),
	}, nil
}

// RSSSource reads articles straight from syndication feeds instead of the
// aggregator API. It has no breaking-news notion.
type RSSSource struct {
	feeds   []FeedSpec
	parser  *gofeed.Parser
	timeout time.Duration
	logger  *slog.Logger
}

// NewRSSSource creates a source over the given feeds. A nil logger uses
// slog.Default().
func NewRSSSource(feeds []FeedSpec, timeout time.Duration, logger *slog.Logger) *RSSSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RSSSource{
		feeds:   feeds,
		parser:  gofeed.NewParser(),
		timeout: timeout,
		logger:  logger,
	}
}

// Latest merges all feeds newest first and truncates to limit. A feed that
// fails is skipped; the call fails only when every feed fails.
func (s *RSSSource) Latest(ctx context.Context, limit int) ([]Article, error) {
	type dated struct {
		article   Article
		published time.Time
	}

	var (
		items    []dated
		lastErr  error
		failures int
	)
	for _, spec := range s.feeds {
		feedCtx, cancel := context.WithTimeout(ctx, s.timeout)
		parsed, err := s.parser.ParseURLWithContext(spec.URL, feedCtx)
		cancel()
		if err != nil {
			failures++
			lastErr = oops.Code(CodeConnection).With("feed", spec.Name).Wrapf(err, "fetch feed")
			errutil.LogWarn(s.logger.With("feed", spec.Name), "rss feed fetch failed", lastErr)
			continue
		}

		key := strings.ToLower(strings.ReplaceAll(spec.Name, " ", ""))
		for _, item := range parsed.Items {
			if item.Link == "" {
				continue
			}
			published := time.Time{}
			if item.PublishedParsed != nil {
				published = *item.PublishedParsed
			} else if item.UpdatedParsed != nil {
				published = *item.UpdatedParsed
			}
			category := spec.Category
			if category == "" && len(item.Categories) > 0 {
				category = item.Categories[0]
			}
			items = append(items, dated{
				article: Article{
					Link:      item.Link,
					Title:     item.Title,
					Source:    spec.Name,
					SourceKey: key,
					Category:  category,
				},
				published: published,
			})
		}
	}

	if len(s.feeds) > 0 && failures == len(s.feeds) {
		return nil, lastErr
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].published.After(items[j].published)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	articles := make([]Article, 0, len(items))
	for _, item := range items {
		articles = append(articles, item.article)
	}
	return articles, nil
}

// Breaking always returns no articles.
func (s *RSSSource) Breaking(context.Context, int) ([]Article, error) {
	return nil, nil
}
