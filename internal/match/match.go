// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package match decides which clients want which items.
package match

import (
	"strings"
	"unicode"

	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/protocol"
)

// Matches reports whether article should be delivered to a client holding
// filter. An empty filter matches everything. Otherwise any one criterion is
// enough: the article's source key is in Sources, its category is in
// Categories, or its title contains one of Keywords. Coins are stored on the
// filter but not evaluated.
func Matches(article feed.Article, filter protocol.Filter) bool {
	if filter.IsEmpty() {
		return true
	}
	return matchesSource(article, filter.Sources) ||
		matchesCategory(article, filter.Categories) ||
		matchesKeyword(article, filter.Keywords)
}

// Select returns the articles that match filter, in their original order.
func Select(articles []feed.Article, filter protocol.Filter) []feed.Article {
	if filter.IsEmpty() {
		return articles
	}
	var out []feed.Article
	for _, a := range articles {
		if Matches(a, filter) {
			out = append(out, a)
		}
	}
	return out
}

// SourceKey returns the normalized source key of an article, preferring the
// upstream sourceKey over the display name.
func SourceKey(article feed.Article) string {
	if article.SourceKey != "" {
		return NormalizeSourceKey(article.SourceKey)
	}
	return NormalizeSourceKey(article.Source)
}

// NormalizeSourceKey lowercases s and strips whitespace and the separators
// '-', '_' and '.', so "CoinDesk", "coin-desk" and "coindesk" compare equal.
func NormalizeSourceKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r), r == '-', r == '_', r == '.':
			continue
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func matchesSource(article feed.Article, sources []string) bool {
	key := SourceKey(article)
	if key == "" {
		return false
	}
	for _, s := range sources {
		if NormalizeSourceKey(s) == key {
			return true
		}
	}
	return false
}

func matchesCategory(article feed.Article, categories []string) bool {
	if article.Category == "" {
		return false
	}
	for _, c := range categories {
		if strings.EqualFold(c, article.Category) {
			return true
		}
	}
	return false
}

func matchesKeyword(article feed.Article, keywords []string) bool {
	if article.Title == "" {
		return false
	}
	title := strings.ToLower(article.Title)
	for _, k := range keywords {
		if k != "" && strings.Contains(title, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
