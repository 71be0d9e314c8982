// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package feed defines the content and alert records consumed from upstream
// sources, and the clients that fetch them.
package feed

import (
	"bytes"
	"encoding/json"
)

// looseString decodes a JSON string or number into its text. Null and other
// kinds decode to "" so one odd field does not fail a whole batch.
type looseString string

func (l *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		*l = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err //nolint:wrapcheck // json.Unmarshaler passthrough
		}
		*l = looseString(s)
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err //nolint:wrapcheck // json.Unmarshaler passthrough
		}
		*l = looseString(n.String())
	default:
		*l = ""
	}
	return nil
}

// Article is a news item from the content source. The typed fields are the
// ones the server reads; every other upstream field is preserved verbatim and
// passed through to clients.
type Article struct {
	Link      string `json:"link"`
	Title     string `json:"title"`
	Source    string `json:"source,omitempty"`
	SourceKey string `json:"sourceKey,omitempty"`
	Category  string `json:"category,omitempty"`

	raw json.RawMessage
}

// articleFields mirrors Article without its methods so the default codec can
// be reused from the custom ones.
type articleFields struct {
	Link      string `json:"link"`
	Title     string `json:"title"`
	Source    string `json:"source,omitempty"`
	SourceKey string `json:"sourceKey,omitempty"`
	Category  string `json:"category,omitempty"`
}

// articleInput is the decode-side view of an article.
type articleInput struct {
	Link      looseString `json:"link"`
	Title     looseString `json:"title"`
	Source    looseString `json:"source"`
	SourceKey looseString `json:"sourceKey"`
	Category  looseString `json:"category"`
}

// UnmarshalJSON decodes the known fields and keeps the original document.
func (a *Article) UnmarshalJSON(data []byte) error {
	var fields articleInput
	if err := json.Unmarshal(data, &fields); err != nil {
		return err //nolint:wrapcheck // json.Unmarshaler passthrough
	}
	*a = Article{
		Link:      string(fields.Link),
		Title:     string(fields.Title),
		Source:    string(fields.Source),
		SourceKey: string(fields.SourceKey),
		Category:  string(fields.Category),
	}
	a.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the original upstream document when one was decoded.
func (a Article) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return a.raw, nil
	}
	return json.Marshal(articleFields{ //nolint:wrapcheck // json.Marshaler passthrough
		Link:      a.Link,
		Title:     a.Title,
		Source:    a.Source,
		SourceKey: a.SourceKey,
		Category:  a.Category,
	})
}

// AlertEvent is a triggered alert produced by the rule-evaluation service.
type AlertEvent struct {
	ID     string `json:"id"`
	RuleID string `json:"ruleId"`

	raw json.RawMessage
}

type alertEventFields struct {
	ID     string `json:"id"`
	RuleID string `json:"ruleId"`
}

type alertEventInput struct {
	ID     looseString `json:"id"`
	RuleID looseString `json:"ruleId"`
}

// UnmarshalJSON decodes the identifiers, numeric ones as their decimal text,
// and keeps the original document.
func (e *AlertEvent) UnmarshalJSON(data []byte) error {
	var fields alertEventInput
	if err := json.Unmarshal(data, &fields); err != nil {
		return err //nolint:wrapcheck // json.Unmarshaler passthrough
	}
	*e = AlertEvent{ID: string(fields.ID), RuleID: string(fields.RuleID)}
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the original event document when one was decoded.
func (e AlertEvent) MarshalJSON() ([]byte, error) {
	if len(e.raw) > 0 {
		return e.raw, nil
	}
	return json.Marshal(alertEventFields{ID: e.ID, RuleID: e.RuleID}) //nolint:wrapcheck // json.Marshaler passthrough
}

// articlesResponse is the body of the news and breaking endpoints.
type articlesResponse struct {
	Articles []Article `json:"articles"`
}

// eventsResponse is the body of the alert evaluation endpoint.
type eventsResponse struct {
	Events []AlertEvent `json:"events"`
}
