// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package protocol

import (
	"encoding/json"
	"time"

	"github.com/newswire/newswire/internal/feed"
)

// Snapshot is the full subscription state echoed back to a client. All four
// lists are always present.
type Snapshot struct {
	Sources    []string `json:"sources"`
	Categories []string `json:"categories"`
	Keywords   []string `json:"keywords"`
	Coins      []string `json:"coins"`
}

// SnapshotOf converts a filter into its wire snapshot.
func SnapshotOf(f Filter) Snapshot {
	return Snapshot{
		Sources:    nonNil(f.Sources),
		Categories: nonNil(f.Categories),
		Keywords:   nonNil(f.Keywords),
		Coins:      nonNil(f.Coins),
	}
}

// ConnectedPayload is sent once, right after registration.
type ConnectedPayload struct {
	ClientID   string   `json:"clientId"`
	Message    string   `json:"message"`
	ServerTime string   `json:"serverTime"`
	Features   []string `json:"features"`
}

type subscriptionPayload struct {
	Subscription Snapshot `json:"subscription"`
}

type alertSubscriptionPayload struct {
	SubscribedTo []string `json:"subscribedTo"`
}

type pongPayload struct {
	ServerTime string `json:"serverTime"`
}

type articlesPayload struct {
	Articles []feed.Article `json:"articles"`
}

// Connected builds the welcome message.
func Connected(clientID, message string, features []string, now time.Time) Envelope {
	return build(TypeConnected, ConnectedPayload{
		ClientID:   clientID,
		Message:    message,
		ServerTime: Timestamp(now),
		Features:   nonNil(features),
	}, now)
}

// Subscribed acknowledges a subscribe message with the resulting filter.
func Subscribed(f Filter, now time.Time) Envelope {
	return build(TypeSubscribed, subscriptionPayload{Subscription: SnapshotOf(f)}, now)
}

// Unsubscribed acknowledges an unsubscribe message with the resulting filter.
func Unsubscribed(f Filter, now time.Time) Envelope {
	return build(TypeUnsubscribed, subscriptionPayload{Subscription: SnapshotOf(f)}, now)
}

// AlertsSubscribed acknowledges subscribe_alerts with the current rule set.
func AlertsSubscribed(ruleIDs []string, now time.Time) Envelope {
	return build(TypeAlertsSubscribed, alertSubscriptionPayload{SubscribedTo: nonNil(ruleIDs)}, now)
}

// AlertsUnsubscribed acknowledges unsubscribe_alerts with the current rule set.
func AlertsUnsubscribed(ruleIDs []string, now time.Time) Envelope {
	return build(TypeAlertsUnsubscribed, alertSubscriptionPayload{SubscribedTo: nonNil(ruleIDs)}, now)
}

// Pong answers a ping with the server clock.
func Pong(now time.Time) Envelope {
	return build(TypePong, pongPayload{ServerTime: Timestamp(now)}, now)
}

// News carries the matched subset of a regular content batch.
func News(articles []feed.Article, now time.Time) Envelope {
	return build(TypeNews, articlesPayload{Articles: articles}, now)
}

// Breaking carries the matched subset of a breaking-news batch.
func Breaking(articles []feed.Article, now time.Time) Envelope {
	return build(TypeBreaking, articlesPayload{Articles: articles}, now)
}

// Alert carries one triggered alert event as produced upstream.
func Alert(event feed.AlertEvent, now time.Time) Envelope {
	return build(TypeAlert, event, now)
}

func build(typ Type, payload any, now time.Time) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// Every payload above is built from JSON-safe types; a failure here
		// means an upstream document was corrupted after decoding.
		data = json.RawMessage("{}")
	}
	return Envelope{
		Type:      typ,
		Payload:   data,
		Timestamp: Timestamp(now),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
