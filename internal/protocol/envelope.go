// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package protocol defines the WebSocket message envelope exchanged with
// clients: a closed set of inbound message variants and the outbound
// messages the server emits.
package protocol

import (
	"encoding/json"
	"time"
)

// Type names a message variant on the wire.
type Type string

// Inbound message types.
const (
	TypeSubscribe         Type = "subscribe"
	TypeUnsubscribe       Type = "unsubscribe"
	TypeSubscribeAlerts   Type = "subscribe_alerts"
	TypeUnsubscribeAlerts Type = "unsubscribe_alerts"
	TypePing              Type = "ping"
)

// Outbound message types.
const (
	TypeConnected          Type = "connected"
	TypeSubscribed         Type = "subscribed"
	TypeUnsubscribed       Type = "unsubscribed"
	TypeAlertsSubscribed   Type = "alerts_subscribed"
	TypeAlertsUnsubscribed Type = "alerts_unsubscribed"
	TypePong               Type = "pong"
	TypeNews               Type = "news"
	TypeBreaking           Type = "breaking"
	TypeAlert              Type = "alert"
)

// AllAlertRules subscribes to every alert rule.
const AllAlertRules = "*"

// Envelope is the frame wrapping every message in both directions.
type Envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Filter is the content interest of a client. An empty filter matches every
// item.
type Filter struct {
	Sources    []string `json:"sources,omitempty" jsonschema:"maxItems=256"`
	Categories []string `json:"categories,omitempty" jsonschema:"maxItems=256"`
	Keywords   []string `json:"keywords,omitempty" jsonschema:"maxItems=256"`
	Coins      []string `json:"coins,omitempty" jsonschema:"maxItems=256"`
}

// IsEmpty reports whether no criteria are set.
func (f Filter) IsEmpty() bool {
	return len(f.Sources) == 0 && len(f.Categories) == 0 && len(f.Keywords) == 0 && len(f.Coins) == 0
}

// Timestamp formats t the way every outbound message carries it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
