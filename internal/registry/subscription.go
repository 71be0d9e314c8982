// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package registry

import (
	"slices"
	"strings"

	"github.com/newswire/newswire/internal/protocol"
)

// Subscribe unions f into the client's filter and returns the result.
// Values already held are ignored; blank values are dropped.
func (r *Registry) Subscribe(clientID string, f protocol.Filter) (protocol.Filter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[clientID]
	if !ok {
		return protocol.Filter{}, clientNotFound(clientID)
	}
	e.filter = protocol.Filter{
		Sources:    union(e.filter.Sources, f.Sources),
		Categories: union(e.filter.Categories, f.Categories),
		Keywords:   union(e.filter.Keywords, f.Keywords),
		Coins:      union(e.filter.Coins, f.Coins),
	}
	return copyFilter(e.filter), nil
}

// Unsubscribe removes the values in f from the client's filter and returns
// the result.
func (r *Registry) Unsubscribe(clientID string, f protocol.Filter) (protocol.Filter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[clientID]
	if !ok {
		return protocol.Filter{}, clientNotFound(clientID)
	}
	e.filter = protocol.Filter{
		Sources:    difference(e.filter.Sources, f.Sources),
		Categories: difference(e.filter.Categories, f.Categories),
		Keywords:   difference(e.filter.Keywords, f.Keywords),
		Coins:      difference(e.filter.Coins, f.Coins),
	}
	return copyFilter(e.filter), nil
}

// SubscribeAlerts adds rule IDs to the client's alert set. With no IDs the
// client is subscribed to every rule.
func (r *Registry) SubscribeAlerts(clientID string, ruleIDs []string) ([]string, error) {
	if len(clean(ruleIDs)) == 0 {
		ruleIDs = []string{protocol.AllAlertRules}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[clientID]
	if !ok {
		return nil, clientNotFound(clientID)
	}
	e.alerts = union(e.alerts, ruleIDs)
	return slices.Clone(e.alerts), nil
}

// UnsubscribeAlerts removes rule IDs from the client's alert set. With no IDs
// the set is cleared.
func (r *Registry) UnsubscribeAlerts(clientID string, ruleIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[clientID]
	if !ok {
		return nil, clientNotFound(clientID)
	}
	if len(clean(ruleIDs)) == 0 {
		e.alerts = nil
	} else {
		e.alerts = difference(e.alerts, ruleIDs)
	}
	return slices.Clone(e.alerts), nil
}

// union appends the values of add not already in base, keeping first-seen
// order.
func union(base, add []string) []string {
	out := slices.Clone(base)
	for _, v := range clean(add) {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func difference(base, remove []string) []string {
	drop := clean(remove)
	if len(drop) == 0 {
		return slices.Clone(base)
	}
	out := make([]string, 0, len(base))
	for _, v := range base {
		if !slices.Contains(drop, v) {
			out = append(out, v)
		}
	}
	return out
}

func clean(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func copyFilter(f protocol.Filter) protocol.Filter {
	return protocol.Filter{
		Sources:    slices.Clone(f.Sources),
		Categories: slices.Clone(f.Categories),
		Keywords:   slices.Clone(f.Keywords),
		Coins:      slices.Clone(f.Coins),
	}
}
