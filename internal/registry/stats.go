// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package registry

// Stats summarises the registry for the stats endpoint.
type Stats struct {
	Clients          int `json:"clients"`
	OpenClients      int `json:"openClients"`
	FilteredClients  int `json:"filteredClients"`
	AlertSubscribers int `json:"alertSubscribers"`
	UniqueSources    int `json:"uniqueSources"`
	UniqueCategories int `json:"uniqueCategories"`
	UniqueKeywords   int `json:"uniqueKeywords"`
	UniqueCoins      int `json:"uniqueCoins"`
	UniqueAlertRules int `json:"uniqueAlertRules"`
}

// Stats computes connection counts and the number of distinct subscription
// values across all clients.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make(map[string]struct{})
	categories := make(map[string]struct{})
	keywords := make(map[string]struct{})
	coins := make(map[string]struct{})
	rules := make(map[string]struct{})

	s := Stats{Clients: len(r.entries)}
	for _, e := range r.entries {
		if e.conn.Open() {
			s.OpenClients++
		}
		if !e.filter.IsEmpty() {
			s.FilteredClients++
		}
		if len(e.alerts) > 0 {
			s.AlertSubscribers++
		}
		addAll(sources, e.filter.Sources)
		addAll(categories, e.filter.Categories)
		addAll(keywords, e.filter.Keywords)
		addAll(coins, e.filter.Coins)
		addAll(rules, e.alerts)
	}
	s.UniqueSources = len(sources)
	s.UniqueCategories = len(categories)
	s.UniqueKeywords = len(keywords)
	s.UniqueCoins = len(coins)
	s.UniqueAlertRules = len(rules)
	return s
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		set[v] = struct{}{}
	}
}
