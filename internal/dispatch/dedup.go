// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package dispatch

import "sync"

// dedupWindow remembers the most recent event IDs in a fixed-size ring.
type dedupWindow struct {
	mu   sync.Mutex
	ring []string
	next int
	ids  map[string]struct{}
}

// newDedupWindow returns nil for a non-positive size, which disables
// deduplication.
func newDedupWindow(size int) *dedupWindow {
	if size <= 0 {
		return nil
	}
	return &dedupWindow{
		ring: make([]string, size),
		ids:  make(map[string]struct{}, size),
	}
}

// seen reports whether id is already in the window and records it if not.
// Empty IDs are never deduplicated.
func (w *dedupWindow) seen(id string) bool {
	if w == nil || id == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.ids[id]; ok {
		return true
	}
	if old := w.ring[w.next]; old != "" {
		delete(w.ids, old)
	}
	w.ring[w.next] = id
	w.ids[id] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	return false
}
