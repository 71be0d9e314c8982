// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package poller

import (
	"sync"
	"time"

	"github.com/newswire/newswire/internal/feed"
)

// backoff holds the Retry-After deadline set by a rate-limited upstream.
type backoff struct {
	mu    sync.Mutex
	until time.Time
}

// active reports whether now is before the deadline.
func (b *backoff) active(now time.Time) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.until, now.Before(b.until)
}

// observe extends the deadline if err carries a Retry-After hint.
func (b *backoff) observe(now time.Time, err error) (time.Duration, bool) {
	d, ok := feed.RetryAfter(err)
	if !ok {
		return 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if deadline := now.Add(d); deadline.After(b.until) {
		b.until = deadline
	}
	return d, true
}
