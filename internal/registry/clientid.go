// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package registry

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewClientID generates a client identifier. IDs are ULIDs drawn from a
// monotonic source, so every call in a process returns a distinct value.
func NewClientID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
