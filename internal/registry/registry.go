// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package registry tracks live client connections and the subscription state
// attached to each of them. The Registry is the only owner of that state;
// callers receive copies.
package registry

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/newswire/newswire/internal/protocol"
)

// DefaultWelcomeMessage is the message text of the connected greeting.
const DefaultWelcomeMessage = "Connected to newswire real-time feed"

// DefaultFeatures advertises the server capabilities in the greeting.
var DefaultFeatures = []string{"news", "breaking", "alerts", "filters"}

// Conn is the outbound side of a client connection.
type Conn interface {
	// Send queues an envelope for delivery and must not block; Register
	// calls it with the registry lock held. It returns an error wrapping
	// ErrConnClosed once the connection is gone.
	Send(env protocol.Envelope) error
	// Open reports whether the connection can still deliver messages.
	Open() bool
	// Close tears down the connection. It is safe to call more than once.
	Close() error
	// RemoteAddr is used for diagnostics only.
	RemoteAddr() string
}

// Entry is a copy of one client's registry state.
type Entry struct {
	ClientID           string
	RemoteAddr         string
	Subscription       protocol.Filter
	AlertSubscriptions []string
	ConnectedAt        time.Time
	LastPing           time.Time
	Conn               Conn
}

// Options configures a Registry.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// WelcomeMessage defaults to DefaultWelcomeMessage.
	WelcomeMessage string
	// Features defaults to DefaultFeatures.
	Features []string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type entry struct {
	conn        Conn
	remoteAddr  string
	filter      protocol.Filter
	alerts      []string
	connectedAt time.Time
	lastPing    time.Time
}

func (e *entry) snapshot(clientID string) Entry {
	return Entry{
		ClientID:           clientID,
		RemoteAddr:         e.remoteAddr,
		Subscription:       copyFilter(e.filter),
		AlertSubscriptions: slices.Clone(e.alerts),
		ConnectedAt:        e.connectedAt,
		LastPing:           e.lastPing,
		Conn:               e.conn,
	}
}

// Registry is a mutex-guarded table of connection entries keyed by client ID.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	now      func() time.Time
	welcome  string
	features []string
	logger   *slog.Logger
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WelcomeMessage == "" {
		opts.WelcomeMessage = DefaultWelcomeMessage
	}
	if opts.Features == nil {
		opts.Features = DefaultFeatures
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		entries:  make(map[string]*entry),
		now:      opts.Now,
		welcome:  opts.WelcomeMessage,
		features: slices.Clone(opts.Features),
		logger:   opts.Logger,
	}
}

// Register adds a connection under clientID and greets it with a connected
// message. The greeting is queued before the entry becomes visible, so no
// broadcast can reach the client ahead of it. If the greeting cannot be
// queued nothing is registered and the send error is returned.
func (r *Registry) Register(clientID string, conn Conn) error {
	if err := r.insert(clientID, conn); err != nil {
		return err
	}
	r.logger.Debug("client registered",
		"client_id", clientID,
		"remote_addr", conn.RemoteAddr(),
	)
	return nil
}

func (r *Registry) insert(clientID string, conn Conn) error {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[clientID]; exists {
		return oops.Code(CodeDuplicateClient).
			With("client_id", clientID).
			Errorf("client %s already registered", clientID)
	}

	welcome := protocol.Connected(clientID, r.welcome, r.features, now)
	if err := conn.Send(welcome); err != nil {
		return oops.Code("WELCOME_FAILED").
			With("client_id", clientID).
			Wrapf(err, "send welcome")
	}

	r.entries[clientID] = &entry{
		conn:        conn,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: now,
		lastPing:    now,
	}
	return nil
}

// Get returns a copy of the entry for clientID.
func (r *Registry) Get(clientID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[clientID]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(clientID), true
}

// Remove deletes the entry for clientID. It reports whether an entry existed.
// The connection itself is not closed.
func (r *Registry) Remove(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[clientID]; !ok {
		return false
	}
	delete(r.entries, clientID)
	return true
}

// RemoveIf deletes the entry for clientID when cond holds for its current
// state. cond runs with the registry lock held and must not call back into
// the registry. It reports whether the entry was removed.
func (r *Registry) RemoveIf(clientID string, cond func(Entry) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[clientID]
	if !ok || !cond(e.snapshot(clientID)) {
		return false
	}
	delete(r.entries, clientID)
	return true
}

// ForEach calls fn with a copy of every entry as of the moment ForEach was
// called. fn runs without the registry lock held and may call back into the
// registry. Iteration order is unspecified. Returning false stops early.
func (r *Registry) ForEach(fn func(Entry) bool) {
	for _, e := range r.Snapshot() {
		if !fn(e) {
			return
		}
	}
}

// Snapshot returns copies of every entry.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Entry, 0, len(r.entries))
	for id, e := range r.entries {
		result = append(result, e.snapshot(id))
	}
	return result
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Touch records a ping from clientID.
func (r *Registry) Touch(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[clientID]
	if !ok {
		return clientNotFound(clientID)
	}
	e.lastPing = r.now()
	return nil
}
