// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package registrytest provides an in-memory registry.Conn for tests.
package registrytest

import (
	"errors"
	"sync"

	"github.com/newswire/newswire/internal/protocol"
	"github.com/newswire/newswire/internal/registry"
)

// Conn records every envelope sent to it.
type Conn struct {
	Addr string

	mu      sync.Mutex
	sent    []protocol.Envelope
	closed  bool
	sendErr error
	panicOn bool
}

// NewConn returns an open connection.
func NewConn(addr string) *Conn {
	return &Conn{Addr: addr}
}

// Send records env, or fails as configured.
func (c *Conn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.panicOn {
		panic("registrytest: send panic")
	}
	if c.closed {
		return registry.ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, env)
	return nil
}

// Open reports whether Close has not been called.
func (c *Conn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close marks the connection closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// RemoteAddr returns Addr.
func (c *Conn) RemoteAddr() string { return c.Addr }

// FailWith makes subsequent sends return err.
func (c *Conn) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// PanicOnSend makes subsequent sends panic.
func (c *Conn) PanicOnSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicOn = true
}

// Sent returns a copy of the envelopes delivered so far.
func (c *Conn) Sent() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentOfType returns the delivered envelopes of the given type.
func (c *Conn) SentOfType(typ protocol.Type) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range c.Sent() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// ErrTransient is a send failure that does not mean the connection is gone.
var ErrTransient = errors.New("registrytest: transient send failure")
