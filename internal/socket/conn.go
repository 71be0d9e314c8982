// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package socket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"

	"github.com/newswire/newswire/internal/protocol"
	"github.com/newswire/newswire/internal/registry"
)

// CodeSendQueueFull is returned by Send when the client is not draining its
// queue fast enough.
const CodeSendQueueFull = "SEND_QUEUE_FULL"

// Conn adapts a websocket to registry.Conn. Sends are queued and written by
// a single writer goroutine, so a slow client never blocks the sender.
type Conn struct {
	ws     *websocket.Conn
	remote string
	cfg    Config
	logger *slog.Logger

	send      chan protocol.Envelope
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	writerWG  sync.WaitGroup
}

func newConn(ws *websocket.Conn, remote string, cfg Config, logger *slog.Logger) *Conn {
	c := &Conn{
		ws:     ws,
		remote: remote,
		cfg:    cfg,
		logger: logger,
		send:   make(chan protocol.Envelope, cfg.SendQueueSize),
		done:   make(chan struct{}),
	}
	c.writerWG.Add(1)
	go c.writeLoop()
	return c
}

// Send queues env for delivery.
func (c *Conn) Send(env protocol.Envelope) error {
	if c.closed.Load() {
		return oops.With("remote_addr", c.remote).Wrap(registry.ErrConnClosed)
	}
	select {
	case <-c.done:
		return oops.With("remote_addr", c.remote).Wrap(registry.ErrConnClosed)
	case c.send <- env:
		return nil
	default:
		return oops.Code(CodeSendQueueFull).
			With("remote_addr", c.remote).
			With("queue_size", c.cfg.SendQueueSize).
			Errorf("send queue full")
	}
}

// Open reports whether the connection has not been closed.
func (c *Conn) Open() bool {
	return !c.closed.Load()
}

// RemoteAddr returns the client's network address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// Close sends a close frame and tears down the socket. Queued messages that
// have not been written are dropped.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}

// wait blocks until the writer goroutine has exited.
func (c *Conn) wait() {
	c.writerWG.Wait()
}

func (c *Conn) writeLoop() {
	defer c.writerWG.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case env := <-c.send:
			data, err := json.Marshal(env)
			if err != nil {
				c.logger.Error("marshal outbound message", "type", env.Type, "error", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed, closing connection", "remote_addr", c.remote, "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed, closing connection", "remote_addr", c.remote, "error", err)
				_ = c.Close()
				return
			}
		}
	}
}
