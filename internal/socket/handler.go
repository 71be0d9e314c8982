// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package socket is the WebSocket transport: it upgrades HTTP requests,
// registers each client and feeds its frames to the message handler.
package socket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/registry"
)

// Transport defaults.
const (
	DefaultMaxMessageBytes = 64 * 1024
	DefaultSendQueueSize   = 64
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultPongWait        = 75 * time.Second
)

// Config configures the transport.
type Config struct {
	// AllowedOrigins lists accepted Origin headers. "*" or an empty list
	// accepts any origin.
	AllowedOrigins []string
	// MaxMessageBytes is the largest inbound frame; larger frames close the
	// connection.
	MaxMessageBytes int64
	// SendQueueSize bounds the per-client outbound queue.
	SendQueueSize int
	WriteTimeout  time.Duration
	// PingInterval is how often protocol pings are written.
	PingInterval time.Duration
	// PongWait is how long a socket may stay silent before it is dropped.
	PongWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 5 / 2
	}
	return c
}

// Handler upgrades requests to WebSocket connections and serves them until
// they close.
type Handler struct {
	upgrader websocket.Upgrader
	registry *registry.Registry
	messages *MessageHandler
	cfg      Config
	metrics  *observability.Metrics
	logger   *slog.Logger

	active sync.WaitGroup
}

// NewHandler creates the transport handler.
func NewHandler(reg *registry.Registry, messages *MessageHandler, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		registry: reg,
		messages: messages,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		h.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	h.active.Add(1)
	defer h.active.Done()

	conn := newConn(ws, r.RemoteAddr, h.cfg, h.logger)
	clientID := registry.NewClientID()
	if err := h.registry.Register(clientID, conn); err != nil {
		h.logger.Warn("client registration failed", "remote_addr", r.RemoteAddr, "error", err)
		_ = conn.Close()
		conn.wait()
		return
	}
	h.metrics.RecordConnection("opened")
	h.logger.Info("client connected",
		"client_id", clientID,
		"remote_addr", r.RemoteAddr,
		"clients", h.registry.Len(),
	)

	reason := h.readLoop(clientID, conn, ws)

	h.registry.Remove(clientID)
	h.messages.Forget(clientID)
	_ = conn.Close()
	conn.wait()

	h.metrics.RecordConnection("closed")
	h.logger.Info("client disconnected",
		"client_id", clientID,
		"reason", reason,
		"clients", h.registry.Len(),
	)
}

// readLoop reads frames until the socket fails and returns a short reason.
func (h *Handler) readLoop(clientID string, conn *Conn, ws *websocket.Conn) string {
	ws.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return h.closeReason(clientID, err)
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		h.messages.Handle(clientID, conn, data)
	}
}

func (h *Handler) closeReason(clientID string, err error) string {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		h.logger.Warn("client frame exceeds size limit", "client_id", clientID, "limit", h.cfg.MaxMessageBytes)
		return "message_too_large"
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "client_closed"
	case websocket.IsUnexpectedCloseError(err):
		h.logger.Debug("unexpected close", "client_id", clientID, "error", err)
		return "abnormal_close"
	default:
		return "read_error"
	}
}

// Shutdown closes every registered connection and waits for their handlers
// to return, or for ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.registry.ForEach(func(e registry.Entry) bool {
		_ = e.Conn.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // caller inspects context errors directly
	}
}
