// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package socket

import (
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/protocol"
	"github.com/newswire/newswire/internal/ratelimit"
	"github.com/newswire/newswire/internal/registry"
)

// Message handling statuses used as metric labels.
const (
	statusOK          = "ok"
	statusMalformed   = "malformed"
	statusUnknown     = "unknown"
	statusRateLimited = "rate_limited"
	statusError       = "error"
)

// MessageHandler applies inbound client messages to the registry and replies
// on the client's connection. Bad input is logged and dropped; it never
// closes the connection.
type MessageHandler struct {
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewMessageHandler creates a handler. limiter may be nil to disable rate
// limiting.
func NewMessageHandler(reg *registry.Registry, limiter *ratelimit.Limiter, metrics *observability.Metrics, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		registry: reg,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one raw frame from clientID.
func (h *MessageHandler) Handle(clientID string, conn registry.Conn, raw []byte) {
	if h.limiter != nil {
		if ok, wait := h.limiter.Allow(clientID); !ok {
			h.metrics.RecordRateLimited()
			h.metrics.RecordClientMessage("", statusRateLimited)
			h.logger.Warn("client message rate limited",
				"client_id", clientID,
				"retry_in", wait,
			)
			return
		}
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		h.rejected(clientID, raw, err)
		return
	}

	reply, err := h.apply(clientID, msg)
	if err != nil {
		h.metrics.RecordClientMessage(string(msg.MessageType()), statusError)
		h.logger.Warn("client message failed",
			"client_id", clientID,
			"type", msg.MessageType(),
			"error", err,
		)
		return
	}
	h.metrics.RecordClientMessage(string(msg.MessageType()), statusOK)

	if err := conn.Send(reply); err != nil {
		h.logger.Debug("reply not delivered",
			"client_id", clientID,
			"type", reply.Type,
			"error", err,
		)
		return
	}
	h.metrics.RecordSent(string(reply.Type))
}

// Forget drops per-client state held by the handler.
func (h *MessageHandler) Forget(clientID string) {
	if h.limiter != nil {
		h.limiter.Forget(clientID)
	}
}

func (h *MessageHandler) apply(clientID string, msg protocol.ClientMessage) (protocol.Envelope, error) {
	now := h.now()

	switch m := msg.(type) {
	case protocol.Subscribe:
		f, err := h.registry.Subscribe(clientID, m.Filter)
		if err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Subscribed(f, now), nil

	case protocol.Unsubscribe:
		f, err := h.registry.Unsubscribe(clientID, m.Filter)
		if err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Unsubscribed(f, now), nil

	case protocol.SubscribeAlerts:
		ids, err := h.registry.SubscribeAlerts(clientID, m.RuleIDs)
		if err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.AlertsSubscribed(ids, now), nil

	case protocol.UnsubscribeAlerts:
		ids, err := h.registry.UnsubscribeAlerts(clientID, m.RuleIDs)
		if err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.AlertsUnsubscribed(ids, now), nil

	case protocol.Ping:
		if err := h.registry.Touch(clientID); err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.Pong(now), nil

	default:
		return protocol.Envelope{}, oops.Code(protocol.CodeUnknownType).
			Errorf("unhandled message type %T", msg)
	}
}

func (h *MessageHandler) rejected(clientID string, raw []byte, err error) {
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == protocol.CodeUnknownType {
		h.metrics.RecordClientMessage("", statusUnknown)
		h.logger.Info("ignoring unknown message type",
			"client_id", clientID,
			"error", err,
		)
		return
	}

	h.metrics.RecordClientMessage("", statusMalformed)
	h.logger.Warn("ignoring malformed message",
		"client_id", clientID,
		"bytes", len(raw),
		"error", err,
	)
}
