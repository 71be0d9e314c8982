// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Result labels for poll cycles.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultPaused  = "paused"
)

// Metrics holds the server's Prometheus collectors. All methods are safe to
// call on a nil *Metrics, which records nothing.
type Metrics struct {
	ConnectionsTotal   *prometheus.CounterVec
	MessagesSent       *prometheus.CounterVec
	SendFailures       *prometheus.CounterVec
	Broadcasts         *prometheus.CounterVec
	BroadcastRecipient *prometheus.HistogramVec
	PollCycles         *prometheus.CounterVec
	PollDuration       *prometheus.HistogramVec
	Evictions          *prometheus.CounterVec
	ClientMessages     *prometheus.CounterVec
	RateLimited        prometheus.Counter
}

// NewRegistry returns a private registry with the Go and process collectors
// already registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetrics creates the server metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswire_connections_total",
				Help: "Client connection lifecycle events by event",
			},
			[]string{"event"},
		),
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswire_messages_sent_total",
				Help: "Messages delivered to clients by type",
			},
			[]string{"type"},
		),
		SendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswire_send_failures_total",
				Help: "Failed client sends by reason",
			},
			[]string{"reason"},
		),
		Broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswire_broadcasts_total",
				Help: "Broadcast cycles by message type",
			},
			[]string{"type"},
		),
		BroadcastRecipient: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newswire_broadcast_recipients",
				Help:    "Clients reached per broadcast",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"type"},
		),
		PollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswire_poll_cycles_total",
				Help: "Upstream poll cycles by kind and result",
			},
			[]string{"kind", "result"},
		),
		PollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newswire_poll_duration_seconds",
				Help:    "Upstream poll cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		Evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswire_evictions_total",
				Help: "Connections removed by the sweeper by reason",
			},
			[]string{"reason"},
		),
		ClientMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newswire_client_messages_total",
				Help: "Inbound client messages by type and status",
			},
			[]string{"type", "status"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "newswire_client_messages_rate_limited_total",
				Help: "Inbound client messages dropped by the rate limiter",
			},
		),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.MessagesSent,
		m.SendFailures,
		m.Broadcasts,
		m.BroadcastRecipient,
		m.PollCycles,
		m.PollDuration,
		m.Evictions,
		m.ClientMessages,
		m.RateLimited,
	)
	return m
}

// RegisterClientGauge exposes the live client count read from count.
func RegisterClientGauge(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "newswire_clients",
			Help: "Currently registered clients",
		},
		func() float64 { return float64(count()) },
	))
}

// RecordConnection counts a connection lifecycle event such as "opened" or
// "closed".
func (m *Metrics) RecordConnection(event string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(event).Inc()
}

// RecordSent counts a delivered message.
func (m *Metrics) RecordSent(msgType string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(msgType).Inc()
}

// RecordSendFailure counts a failed delivery.
func (m *Metrics) RecordSendFailure(reason string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(reason).Inc()
}

// RecordBroadcast records one broadcast and the number of clients it reached.
func (m *Metrics) RecordBroadcast(msgType string, recipients int) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(msgType).Inc()
	m.BroadcastRecipient.WithLabelValues(msgType).Observe(float64(recipients))
}

// RecordPoll records an upstream cycle of the given kind.
func (m *Metrics) RecordPoll(kind, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PollCycles.WithLabelValues(kind, result).Inc()
	m.PollDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEviction counts a sweeper eviction.
func (m *Metrics) RecordEviction(reason string) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(reason).Inc()
}

// RecordClientMessage counts an inbound client message.
func (m *Metrics) RecordClientMessage(msgType, status string) {
	if m == nil {
		return
	}
	m.ClientMessages.WithLabelValues(msgType, status).Inc()
}

// RecordRateLimited counts a message dropped by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
