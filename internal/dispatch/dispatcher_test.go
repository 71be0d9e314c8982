// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/protocol"
	"github.com/newswire/newswire/internal/registry"
	"github.com/newswire/newswire/internal/registry/registrytest"
)

var batch = []feed.Article{
	{Link: "1", Title: "DeFi protocol exploited for $2M", SourceKey: "theblock"},
	{Link: "2", Title: "Bitcoin hits new high", SourceKey: "coindesk", Category: "markets"},
	{Link: "3", Title: "SEC delays ETF decision", SourceKey: "decrypt", Category: "regulation"},
}

type client struct {
	id   string
	conn *registrytest.Conn
}

func setup(t *testing.T, opts Options) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.Options{})
	return New(reg, opts), reg
}

func connect(t *testing.T, reg *registry.Registry, f protocol.Filter) client {
	t.Helper()
	c := client{id: registry.NewClientID(), conn: registrytest.NewConn("addr")}
	require.NoError(t, reg.Register(c.id, c.conn))
	if !f.IsEmpty() {
		_, err := reg.Subscribe(c.id, f)
		require.NoError(t, err)
	}
	return c
}

func links(t *testing.T, env protocol.Envelope) []string {
	t.Helper()
	var payload struct {
		Articles []feed.Article `json:"articles"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	out := make([]string, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		out = append(out, a.Link)
	}
	return out
}

func TestBroadcastContent_SendsMatchedSubsetOnce(t *testing.T) {
	d, reg := setup(t, Options{})
	firehose := connect(t, reg, protocol.Filter{})
	defi := connect(t, reg, protocol.Filter{Keywords: []string{"defi"}})
	markets := connect(t, reg, protocol.Filter{Categories: []string{"markets"}, Sources: []string{"decrypt"}})
	nobody := connect(t, reg, protocol.Filter{Keywords: []string{"dogecoin"}})

	result := d.BroadcastContent(batch, false)
	assert.Equal(t, 3, result.Delivered)

	news := firehose.conn.SentOfType(protocol.TypeNews)
	require.Len(t, news, 1)
	assert.Equal(t, []string{"1", "2", "3"}, links(t, news[0]))

	news = defi.conn.SentOfType(protocol.TypeNews)
	require.Len(t, news, 1)
	assert.Equal(t, []string{"1"}, links(t, news[0]))

	news = markets.conn.SentOfType(protocol.TypeNews)
	require.Len(t, news, 1)
	assert.Equal(t, []string{"2", "3"}, links(t, news[0]))

	assert.Empty(t, nobody.conn.SentOfType(protocol.TypeNews))
}

func TestBroadcastContent_BreakingType(t *testing.T) {
	d, reg := setup(t, Options{})
	c := connect(t, reg, protocol.Filter{})

	d.BroadcastContent(batch[:1], true)

	assert.Len(t, c.conn.SentOfType(protocol.TypeBreaking), 1)
	assert.Empty(t, c.conn.SentOfType(protocol.TypeNews))
}

func TestBroadcastContent_EmptyBatch(t *testing.T) {
	d, reg := setup(t, Options{})
	c := connect(t, reg, protocol.Filter{})

	assert.Equal(t, Result{}, d.BroadcastContent(nil, false))
	assert.Len(t, c.conn.Sent(), 1, "only the welcome")
}

func TestBroadcastContent_IsolatesFailures(t *testing.T) {
	d, reg := setup(t, Options{})
	a := connect(t, reg, protocol.Filter{})
	b := connect(t, reg, protocol.Filter{})
	c := connect(t, reg, protocol.Filter{})
	panicky := connect(t, reg, protocol.Filter{})

	a.conn.FailWith(registrytest.ErrTransient)
	panicky.conn.PanicOnSend()

	var result Result
	require.NotPanics(t, func() { result = d.BroadcastContent(batch, false) })

	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Removed)
	assert.Len(t, b.conn.SentOfType(protocol.TypeNews), 1)
	assert.Len(t, c.conn.SentOfType(protocol.TypeNews), 1)

	_, ok := reg.Get(a.id)
	assert.True(t, ok, "transient failures are left for the sweeper")
}

func TestBroadcastAlert_RemovesClosedConnection(t *testing.T) {
	d, reg := setup(t, Options{})
	dead := connect(t, reg, protocol.Filter{})
	live := connect(t, reg, protocol.Filter{})
	_, err := reg.SubscribeAlerts(dead.id, nil)
	require.NoError(t, err)
	_, err = reg.SubscribeAlerts(live.id, nil)
	require.NoError(t, err)

	// Closed between the open check and the send.
	dead.conn.FailWith(registry.ErrConnClosed)

	result := d.BroadcastAlert(feed.AlertEvent{ID: "e1", RuleID: "r1"})
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 1, result.Removed)

	_, ok := reg.Get(dead.id)
	assert.False(t, ok)
	assert.False(t, dead.conn.Open())
}

func TestBroadcastContent_SkipsClosedConnections(t *testing.T) {
	d, reg := setup(t, Options{})
	closed := connect(t, reg, protocol.Filter{})
	require.NoError(t, closed.conn.Close())

	result := d.BroadcastContent(batch, false)
	assert.Zero(t, result.Delivered)
	assert.Zero(t, result.Failed)
}

func TestBroadcastAlert_FanOut(t *testing.T) {
	d, reg := setup(t, Options{})
	r1 := connect(t, reg, protocol.Filter{})
	all := connect(t, reg, protocol.Filter{})
	none := connect(t, reg, protocol.Filter{})
	_, err := reg.SubscribeAlerts(r1.id, []string{"r1"})
	require.NoError(t, err)
	_, err = reg.SubscribeAlerts(all.id, []string{"*"})
	require.NoError(t, err)

	d.BroadcastAlert(feed.AlertEvent{ID: "e1", RuleID: "r1"})
	d.BroadcastAlert(feed.AlertEvent{ID: "e2", RuleID: "r2"})

	got := r1.conn.SentOfType(protocol.TypeAlert)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"e1","ruleId":"r1"}`, string(got[0].Payload))

	assert.Len(t, all.conn.SentOfType(protocol.TypeAlert), 2)
	assert.Empty(t, none.conn.SentOfType(protocol.TypeAlert))
}

func TestBroadcastAlert_NoDedupByDefault(t *testing.T) {
	d, reg := setup(t, Options{})
	c := connect(t, reg, protocol.Filter{})
	_, err := reg.SubscribeAlerts(c.id, nil)
	require.NoError(t, err)

	d.BroadcastAlert(feed.AlertEvent{ID: "e1", RuleID: "r1"})
	d.BroadcastAlert(feed.AlertEvent{ID: "e1", RuleID: "r1"})

	assert.Len(t, c.conn.SentOfType(protocol.TypeAlert), 2)
}

func TestBroadcastAlert_DedupWindow(t *testing.T) {
	d, reg := setup(t, Options{AlertDedupSize: 2})
	c := connect(t, reg, protocol.Filter{})
	_, err := reg.SubscribeAlerts(c.id, nil)
	require.NoError(t, err)

	assert.False(t, d.BroadcastAlert(feed.AlertEvent{ID: "e1", RuleID: "r"}).Duplicate)
	assert.True(t, d.BroadcastAlert(feed.AlertEvent{ID: "e1", RuleID: "r"}).Duplicate)
	d.BroadcastAlert(feed.AlertEvent{ID: "e2", RuleID: "r"})
	d.BroadcastAlert(feed.AlertEvent{ID: "e3", RuleID: "r"})
	// e1 has been pushed out of the window.
	assert.False(t, d.BroadcastAlert(feed.AlertEvent{ID: "e1", RuleID: "r"}).Duplicate)

	assert.Len(t, c.conn.SentOfType(protocol.TypeAlert), 4)
}

func TestDispatcher_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	d, clients := setup(t, Options{Metrics: metrics})
	connect(t, clients, protocol.Filter{})
	bad := connect(t, clients, protocol.Filter{})
	bad.conn.FailWith(registrytest.ErrTransient)

	d.BroadcastContent(batch, false)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MessagesSent.WithLabelValues("news")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SendFailures.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Broadcasts.WithLabelValues("news")), 0)
}
