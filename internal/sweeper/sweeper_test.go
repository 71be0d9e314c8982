// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package sweeper

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newswire/newswire/internal/observability"
	"github.com/newswire/newswire/internal/registry"
	"github.com/newswire/newswire/internal/registry/registrytest"
)

func TestSweep(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	now := start
	reg := registry.New(registry.Options{Now: func() time.Time { return now }})

	fresh := registrytest.NewConn("fresh")
	stale := registrytest.NewConn("stale")
	dead := registrytest.NewConn("dead")
	require.NoError(t, reg.Register("stale", stale))
	require.NoError(t, reg.Register("dead", dead))

	now = start.Add(4 * time.Minute)
	require.NoError(t, reg.Register("fresh", fresh))
	require.NoError(t, dead.Close())

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := New(reg, Config{IdleTimeout: 5 * time.Minute}, metrics, nil)

	result := s.Sweep(start.Add(6 * time.Minute))

	assert.Equal(t, Result{Scanned: 3, Closed: 1, Idle: 1}, result)
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("fresh")
	assert.True(t, ok)
	assert.False(t, stale.Open(), "evicted connections are closed")
	assert.True(t, fresh.Open())

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Evictions.WithLabelValues(ReasonIdle)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Evictions.WithLabelValues(ReasonClosed)), 0)
}

func TestSweep_PingKeepsClientAlive(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	now := start
	reg := registry.New(registry.Options{Now: func() time.Time { return now }})
	require.NoError(t, reg.Register("c", registrytest.NewConn("c")))

	now = start.Add(4 * time.Minute)
	require.NoError(t, reg.Touch("c"))

	s := New(reg, Config{}, nil, nil)
	assert.Zero(t, s.Sweep(start.Add(8*time.Minute)).Evicted())
	assert.Equal(t, 1, s.Sweep(start.Add(10*time.Minute)).Evicted())
	assert.Zero(t, reg.Len())
}

// pingOnFirstCheck touches the client the first time the sweeper asks
// whether the connection is open, as if a ping raced the sweep.
type pingOnFirstCheck struct {
	*registrytest.Conn
	touch func()
	once  sync.Once
}

func (c *pingOnFirstCheck) Open() bool {
	c.once.Do(c.touch)
	return c.Conn.Open()
}

func TestSweep_PingDuringSweepKeepsClient(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	now := start
	reg := registry.New(registry.Options{Now: func() time.Time { return now }})

	conn := &pingOnFirstCheck{Conn: registrytest.NewConn("c")}
	conn.touch = func() { require.NoError(t, reg.Touch("c")) }
	require.NoError(t, reg.Register("c", conn))

	now = start.Add(10 * time.Minute)
	s := New(reg, Config{IdleTimeout: 5 * time.Minute}, nil, nil)

	result := s.Sweep(now)
	assert.Zero(t, result.Evicted())
	assert.Equal(t, 1, reg.Len())
	assert.True(t, conn.Conn.Open())
}

func TestSweep_EmptyRegistry(t *testing.T) {
	s := New(registry.New(registry.Options{}), Config{}, nil, nil)
	assert.Equal(t, Result{}, s.Sweep(time.Now()))
}
