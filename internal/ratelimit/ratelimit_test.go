// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, cfg Config, reg prometheus.Registerer) (*Limiter, *clock) {
	t.Helper()
	l := New(cfg, reg)
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = c.Now
	t.Cleanup(l.Close)
	return l, c
}

func TestNew_Defaults(t *testing.T) {
	t.Run("zero values use defaults", func(t *testing.T) {
		l, _ := newLimiter(t, Config{}, nil)
		assert.Equal(t, DefaultBurst, l.burst)
		assert.InDelta(t, DefaultRate, l.rate, 0)
	})

	t.Run("negative values use defaults", func(t *testing.T) {
		l, _ := newLimiter(t, Config{Burst: -1, Rate: -2}, nil)
		assert.Equal(t, DefaultBurst, l.burst)
		assert.InDelta(t, DefaultRate, l.rate, 0)
	})

	t.Run("tiny rate is clamped", func(t *testing.T) {
		l, _ := newLimiter(t, Config{Rate: 0.01}, nil)
		assert.InDelta(t, MinRate, l.rate, 0)
	})
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, c := newLimiter(t, Config{Burst: 3, Rate: 2}, nil)

	for i := range 3 {
		ok, _ := l.Allow("client")
		assert.True(t, ok, "message %d within burst", i)
	}

	ok, wait := l.Allow("client")
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	c.Advance(500 * time.Millisecond)
	ok, _ = l.Allow("client")
	assert.True(t, ok, "one token refilled")
}

func TestAllow_ClientsAreIndependent(t *testing.T) {
	l, _ := newLimiter(t, Config{Burst: 1, Rate: 1}, nil)

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok)
}

func TestAllow_RefillCapsAtBurst(t *testing.T) {
	l, c := newLimiter(t, Config{Burst: 2, Rate: 10}, nil)

	l.Allow("a")
	c.Advance(time.Hour)

	allowed := 0
	for range 5 {
		if ok, _ := l.Allow("a"); ok {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestCleanupAndForget(t *testing.T) {
	reg := prometheus.NewRegistry()
	l, c := newLimiter(t, Config{}, reg)

	l.Allow("old")
	c.Advance(time.Hour)
	l.Allow("new")

	l.Cleanup(time.Minute)
	assert.Equal(t, 1, l.Len())
	assert.InDelta(t, 1, testutil.ToFloat64(l.bucketGauge), 0)

	l.Forget("new")
	assert.Zero(t, l.Len())
	assert.InDelta(t, 0, testutil.ToFloat64(l.bucketGauge), 0)
}

func TestClose_StopsGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := New(Config{CleanupInterval: time.Millisecond}, nil)
	l.Allow("a")
	l.Close()
	l.Close()
}
