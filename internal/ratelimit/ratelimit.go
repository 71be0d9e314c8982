// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package ratelimit implements per-client token bucket rate limiting for
// inbound socket messages.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default rate limiting values.
const (
	// DefaultBurst is the number of messages a client can send back to back.
	DefaultBurst = 20

	// DefaultRate is the sustained number of messages per second.
	DefaultRate = 5.0

	// MinRate is the lowest accepted refill rate.
	MinRate = 0.1

	// DefaultCleanupInterval is how often idle buckets are dropped.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultMaxIdle is how long a bucket may go unused before cleanup.
	DefaultMaxIdle = 10 * time.Minute
)

// Config configures a Limiter.
type Config struct {
	// Burst defaults to DefaultBurst if zero or negative.
	Burst int
	// Rate is tokens per second. Defaults to DefaultRate if zero or negative.
	Rate float64
	// CleanupInterval defaults to DefaultCleanupInterval.
	CleanupInterval time.Duration
	// MaxIdle defaults to DefaultMaxIdle.
	MaxIdle time.Duration
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter tracks one token bucket per client ID. It runs a background
// goroutine that drops idle buckets; call Close to stop it.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   int
	rate    float64
	maxIdle time.Duration
	now     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// nil if no registerer was provided
	bucketGauge prometheus.Gauge
}

// New creates a limiter. If reg is non-nil a gauge of tracked buckets is
// registered with it.
func New(cfg Config, reg prometheus.Registerer) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	if rate < MinRate {
		rate = MinRate
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}

	l := &Limiter{
		buckets:  make(map[string]*bucket),
		burst:    burst,
		rate:     rate,
		maxIdle:  maxIdle,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if reg != nil {
		l.bucketGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newswire_ratelimiter_clients",
			Help: "Clients currently tracked by the message rate limiter",
		})
		reg.MustRegister(l.bucketGauge)
	}

	l.wg.Add(1)
	go l.cleanupLoop(cleanupInterval)

	return l
}

// Allow consumes a token for clientID. When no token is available it returns
// false and the time until the next one.
func (l *Limiter) Allow(clientID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[clientID] = b
	}

	b.tokens += now.Sub(b.lastCheck).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastCheck = now

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}

	deficit := 1.0 - b.tokens
	return false, time.Duration(deficit / l.rate * float64(time.Second))
}

// Forget drops the bucket for clientID.
func (l *Limiter) Forget(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, clientID)
	l.updateGauge()
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Cleanup drops buckets unused for longer than maxIdle.
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-maxIdle)
	for id, b := range l.buckets {
		if b.lastCheck.Before(threshold) {
			delete(l.buckets, id)
		}
	}
	l.updateGauge()
}

// updateGauge must be called with mu held.
func (l *Limiter) updateGauge() {
	if l.bucketGauge != nil {
		l.bucketGauge.Set(float64(len(l.buckets)))
	}
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup(l.maxIdle)
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}
