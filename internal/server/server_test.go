// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newswire/newswire/internal/feed"
)

type stubSource struct {
	mu       sync.Mutex
	articles []feed.Article
	events   []feed.AlertEvent
}

func (s *stubSource) Latest(context.Context, int) ([]feed.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles, nil
}

func (s *stubSource) Breaking(context.Context, int) ([]feed.Article, error) {
	return nil, nil
}

func (s *stubSource) Evaluate(context.Context) ([]feed.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, nil
}

type stubUpstream struct{}

func (stubUpstream) RateLimit() (feed.RateLimitInfo, bool) {
	return feed.RateLimitInfo{Remaining: 42, Limit: 100}, true
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Content == nil {
		opts.Content = &stubSource{}
	}
	opts.ListenAddr = "127.0.0.1:0"
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresContentSource(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestNew_AlertsOptional(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Nil(t, s.AlertEvaluator())
	assert.Len(t, s.tasks, 2)

	src := &stubSource{}
	s = newTestServer(t, Options{Content: src, Alerts: src})
	assert.NotNil(t, s.AlertEvaluator())
	assert.Len(t, s.tasks, 3)
}

func TestRoutes_HealthAndStats(t *testing.T) {
	s := newTestServer(t, Options{Version: "0.1.0", Upstream: stubUpstream{}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "clients")
	assert.Contains(t, health, "uptime")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Contains(t, stats, "connections")
	assert.Contains(t, stats, "poller")
	assert.Contains(t, stats, "memory")
	assert.NotContains(t, stats, "alerts")
	assert.Equal(t, map[string]any{"remaining": float64(42), "limit": float64(100)}, stats["upstream"])
}

func TestRoutes_RootWithoutUpgradeServesHealth(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRoutes_UnknownPath(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestServer(t, Options{Registerer: reg, PollInterval: time.Hour})

	errCh, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Ready())
	assert.NotEmpty(t, s.Addr())

	_, err = s.Start(context.Background())
	require.Error(t, err, "second start fails")

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stop is idempotent")
	assert.False(t, s.Ready())

	_, open := <-errCh
	assert.False(t, open, "serve channel closed")
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	first := newTestServer(t, Options{PollInterval: time.Hour})
	_, err := first.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	second, err := New(Options{Content: &stubSource{}, ListenAddr: first.Addr()})
	require.NoError(t, err)
	_, err = second.Start(context.Background())
	require.Error(t, err)
	assert.False(t, second.Ready())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, Options{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.Ready, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
