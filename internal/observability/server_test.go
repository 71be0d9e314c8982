// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startServer(t *testing.T, ready ReadinessChecker) (*Server, *Metrics) {
	t.Helper()
	reg := NewRegistry()
	metrics := NewMetrics(reg)
	server := NewServer("127.0.0.1:0", reg, ready)

	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server, metrics
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test-local URL
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server, metrics := startServer(t, func() bool { return true })

	metrics.RecordConnection("opened")
	metrics.RecordConnection("opened")
	metrics.RecordSent("news")
	metrics.RecordPoll("news", ResultOK, 20*time.Millisecond)

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	for _, want := range []string{
		"# HELP",
		"go_",
		"process_",
		`newswire_connections_total{event="opened"} 2`,
		`newswire_messages_sent_total{type="news"} 1`,
		`newswire_poll_cycles_total{kind="news",result="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestServer_Liveness(t *testing.T) {
	server, _ := startServer(t, nil)

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		ready  ReadinessChecker
		status int
		body   string
	}{
		{name: "ready", ready: func() bool { return true }, status: http.StatusOK, body: "ok"},
		{name: "not ready", ready: func() bool { return false }, status: http.StatusServiceUnavailable, body: "not ready"},
		{name: "nil checker", ready: nil, status: http.StatusOK, body: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := startServer(t, tt.ready)
			status, body := get(t, "http://"+server.Addr()+"/healthz/readiness")
			if status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, status)
			}
			if strings.TrimSpace(body) != tt.body {
				t.Errorf("expected body %q, got %q", tt.body, body)
			}
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server, _ := startServer(t, nil)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on double start, got nil")
	}
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer("127.0.0.1:0", NewRegistry(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Errorf("stop without start should not error: %v", err)
	}
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", NewRegistry(), nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		if serveErr == nil {
			t.Error("expected an error after closing the listener")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for serve error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Stop(ctx)
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", NewRegistry(), nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected error on normal shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordConnection("opened")
	m.RecordSent("news")
	m.RecordSendFailure("closed")
	m.RecordBroadcast("news", 3)
	m.RecordPoll("news", ResultError, time.Second)
	m.RecordEviction("idle")
	m.RecordClientMessage("ping", "ok")
	m.RecordRateLimited()
}
