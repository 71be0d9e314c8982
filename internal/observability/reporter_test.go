// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_Health(t *testing.T) {
	r := NewReporter("1.2.3", func() int { return 4 })
	r.now = func() time.Time { return r.started.Add(90 * time.Second) }

	rec := httptest.NewRecorder()
	r.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, HealthReport{Status: StatusOK, Clients: 4, Uptime: 90, Version: "1.2.3"}, got)
}

func TestReporter_StatsIncludesSections(t *testing.T) {
	r := NewReporter("dev", nil)
	r.AddSection("registry", func() any { return map[string]int{"clients": 2} })
	r.AddSection("poller", func() any { return map[string]int{"cycles": 7} })

	rec := httptest.NewRecorder()
	r.StatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusOK, got["status"])
	assert.InDelta(t, 0, got["clients"], 0)
	assert.Equal(t, map[string]any{"clients": float64(2)}, got["registry"])
	assert.Equal(t, map[string]any{"cycles": float64(7)}, got["poller"])

	memory, ok := got["memory"].(map[string]any)
	require.True(t, ok, "memory section present")
	assert.Positive(t, memory["heapAlloc"])
	assert.Positive(t, memory["goroutines"])
}

func TestReporter_SectionOverridesBuiltin(t *testing.T) {
	r := NewReporter("dev", nil)
	r.AddSection("status", func() any { return "degraded" })

	assert.Equal(t, "degraded", r.Stats()["status"])
}
