// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package observability

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// StatusOK is the status reported by a healthy server.
const StatusOK = "ok"

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status  string  `json:"status"`
	Clients int     `json:"clients"`
	Uptime  float64 `json:"uptime"`
	Version string  `json:"version,omitempty"`
}

// MemoryReport describes process memory usage in bytes.
type MemoryReport struct {
	RSS        uint64 `json:"rss"`
	VMS        uint64 `json:"vms,omitempty"`
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapSys    uint64 `json:"heapSys"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

// Section contributes one named object to the stats report.
type Section struct {
	Name    string
	Collect func() any
}

// Reporter builds the health and stats reports served on the client
// listener.
type Reporter struct {
	version string
	started time.Time
	clients func() int
	now     func() time.Time

	procOnce sync.Once
	proc     *process.Process

	mu       sync.RWMutex
	sections []Section
}

// NewReporter creates a reporter. clients returns the current number of
// registered connections.
func NewReporter(version string, clients func() int) *Reporter {
	return &Reporter{
		version: version,
		started: time.Now(),
		clients: clients,
		now:     time.Now,
	}
}

// AddSection adds a named object to every stats report. Sections named
// like a built-in key replace it.
func (r *Reporter) AddSection(name string, collect func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sections = append(r.sections, Section{Name: name, Collect: collect})
}

// Uptime returns the time since the reporter was created.
func (r *Reporter) Uptime() time.Duration {
	return r.now().Sub(r.started)
}

// Health returns the liveness summary.
func (r *Reporter) Health() HealthReport {
	return HealthReport{
		Status:  StatusOK,
		Clients: r.clientCount(),
		Uptime:  r.Uptime().Seconds(),
		Version: r.version,
	}
}

// Stats returns the full stats object: the health fields, memory usage and
// every registered section.
func (r *Reporter) Stats() map[string]any {
	uptime := r.Uptime()
	report := map[string]any{
		"status":     StatusOK,
		"version":    r.version,
		"clients":    r.clientCount(),
		"uptime":     uptime.Seconds(),
		"uptimeText": uptime.Truncate(time.Second).String(),
		"startedAt":  r.started.UTC().Format(time.RFC3339),
		"memory":     r.Memory(),
	}

	r.mu.RLock()
	sections := append([]Section(nil), r.sections...)
	r.mu.RUnlock()

	for _, s := range sections {
		report[s.Name] = s.Collect()
	}
	return report
}

// Memory samples process memory. RSS and VMS come from the OS and are zero
// when the platform does not expose them.
func (r *Reporter) Memory() MemoryReport {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	report := MemoryReport{
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		NumGC:      ms.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}

	if proc := r.process(); proc != nil {
		if info, err := proc.MemoryInfo(); err == nil {
			report.RSS = info.RSS
			report.VMS = info.VMS
		}
	}
	return report
}

func (r *Reporter) process() *process.Process {
	r.procOnce.Do(func() {
		proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pids fit in int32
		if err != nil {
			slog.Debug("process stats unavailable", "error", err)
			return
		}
		r.proc = proc
	})
	return r.proc
}

func (r *Reporter) clientCount() int {
	if r.clients == nil {
		return 0
	}
	return r.clients()
}

// HealthHandler serves GET /health.
func (r *Reporter) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, r.Health())
	}
}

// StatsHandler serves GET /stats.
func (r *Reporter) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, r.Stats())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("report write failed", "error", err)
	}
}
