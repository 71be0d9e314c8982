// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/newswire/newswire/internal/observability"
)

// Output formats for the status command.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// ServerStatus is what the status command learned about a running server.
type ServerStatus struct {
	Addr    string                      `json:"addr" yaml:"addr"`
	Running bool                        `json:"running" yaml:"running"`
	Health  *observability.HealthReport `json:"health,omitempty" yaml:"health,omitempty"`
	Stats   map[string]any              `json:"stats,omitempty" yaml:"stats,omitempty"`
	Error   string                      `json:"error,omitempty" yaml:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr    string
	output  string
	retries uint64
	timeout time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running newswire server",
		Long: `Query a running server's /health and /stats endpoints and print its
health, connected clients and poller state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVarP(&cfg.output, "output", "o", outputTable, "output format (table, json or yaml)")
	cmd.Flags().Uint64Var(&cfg.retries, "retries", 3, "connection attempts before giving up")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "timeout per request")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	switch cfg.output {
	case outputTable, outputJSON, outputYAML:
	default:
		return oops.Code("INVALID_OUTPUT").With("output", cfg.output).
			Errorf("output must be table, json or yaml, got %q", cfg.output)
	}

	status := queryServerStatus(cmd.Context(), cfg)
	if status.Health != nil {
		if warning := versionSkew(version, status.Health.Version); warning != "" {
			cmd.PrintErrln("warning:", warning)
		}
	}

	var out string
	var err error
	switch cfg.output {
	case outputJSON:
		out, err = formatStatusJSON(status)
	case outputYAML:
		out, err = formatStatusYAML(status)
	default:
		out = formatStatusTable(status)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), out)

	if !status.Running {
		return oops.Code("SERVER_UNREACHABLE").With("addr", cfg.addr).Errorf("%s", status.Error)
	}
	return nil
}

// queryServerStatus fetches /health, retrying connection failures, then
// /stats once.
func queryServerStatus(ctx context.Context, cfg *statusConfig) ServerStatus {
	if ctx == nil {
		ctx = context.Background()
	}
	base := strings.TrimRight(cfg.addr, "/")
	status := ServerStatus{Addr: base}
	client := &http.Client{Timeout: cfg.timeout}

	attempts := cfg.retries
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(200*time.Millisecond))

	var health observability.HealthReport
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return getJSON(ctx, client, base+"/health", &health)
	})
	if err != nil {
		status.Error = fmt.Sprintf("failed to reach server: %v", err)
		return status
	}
	status.Running = true
	status.Health = &health

	var stats map[string]any
	if err := getJSON(ctx, client, base+"/stats", &stats); err == nil {
		status.Stats = stats
	}
	return status
}

// getJSON decodes a JSON response. Transport failures and 5xx responses are
// retryable.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return oops.With("url", url).Wrap(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return retry.RetryableError(oops.With("url", url).Wrap(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		statusErr := oops.With("url", url).With("status", resp.StatusCode).
			Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(statusErr)
		}
		return statusErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.With("url", url).Wrapf(err, "decoding response")
	}
	return nil
}

// versionSkew describes a major or minor version mismatch between this CLI
// and the server. Unparseable versions such as "dev" are not compared.
func versionSkew(client, srv string) string {
	cv, err := semver.NewVersion(client)
	if err != nil {
		return ""
	}
	sv, err := semver.NewVersion(srv)
	if err != nil {
		return ""
	}
	if cv.Major() != sv.Major() || cv.Minor() != sv.Minor() {
		return fmt.Sprintf("server version %s differs from client version %s", sv, cv)
	}
	return ""
}

func formatStatusTable(s ServerStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "SERVER\tSTATUS\tVERSION\tCLIENTS\tUPTIME")
	_, _ = fmt.Fprintln(w, "------\t------\t-------\t-------\t------")
	if !s.Running {
		reason := "not running"
		if s.Error != "" {
			reason = s.Error
		}
		_, _ = fmt.Fprintf(w, "%s\tdown\t-\t-\t%s\n", s.Addr, reason)
		_ = w.Flush()
		return b.String()
	}

	h := s.Health
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
		s.Addr, h.Status, orDash(h.Version), h.Clients, formatUptime(int64(h.Uptime)))
	_ = w.Flush()

	if len(s.Stats) > 0 {
		b.WriteString("\n")
		for _, section := range []string{"connections", "poller", "alerts", "upstream"} {
			if fields, ok := s.Stats[section].(map[string]any); ok {
				b.WriteString(section + ": " + formatFields(fields) + "\n")
			}
		}
	}
	return b.String()
}

// formatFields renders a stats section as sorted key=value pairs.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func formatStatusJSON(s ServerStatus) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", oops.Wrapf(err, "failed to marshal status")
	}
	return string(data) + "\n", nil
}

func formatStatusYAML(s ServerStatus) (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", oops.Wrapf(err, "failed to marshal status")
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
