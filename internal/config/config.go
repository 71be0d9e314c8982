// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package config loads server settings from flags, an optional YAML file
// and NEWSWIRE_* environment variables.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/newswire/newswire/internal/feed"
	"github.com/newswire/newswire/internal/logging"
	"github.com/newswire/newswire/internal/xdg"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NEWSWIRE_"

// Content source kinds.
const (
	SourceHTTP = "http"
	SourceRSS  = "rss"
)

// CodeInvalid marks configuration errors.
const CodeInvalid = "CONFIG_INVALID"

// Config is the complete server configuration.
type Config struct {
	ListenAddr  string `koanf:"listen-addr"`
	MetricsAddr string `koanf:"metrics-addr"`

	UpstreamURL     string        `koanf:"upstream-url"`
	UpstreamAPIKey  string        `koanf:"upstream-api-key"`
	UpstreamTimeout time.Duration `koanf:"upstream-timeout"`
	Source          string        `koanf:"source"`
	Feeds           []string      `koanf:"feeds"`
	Alerts          bool          `koanf:"alerts"`

	PollInterval   time.Duration `koanf:"poll-interval"`
	AlertInterval  time.Duration `koanf:"alert-interval"`
	NewsLimit      int           `koanf:"news-limit"`
	BreakingLimit  int           `koanf:"breaking-limit"`
	SweepInterval  time.Duration `koanf:"sweep-interval"`
	IdleTimeout    time.Duration `koanf:"idle-timeout"`
	AlertDedupSize int           `koanf:"alert-dedup-size"`

	RateBurst       int      `koanf:"rate-burst"`
	RatePerSecond   float64  `koanf:"rate-per-second"`
	MaxMessageBytes int64    `koanf:"max-message-bytes"`
	SendQueueSize   int      `koanf:"send-queue-size"`
	AllowedOrigins  []string `koanf:"allowed-origins"`

	LogFormat string `koanf:"log-format"`
	LogLevel  string `koanf:"log-level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		MetricsAddr:     "127.0.0.1:9100",
		UpstreamURL:     "http://localhost:3000",
		UpstreamTimeout: 10 * time.Second,
		Source:          SourceHTTP,
		Alerts:          true,
		PollInterval:    30 * time.Second,
		AlertInterval:   30 * time.Second,
		NewsLimit:       20,
		BreakingLimit:   10,
		SweepInterval:   60 * time.Second,
		IdleTimeout:     5 * time.Minute,
		RateBurst:       20,
		RatePerSecond:   5,
		MaxMessageBytes: 64 * 1024,
		SendQueueSize:   64,
		AllowedOrigins:  []string{"*"},
		LogFormat:       logging.FormatJSON,
		LogLevel:        "info",
	}
}

// RegisterFlags defines one flag per key on fs, defaulting to Default().
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("listen-addr", d.ListenAddr, "client listen address (WebSocket, /health, /stats)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and probe listen address (empty = disabled)")
	fs.String("upstream-url", d.UpstreamURL, "base URL of the aggregator API")
	fs.String("upstream-api-key", "", "API key sent to the aggregator as X-API-Key")
	fs.Duration("upstream-timeout", d.UpstreamTimeout, "timeout for each upstream request")
	fs.String("source", d.Source, "content source: http or rss")
	fs.StringSlice("feeds", nil, "RSS feeds as name=url (with --source rss)")
	fs.Bool("alerts", d.Alerts, "evaluate alerts against the upstream API")
	fs.Duration("poll-interval", d.PollInterval, "content poll interval")
	fs.Duration("alert-interval", d.AlertInterval, "alert evaluation interval")
	fs.Int("news-limit", d.NewsLimit, "articles fetched per news poll")
	fs.Int("breaking-limit", d.BreakingLimit, "articles fetched per breaking poll")
	fs.Duration("sweep-interval", d.SweepInterval, "dead connection sweep interval")
	fs.Duration("idle-timeout", d.IdleTimeout, "evict clients silent for longer than this")
	fs.Int("alert-dedup-size", d.AlertDedupSize, "recent alert IDs to suppress (0 = off)")
	fs.Int("rate-burst", d.RateBurst, "client message burst size")
	fs.Float64("rate-per-second", d.RatePerSecond, "sustained client messages per second (0 = unlimited)")
	fs.Int64("max-message-bytes", d.MaxMessageBytes, "largest accepted client frame")
	fs.Int("send-queue-size", d.SendQueueSize, "outbound messages buffered per client")
	fs.StringSlice("allowed-origins", d.AllowedOrigins, "accepted WebSocket Origin headers")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
}

// Load merges, lowest precedence first: flag defaults, the YAML file at
// path (if any), NEWSWIRE_* variables and PORT, then flags set explicitly.
// The result is validated.
func Load(fs *pflag.FlagSet, path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "reading config file")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code(CodeInvalid).Wrapf(err, "reading environment")
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" && os.Getenv(EnvPrefix+"LISTEN_ADDR") == "" {
		if err := k.Set("listen-addr", ":"+port); err != nil {
			return Config{}, oops.Code(CodeInvalid).Wrapf(err, "applying PORT")
		}
	}

	// Unchanged flags only fill keys nothing else set.
	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, oops.Code(CodeInvalid).Wrapf(err, "reading flags")
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code(CodeInvalid).Wrapf(err, "decoding configuration")
	}
	cfg.Feeds = splitList(cfg.Feeds)
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolvePath returns flagPath when set, otherwise the XDG default config
// file if one exists, otherwise "".
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if path, ok := xdg.FindConfigFile(); ok {
		return path
	}
	return ""
}

// envKey maps NEWSWIRE_POLL_INTERVAL to poll-interval.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

// splitList flattens comma-joined entries and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.Code(CodeInvalid).With("key", key).With("value", value).Errorf(format, args...)
	}

	if c.ListenAddr == "" {
		return invalid("listen-addr", c.ListenAddr, "listen-addr is required")
	}
	for key, d := range map[string]time.Duration{
		"poll-interval":    c.PollInterval,
		"alert-interval":   c.AlertInterval,
		"sweep-interval":   c.SweepInterval,
		"idle-timeout":     c.IdleTimeout,
		"upstream-timeout": c.UpstreamTimeout,
	} {
		if d <= 0 {
			return invalid(key, d, "%s must be positive", key)
		}
	}
	if c.NewsLimit <= 0 || c.BreakingLimit <= 0 {
		return invalid("news-limit", c.NewsLimit, "news-limit and breaking-limit must be positive")
	}
	if c.AlertDedupSize < 0 {
		return invalid("alert-dedup-size", c.AlertDedupSize, "alert-dedup-size must not be negative")
	}
	if c.RatePerSecond < 0 || c.RateBurst < 0 {
		return invalid("rate-per-second", c.RatePerSecond, "rate limits must not be negative")
	}
	if c.MaxMessageBytes <= 0 || c.SendQueueSize <= 0 {
		return invalid("max-message-bytes", c.MaxMessageBytes, "max-message-bytes and send-queue-size must be positive")
	}
	if !logging.ValidFormat(c.LogFormat) {
		return invalid("log-format", c.LogFormat, "log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log-level", c.LogLevel, "log-level must be debug, info, warn or error")
	}

	needsUpstream := c.Alerts
	switch c.Source {
	case SourceHTTP:
		needsUpstream = true
	case SourceRSS:
		if len(c.Feeds) == 0 {
			return invalid("feeds", c.Feeds, "source rss needs at least one feed")
		}
		if _, err := c.FeedSpecs(); err != nil {
			return err
		}
	default:
		return invalid("source", c.Source, "source must be %q or %q", SourceHTTP, SourceRSS)
	}

	if needsUpstream {
		u, err := url.Parse(c.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("upstream-url", c.UpstreamURL, "upstream-url must be an absolute URL")
		}
	}
	return nil
}

// FeedSpecs parses the configured RSS feeds.
func (c Config) FeedSpecs() ([]feed.FeedSpec, error) {
	specs := make([]feed.FeedSpec, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		spec, err := feed.ParseFeedSpec(f)
		if err != nil {
			return nil, oops.Code(CodeInvalid).With("key", "feeds").Wrap(err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// RateLimited reports whether inbound client messages are rate limited.
func (c Config) RateLimited() bool {
	return c.RatePerSecond > 0
}
