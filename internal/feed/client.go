// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
)

// DefaultTimeout bounds every upstream request.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// RateLimitInfo is the upstream quota reported on the most recent response.
type RateLimitInfo struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"resetAt,omitzero"`
}

// ClientConfig configures the upstream HTTP client.
type ClientConfig struct {
	// BaseURL is the root of the aggregator API, e.g. "https://example.com".
	BaseURL string
	// APIKey is sent as X-API-Key when non-empty.
	APIKey string
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// UserAgent identifies this server to the upstream.
	UserAgent string
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// Client fetches content and alert evaluations from the aggregator API.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client

	mu        sync.RWMutex
	rateLimit *RateLimitInfo
}

// NewClient creates an upstream client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("upstream base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("base_url", base).Wrap(err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "newswire"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Request deadline is controlled by the per-call context timeout.
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		userAgent:  userAgent,
		timeout:    timeout,
		httpClient: httpClient,
	}, nil
}

// Latest returns the newest articles, newest first.
func (c *Client) Latest(ctx context.Context, limit int) ([]Article, error) {
	var body articlesResponse
	if err := c.do(ctx, http.MethodGet, "/api/news", limitQuery(limit), &body); err != nil {
		return nil, err
	}
	return body.Articles, nil
}

// Breaking returns the current breaking-news articles.
func (c *Client) Breaking(ctx context.Context, limit int) ([]Article, error) {
	var body articlesResponse
	if err := c.do(ctx, http.MethodGet, "/api/breaking", limitQuery(limit), &body); err != nil {
		return nil, err
	}
	return body.Articles, nil
}

// Evaluate asks the rule service for alerts triggered since its last run.
func (c *Client) Evaluate(ctx context.Context) ([]AlertEvent, error) {
	var body eventsResponse
	query := url.Values{"action": []string{"evaluate"}}
	if err := c.do(ctx, http.MethodPost, "/api/alerts", query, &body); err != nil {
		return nil, err
	}
	return body.Events, nil
}

// RateLimit returns the quota reported by the last response that carried
// rate-limit headers.
func (c *Client) RateLimit() (RateLimitInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rateLimit == nil {
		return RateLimitInfo{}, false
	}
	return *c.rateLimit, true
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return oops.Code(CodeConnection).With("endpoint", path).Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return oops.Code(CodeConnection).With("endpoint", path).Wrapf(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.recordRateLimit(resp.Header)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return oops.Code(CodeConnection).With("endpoint", path).Wrapf(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(path, resp, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return oops.Code(CodeMalformedBody).With("endpoint", path).Wrapf(err, "decode response")
	}
	return nil
}

func statusError(path string, resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := DefaultRetryAfter
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		return oops.Code(CodeRateLimited).
			With("endpoint", path).
			With("retry_after", retryAfter).
			Errorf("upstream rate limit exceeded")
	case http.StatusPaymentRequired:
		return oops.Code(CodePaymentRequired).
			With("endpoint", path).
			With("payment_info", resp.Header.Get("X-Payment-Required")).
			Errorf("upstream requires payment")
	}

	var detail struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(body, &detail)
	message := detail.Error
	if message == "" {
		message = "request failed"
	}
	return oops.Code(CodeUpstreamStatus).
		With("endpoint", path).
		With("status", resp.StatusCode).
		With("upstream_code", detail.Code).
		Errorf("upstream status %d: %s", resp.StatusCode, message)
}

func (c *Client) recordRateLimit(h http.Header) {
	remaining, errRemaining := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	limit, errLimit := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	if errRemaining != nil || errLimit != nil {
		return
	}
	info := &RateLimitInfo{Remaining: remaining, Limit: limit}
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil && reset > 0 {
		info.ResetAt = time.Unix(reset, 0).UTC()
	}

	c.mu.Lock()
	c.rateLimit = info
	c.mu.Unlock()
}
