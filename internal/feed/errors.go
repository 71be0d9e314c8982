// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package feed

import (
	"strings"
	"time"

	"github.com/samber/oops"
)

// Error codes attached to upstream failures.
const (
	CodeConnection      = "CONNECTION_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
	CodePaymentRequired = "PAYMENT_REQUIRED"
	CodeUpstreamStatus  = "UPSTREAM_STATUS"
	CodeMalformedBody   = "MALFORMED_BODY"
)

// DefaultRetryAfter is assumed when a 429 response carries no usable
// Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// HasCode reports whether err is an oops error carrying code.
func HasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}

// Reason maps an upstream error to a short metric label.
func Reason(err error) string {
	for _, code := range []string{
		CodeRateLimited,
		CodePaymentRequired,
		CodeUpstreamStatus,
		CodeMalformedBody,
		CodeConnection,
	} {
		if HasCode(err, code) {
			return strings.ToLower(code)
		}
	}
	return "unknown"
}

// RetryAfter reports how long the upstream asked callers to back off.
// It returns false for anything but a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	if !HasCode(err, CodeRateLimited) {
		return 0, false
	}
	oopsErr, _ := oops.AsOops(err)
	if d, ok := oopsErr.Context()["retry_after"].(time.Duration); ok && d > 0 {
		return d, true
	}
	return DefaultRetryAfter, true
}
