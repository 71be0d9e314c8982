// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package registry

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes returned by the registry.
const (
	CodeClientNotFound  = "CLIENT_NOT_FOUND"
	CodeDuplicateClient = "DUPLICATE_CLIENT"
)

// ErrConnClosed is returned by a Conn whose underlying socket is gone. Senders
// use it to tell a dead connection apart from a transient send failure.
var ErrConnClosed = errors.New("connection closed")

// IsClientNotFound reports whether err is a CLIENT_NOT_FOUND error.
func IsClientNotFound(err error) bool {
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == CodeClientNotFound
}

func clientNotFound(clientID string) error {
	return oops.Code(CodeClientNotFound).
		With("client_id", clientID).
		Errorf("client %s not registered", clientID)
}
