// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/samber/oops"
)

// Error codes returned by Decode.
const (
	CodeMalformedMessage = "MALFORMED_MESSAGE"
	CodeUnknownType      = "UNKNOWN_MESSAGE_TYPE"
)

// ClientMessage is one of Subscribe, Unsubscribe, SubscribeAlerts,
// UnsubscribeAlerts or Ping.
type ClientMessage interface {
	MessageType() Type
	isClientMessage()
}

// Subscribe adds filter values to the client's subscription.
type Subscribe struct {
	Filter Filter
}

// Unsubscribe removes filter values from the client's subscription.
type Unsubscribe struct {
	Filter Filter
}

// SubscribeAlerts adds alert rule IDs. An empty list means every rule.
type SubscribeAlerts struct {
	RuleIDs []string
}

// UnsubscribeAlerts removes alert rule IDs. An empty list clears them all.
type UnsubscribeAlerts struct {
	RuleIDs []string
}

// Ping refreshes the client's liveness.
type Ping struct{}

func (Subscribe) MessageType() Type         { return TypeSubscribe }
func (Unsubscribe) MessageType() Type       { return TypeUnsubscribe }
func (SubscribeAlerts) MessageType() Type   { return TypeSubscribeAlerts }
func (UnsubscribeAlerts) MessageType() Type { return TypeUnsubscribeAlerts }
func (Ping) MessageType() Type              { return TypePing }

func (Subscribe) isClientMessage()         {}
func (Unsubscribe) isClientMessage()       {}
func (SubscribeAlerts) isClientMessage()   {}
func (UnsubscribeAlerts) isClientMessage() {}
func (Ping) isClientMessage()              {}

// AlertsPayload is the payload of the alert subscription messages.
type AlertsPayload struct {
	RuleIDs []string `json:"ruleIds,omitempty" jsonschema:"maxItems=256"`
}

// Decode parses a raw client frame into its typed variant. Frames that are
// not JSON objects or whose payload fails validation are MALFORMED_MESSAGE;
// well-formed frames of an unknown type are UNKNOWN_MESSAGE_TYPE.
func Decode(raw []byte) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, oops.Code(CodeMalformedMessage).Wrapf(err, "decode envelope")
	}
	if env.Type == "" {
		return nil, oops.Code(CodeMalformedMessage).Errorf("message type is required")
	}

	payload := env.Payload
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = json.RawMessage("{}")
	}

	switch env.Type {
	case TypeSubscribe, TypeUnsubscribe:
		var filter Filter
		if err := decodePayload(env.Type, payload, &filter); err != nil {
			return nil, err
		}
		if env.Type == TypeSubscribe {
			return Subscribe{Filter: filter}, nil
		}
		return Unsubscribe{Filter: filter}, nil

	case TypeSubscribeAlerts, TypeUnsubscribeAlerts:
		var alerts AlertsPayload
		if err := decodePayload(env.Type, payload, &alerts); err != nil {
			return nil, err
		}
		if env.Type == TypeSubscribeAlerts {
			return SubscribeAlerts{RuleIDs: alerts.RuleIDs}, nil
		}
		return UnsubscribeAlerts{RuleIDs: alerts.RuleIDs}, nil

	case TypePing:
		return Ping{}, nil

	default:
		return nil, oops.Code(CodeUnknownType).With("type", string(env.Type)).Errorf("unknown message type %q", env.Type)
	}
}

func decodePayload(typ Type, payload json.RawMessage, out any) error {
	if err := ValidatePayload(typ, payload); err != nil {
		return oops.Code(CodeMalformedMessage).With("type", string(typ)).Wrap(err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return oops.Code(CodeMalformedMessage).With("type", string(typ)).Wrapf(err, "decode payload")
	}
	return nil
}
