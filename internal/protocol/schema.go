// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaPayloads maps each inbound type with a payload to the Go type its
// schema is reflected from. Ping carries no payload.
var schemaPayloads = map[Type]any{
	TypeSubscribe:         &Filter{},
	TypeUnsubscribe:       &Filter{},
	TypeSubscribeAlerts:   &AlertsPayload{},
	TypeUnsubscribeAlerts: &AlertsPayload{},
}

var (
	compileOnce sync.Once
	compiled    map[Type]*jschema.Schema
	compileErr  error
)

// GenerateSchema returns the JSON Schema of the payload for typ.
func GenerateSchema(typ Type) ([]byte, error) {
	target, ok := schemaPayloads[typ]
	if !ok {
		return nil, fmt.Errorf("message type %q has no payload schema", typ)
	}

	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(target)
	schema.ID = jsonschema.ID("https://newswire.dev/schemas/" + string(typ) + ".json")
	schema.Title = string(typ) + " payload"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// PayloadTypes lists the inbound types that carry a validated payload.
func PayloadTypes() []Type {
	return []Type{TypeSubscribe, TypeUnsubscribe, TypeSubscribeAlerts, TypeUnsubscribeAlerts}
}

// ValidatePayload checks a raw payload against the schema for typ. Types
// without a schema always validate.
func ValidatePayload(typ Type, payload []byte) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}
	sch, ok := schemas[typ]
	if !ok {
		return nil
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func compiledSchemas() (map[Type]*jschema.Schema, error) {
	compileOnce.Do(func() {
		out := make(map[Type]*jschema.Schema, len(schemaPayloads))
		c := jschema.NewCompiler()
		for _, typ := range PayloadTypes() {
			data, err := GenerateSchema(typ)
			if err != nil {
				compileErr = err
				return
			}
			var schemaData any
			if err := json.Unmarshal(data, &schemaData); err != nil {
				compileErr = fmt.Errorf("failed to parse schema JSON: %w", err)
				return
			}
			resource := string(typ) + ".json"
			if err := c.AddResource(resource, schemaData); err != nil {
				compileErr = fmt.Errorf("failed to add schema resource: %w", err)
				return
			}
			sch, err := c.Compile(resource)
			if err != nil {
				compileErr = fmt.Errorf("failed to compile schema: %w", err)
				return
			}
			out[typ] = sch
		}
		compiled = out
	})
	return compiled, compileErr
}
