// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/newswire/newswire/internal/protocol"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "schema [message-type]",
		Short: "Print the JSON Schema of client message payloads",
		Long: `Print the JSON Schema that inbound client message payloads are validated
against. With no argument every payload-carrying message type is printed as
one object keyed by type. With --out-dir one <type>.schema.json file is
written per type instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types := protocol.PayloadTypes()
			if len(args) == 1 {
				types = []protocol.Type{protocol.Type(args[0])}
			}

			schemas := make(map[protocol.Type]json.RawMessage, len(types))
			for _, typ := range types {
				schema, err := protocol.GenerateSchema(typ)
				if err != nil {
					return oops.Code("UNKNOWN_MESSAGE_TYPE").With("type", typ).Wrap(err)
				}
				schemas[typ] = schema
			}

			if outDir != "" {
				return writeSchemas(cmd, outDir, schemas)
			}
			if len(args) == 1 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schemas[types[0]]))
				return nil
			}

			data, err := json.MarshalIndent(schemas, "", "  ")
			if err != nil {
				return oops.Wrapf(err, "failed to marshal schemas")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "", "write one schema file per message type into this directory")
	return cmd
}

func writeSchemas(cmd *cobra.Command, dir string, schemas map[protocol.Type]json.RawMessage) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return oops.With("dir", dir).Wrapf(err, "creating schema directory")
	}
	for typ, schema := range schemas {
		path := filepath.Join(dir, string(typ)+".schema.json")
		if err := os.WriteFile(path, schema, 0o600); err != nil {
			return oops.With("path", path).Wrapf(err, "writing schema")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", path)
	}
	return nil
}
