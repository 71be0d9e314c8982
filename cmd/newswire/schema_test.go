// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSchema(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewSchemaCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSchemaCmd_All(t *testing.T) {
	out, err := runSchema(t)
	require.NoError(t, err)

	var schemas map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schemas))
	assert.Contains(t, schemas, "subscribe")
	assert.Contains(t, schemas, "unsubscribe_alerts")
}

func TestSchemaCmd_Single(t *testing.T) {
	out, err := runSchema(t, "subscribe")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "subscribe payload", schema["title"])
}

func TestSchemaCmd_UnknownType(t *testing.T) {
	_, err := runSchema(t, "teleport")
	assert.Error(t, err)
}

func TestSchemaCmd_OutDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schemas")
	out, err := runSchema(t, "--out-dir", dir, "subscribe_alerts")
	require.NoError(t, err)
	assert.Contains(t, out, "subscribe_alerts.schema.json")

	data, err := os.ReadFile(filepath.Join(dir, "subscribe_alerts.schema.json"))
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}
