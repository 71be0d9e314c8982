// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	t.Run("XDG_CONFIG_HOME wins", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		assert.Equal(t, "/custom/config/newswire", ConfigDir())
	})

	t.Run("falls back to HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/testuser")
		assert.Equal(t, "/home/testuser/.config/newswire", ConfigDir())
		assert.Equal(t, "/home/testuser/.config/newswire/config.yaml", ConfigFile())
	})
}

func TestFindConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	_, ok := FindConfigFile()
	assert.False(t, ok, "missing file")

	require.NoError(t, os.MkdirAll(filepath.Join(base, "newswire", ConfigFileName), 0o700))
	_, ok = FindConfigFile()
	assert.False(t, ok, "directory is not a config file")

	require.NoError(t, os.RemoveAll(filepath.Join(base, "newswire")))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "newswire"), 0o700))
	require.NoError(t, os.WriteFile(ConfigFile(), []byte("news-limit: 5\n"), 0o600))

	path, ok := FindConfigFile()
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(base, "newswire", "config.yaml"), path)
}
