// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

// Package xdg locates newswire's files under the XDG Base Directory layout.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "newswire"

// ConfigFileName is the file looked up in ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns $XDG_CONFIG_HOME/newswire, falling back to
// ~/.config/newswire.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}

// FindConfigFile returns the default config file if it exists as a regular
// file.
func FindConfigFile() (string, bool) {
	path := ConfigFile()
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}
