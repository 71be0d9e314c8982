// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package main

import (
	"github.com/spf13/cobra"
)

// configFile is the --config flag shared by all subcommands.
var configFile string

// NewRootCmd creates the root command for the newswire CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newswire",
		Short: "Real-time crypto news fan-out and alerting server",
		Long: `newswire polls an upstream news aggregator and alert engine and pushes
matching articles and alerts to subscribed WebSocket clients.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
