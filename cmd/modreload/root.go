// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/modreload/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the modreload CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modreload",
		Short: "modreload - a plugin host with live load, unload and reload",
		Long: `modreload hosts Lua and binary plugins packaged as zip archives and
lets an operator load, unload and reload them while the server keeps running.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/modreload/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig resolves configuration for cmd from --config and its flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
