// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/groupomania/groupomania/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the Groupomania CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groupomania",
		Short: "Groupomania - account and session service",
		Long: `Groupomania serves account signup, login, token refresh and logout
for the Groupomania social network.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file path")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSessionsCmd())

	return cmd
}

// loadConfig layers defaults, the config file, the environment and the
// flags of cmd that the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		File:    configFile,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
}
