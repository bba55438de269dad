// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the songrules command tree. Running it without a
// subcommand serves.
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "songrules",
		Short: "Association-rule song recommendation server",
		Long: `songrules serves playlist recommendations from association rules mined
offline. It watches the producer's checkpoint file and hot-swaps the rule
set whenever a newer one is published.`,
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.SetVersionTemplate("songrules version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: CONFIG_PATH or ./config.yaml)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newRecommendCmd())
	cmd.AddCommand(newPublishCmd(&configPath))

	return cmd
}
