// Package cmd defines the CLI commands for the redharvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redharvest",
		Short: "Session-authenticated content harvester",
		Long: `redharvest drives a live, logged-in browser session to search a
content platform by keyword, open result detail views one at a time, and
extract structured records (title, body, media references, nested comments,
publish timestamp) into an append-only artifact.

The browser profile must already carry a valid session; redharvest never
performs a login itself.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./redharvest.yaml)")

	cmd.AddCommand(newHarvestCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
