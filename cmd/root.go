// Package cmd wires the engine together behind a small cobra CLI: the
// long-running HTTP server plus one-shot diagnostic commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackhound",
	Short: "TrackHound is a multi-source music search and retrieval engine.",
	Long: `TrackHound fans search queries out across scraped, API-backed and
metadata catalogs, merges and ranks what comes back, resolves tracks to
downloadable URLs and optionally archives them to object storage.

Run without a subcommand it starts the HTTP server.`,
	RunE: runServer,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
