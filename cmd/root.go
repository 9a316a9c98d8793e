// Package cmd provides the CLI commands for the chat session service.
//
// Commands:
//   - serve: HTTP API server for session persistence and retrieval proxying
//   - migrate: apply PostgreSQL schema migrations and exit
//   - version: show build information
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kmschat",
	Short: "Chat session persistence service",
	Long: `kmschat stores chat sessions with append-only message histories
and proxies chat queries to the knowledge retrieval service.

Run "kmschat serve" to start the HTTP server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
