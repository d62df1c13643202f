// Package main implements the vcond daemon: a conversation-record
// lifecycle service exposed as MCP tools over stdio, with an embedded
// SQLite store and a local vector index.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vcond",
	Short: "Conversation record lifecycle daemon",
	Long: `vcond stores, validates, tags, and searches conversation records,
and serves them to MCP clients over the stdio transport.

Examples:
  # Serve MCP tools on stdio
  vcond serve

  # Serve with a config file
  vcond serve --config ~/.config/vcond/config.yaml

  # Rebuild the embedding index for every stored record
  vcond embed`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vcond\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(versionCmd)
}
