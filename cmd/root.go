package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the upstocks-mcp application
var rootCmd = &cobra.Command{
	Use:   "upstocks-mcp",
	Short: "MCP gateway for the Upstox trading API",
	Long: `upstocks-mcp is a Model Context Protocol (MCP) gateway that exposes the
Upstox brokerage API to AI assistants.

It translates JSON-RPC 2.0 calls into Upstox REST requests, manages the
OAuth authorization flow and the daily token lifecycle, and serves market
data, portfolio and order tools over HTTP/WebSocket or stdio.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "upstocks-mcp version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConsoleCmd())
	rootCmd.AddCommand(newVersionCmd())
}
