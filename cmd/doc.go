// Package cmd implements the command-line interface for upstocks-mcp.
//
// This package provides the following commands:
//   - serve: Start the gateway over HTTP/WebSocket, stdio, or both
//   - console: Interactive console for exercising gateway methods by hand
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
