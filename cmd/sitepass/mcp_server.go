package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/sitepass/internal/mcp"
)

var version = "dev"

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that lets AI coding assistants inspect saved sites.

The server implements the Model Context Protocol (MCP) over stdio transport.
Agents never receive a password in plaintext.

Available tools:
  - site_list:            List saved sites (no passwords)
  - site_settings:        Show the generation settings of a site
  - site_password_masked: Get a masked password (e.g., "****WXYZ")
  - site_breach_check:    Check a saved site's password against known breaches

Authentication:
  Set SITEPASS_MASTER_KEY before starting the server to enable the password
  tools. The key is read once and immediately cleared from the environment.
  Without it, only site_list and site_settings work.

Example MCP configuration:
  {
    "mcpServers": {
      "sitepass": {
        "type": "stdio",
        "command": "/path/to/sitepass",
        "args": ["mcp-server"],
        "env": {
          "SITEPASS_MASTER_KEY": "your-master-key"
        }
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(parent context.Context) error {
	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcp.NewServer(ctx, a.sess, &mcp.ServerOptions{Version: version, Logger: logger})
	defer server.Close()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
