// Package mcp implements the MCP (Model Context Protocol) server for sitepass.
// Agents can inspect saved sites and ask whether a site's password is
// compromised, but never receive a generated password in plaintext.
package mcp

import (
	"context"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/forest6511/sitepass/pkg/session"
)

// MasterKeyEnv is read once by NewServer and then unset.
const MasterKeyEnv = "SITEPASS_MASTER_KEY"

// Server represents the MCP server for sitepass.
type Server struct {
	server  *mcp.Server
	session *session.Session
	logger  *zap.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Version is reported to clients.
	Version string

	// MasterKey enables the password tools. If empty, MasterKeyEnv is used;
	// without either, only the listing tools work.
	MasterKey string

	Logger *zap.Logger
}

// NewServer creates a new MCP server over sess.
func NewServer(ctx context.Context, sess *session.Session, opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	masterKey := opts.MasterKey
	if masterKey == "" {
		masterKey = os.Getenv(MasterKeyEnv)
		// Clear the environment variable after reading for security
		os.Unsetenv(MasterKeyEnv)
	}
	if masterKey != "" {
		sess.SetMasterKey(ctx, masterKey)
	} else {
		logger.Info("no master key provided, password tools disabled")
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		server: mcp.NewServer(
			&mcp.Implementation{Name: "sitepass", Version: version},
			nil,
		),
		session: sess,
		logger:  logger,
	}
	s.registerTools()
	return s
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "site_list",
		Description: "List saved site tags in display order, optionally filtered by a glob pattern. Returns whether each site has custom settings and when it was last generated. Does NOT return passwords.",
	}, s.handleSiteList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "site_settings",
		Description: "Return the generation settings for a site tag: saved settings when the site is saved, defaults otherwise.",
	}, s.handleSiteSettings)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "site_password_masked",
		Description: "Get a masked version of a saved site's password (e.g., '****WXYZ'). Useful for confirming which password a site uses without exposing it.",
	}, s.handleSitePasswordMasked)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "site_breach_check",
		Description: "Check whether a saved site's password appears in known data breaches. Returns the status and breach count, never the password.",
	}, s.handleSiteBreachCheck)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.session.ClearMasterKey()

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close forgets the master key.
func (s *Server) Close() error {
	s.session.ClearMasterKey()
	return nil
}
