// Package mcp exposes appliance sessions as MCP tools so an agent can
// connect, inspect the prompt, switch configuration mode and send commands.
package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/recovery"
	"github.com/acolita/appliance-shell/internal/session"
)

// sessionManager abstracts session lifecycle management for testing.
type sessionManager interface {
	Connect(ctx context.Context, name string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Close(id string) error
	List() []session.Info
	Config() *config.Config
	SetConfig(cfg *config.Config)
}

var _ sessionManager = (*session.Manager)(nil)

// Server wraps the MCP server implementation.
type Server struct {
	mcpServer *server.MCPServer
	sessions  sessionManager
	analyzer  *recovery.Analyzer
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger for tool calls.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates an MCP server backed by sessions.
func NewServer(sessions sessionManager, version string, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"appliance-shell",
			version,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
		sessions: sessions,
		analyzer: recovery.NewAnalyzer(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Run serves MCP over stdio until stdin closes.
func (s *Server) Run() error {
	s.logger.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// UpdateConfig swaps the appliance inventory. Open sessions are untouched.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.sessions.SetConfig(cfg)
	s.logger.Info("appliance inventory reloaded", slog.Int("appliances", len(cfg.Appliances)))
}
