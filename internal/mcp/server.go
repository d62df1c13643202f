// Package mcp exposes the record lifecycle as a set of tools over the
// Model Context Protocol, using the official Go SDK
// (github.com/modelcontextprotocol/go-sdk/mcp). Tools call the
// orchestrator directly; there is no transport-level state.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/service"
	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

// Server wraps the MCP server and the orchestrator it fronts.
type Server struct {
	mcp      *mcp.Server
	svc      *service.Service
	embedder vectorstore.Embedder
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "vcond").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "vcond",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server over the orchestrator. embedder may
// be nil: text-driven vector search is then unavailable and hybrid
// search degrades to keyword-only.
func NewServer(cfg *Config, svc *service.Service, embedder vectorstore.Embedder) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if svc == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		svc:      svc,
		embedder: embedder,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until the
// context is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
