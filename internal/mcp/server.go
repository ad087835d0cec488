package mcp

import (
	"context"
	"log/slog"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maraichr/datasetops/internal/config"
)

// Registrar adds tools to an SDK server.
type Registrar interface {
	Register(s *sdkmcp.Server)
}

// Server wraps the SDK server with the transports datasetops serves.
type Server struct {
	sdk    *sdkmcp.Server
	logger *slog.Logger
}

// NewServer creates the SDK server and registers every tool from r.
func NewServer(cfg config.MCPConfig, r Registrar, logger *slog.Logger) *Server {
	sdk := sdkmcp.NewServer(&sdkmcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	r.Register(sdk)
	return &Server{sdk: sdk, logger: logger}
}

// RunStdio serves on stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("MCP server serving on stdio")
	return s.sdk.Run(ctx, &sdkmcp.StdioTransport{})
}

// HTTPHandler returns a Streamable HTTP handler. Stateless mode ignores
// stale session IDs after restarts; the execution context is process-wide
// and does not depend on the transport session.
func (s *Server) HTTPHandler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return s.sdk },
		&sdkmcp.StreamableHTTPOptions{Stateless: true},
	)
}
