// Package mcp wraps the mcp-go server and client for team-table's
// transports: stdio for editor-spawned sessions and streamable HTTP for a
// shared daemon.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the mcp-go server with team-table tool registration.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version,
			server.WithToolCapabilities(false),
		),
	}
}

// Handler is a tool implementation receiving decoded arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

// RegisterTool registers a tool definition with its handler.
func (s *Server) RegisterTool(tool mcp.Tool, handler Handler) {
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		return handler(ctx, args)
	})
}

// ServeStdio serves MCP over stdin/stdout and blocks until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP serves MCP over streamable HTTP on addr and blocks.
func (s *Server) ServeHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcpServer).Start(addr)
}

// Underlying exposes the wrapped mcp-go server for test harnesses.
func (s *Server) Underlying() *server.MCPServer {
	return s.mcpServer
}
