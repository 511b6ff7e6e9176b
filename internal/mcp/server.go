// Package mcp exposes the bridge's offline inspection helpers as Model
// Context Protocol (MCP) tools, so an assistant can look at a firmware image
// and the local port situation before a debug session is started:
//
// Symbols:
//   - list_globals: global data symbols of an ELF image
//   - list_statics: file-static data symbols of one source file
//   - find_function: address and size of a function
//
// Ports:
//   - find_free_port: first free port of a range, as a launch would pick it
//   - port_owner: process listening on a port
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/gdbserver-dap/internal/config"
	"github.com/ctagard/gdbserver-dap/internal/ports"
	"github.com/ctagard/gdbserver-dap/internal/symbols"
	"github.com/ctagard/gdbserver-dap/internal/version"
)

// Server wraps the MCP server with the inspection tools
type Server struct {
	mcpServer *server.MCPServer
	config    *config.Config
	scanner   *ports.Scanner
	log       logr.Logger

	loadSymbols func(ctx context.Context, binary, tool string) (*symbols.Table, error)
	portOwner   func(ctx context.Context, port int) (ports.Owner, bool)
}

// NewServer creates the MCP server. scanner decides which ports count as free.
func NewServer(cfg *config.Config, scanner *ports.Scanner, log logr.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"gdbserver-dap",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer:   mcpServer,
		config:      cfg,
		scanner:     scanner,
		log:         log,
		loadSymbols: symbols.Load,
		portOwner:   ports.CommandProber{Log: log}.Owner,
	}
	s.registerTools()
	return s
}

// ServeStdio serves MCP over stdin/stdout until the client goes away
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
