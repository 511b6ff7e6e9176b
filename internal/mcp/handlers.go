package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/symbols"
)

// symbolTable loads the symbols of the image named by the request
func (s *Server) symbolTable(ctx context.Context, request mcp.CallToolRequest) (*symbols.Table, string, error) {
	executable, err := request.RequireString("executable")
	if err != nil {
		return nil, "", dbgerrors.InvalidParameter("executable", "", "path to an ELF image")
	}
	tool := request.GetString("objdumpPath", s.config.ObjdumpPath)

	table, err := s.loadSymbols(ctx, executable, tool)
	if err != nil {
		return nil, executable, err
	}
	return table, executable, nil
}

func (s *Server) handleListGlobals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table, executable, err := s.symbolTable(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	globals := table.GlobalVariables()
	return jsonResult(map[string]interface{}{
		"executable": executable,
		"globals":    nonNil(globals),
		"count":      len(globals),
	})
}

func (s *Server) handleListStatics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(dbgerrors.InvalidParameter("file", "", "a source file name").Error()), nil
	}
	table, executable, err := s.symbolTable(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	statics := table.StaticVariables(file)
	return jsonResult(map[string]interface{}{
		"executable": executable,
		"file":       file,
		"statics":    nonNil(statics),
		"count":      len(statics),
	})
}

func (s *Server) handleFindFunction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(dbgerrors.InvalidParameter("name", "", "a function name").Error()), nil
	}
	table, _, err := s.symbolTable(ctx, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sym, ok := table.FunctionByName(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no function named %q", name)), nil
	}
	return jsonResult(map[string]interface{}{
		"name":    sym.Name,
		"address": fmt.Sprintf("0x%08x", sym.Address),
		"size":    sym.Length,
		"scope":   sym.Scope,
	})
}

func (s *Server) handleFindFreePort(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := request.GetInt("start", s.config.Ports.GdbStart)
	length := request.GetInt("length", s.config.Ports.Length)

	port, ok, err := s.scanner.FindFreePort(ctx, start, length)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError(dbgerrors.NoFreePort(start, length).Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"port": port,
	})
}

func (s *Server) handlePortOwner(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, err := request.RequireInt("port")
	if err != nil || port < 1 || port > 65535 {
		return mcp.NewToolResultError(dbgerrors.InvalidParameter("port", port, "a TCP port between 1 and 65535").Error()), nil
	}

	owner, ok := s.portOwner(ctx, port)
	if !ok {
		return jsonResult(map[string]interface{}{
			"port":  port,
			"inUse": false,
		})
	}
	return jsonResult(map[string]interface{}{
		"port":  port,
		"inUse": true,
		"owner": owner,
	})
}

func nonNil(syms []symbols.Symbol) []symbols.Symbol {
	if syms == nil {
		return []symbols.Symbol{}
	}
	return syms
}
