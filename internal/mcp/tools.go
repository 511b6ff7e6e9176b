package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerTools() {
	s.registerListGlobals()
	s.registerListStatics()
	s.registerFindFunction()
	s.registerFindFreePort()
	s.registerPortOwner()
}

func executableParam() mcp.ToolOption {
	return mcp.WithString("executable",
		mcp.Required(),
		mcp.Description("Path to the ELF image"),
	)
}

func objdumpParam() mcp.ToolOption {
	return mcp.WithString("objdumpPath",
		mcp.Description("Symbol dump tool to run instead of the configured objdump"),
	)
}

func (s *Server) registerListGlobals() {
	tool := mcp.NewTool("list_globals",
		mcp.WithDescription("List the global data symbols of a firmware image, in symbol table order. These are the variables shown in the Global scope of a debug session."),
		executableParam(),
		objdumpParam(),
	)
	s.mcpServer.AddTool(tool, s.handleListGlobals)
}

func (s *Server) registerListStatics() {
	tool := mcp.NewTool("list_statics",
		mcp.WithDescription("List the file-static data symbols that belong to one source file. Matching is by base name, so a full path works too."),
		executableParam(),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file, e.g. main.c or /src/app/main.c"),
		),
		objdumpParam(),
	)
	s.mcpServer.AddTool(tool, s.handleListStatics)
}

func (s *Server) registerFindFunction() {
	tool := mcp.NewTool("find_function",
		mcp.WithDescription("Look up a function symbol by name and return its address and size"),
		executableParam(),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Function name, e.g. main"),
		),
		objdumpParam(),
	)
	s.mcpServer.AddTool(tool, s.handleFindFunction)
}

func (s *Server) registerFindFreePort() {
	tool := mcp.NewTool("find_free_port",
		mcp.WithDescription("Return the first free TCP port of a range, probing the way a launch picks the gdb port"),
		mcp.WithNumber("start",
			mcp.Description("First port to probe (default: configured gdb port start)"),
		),
		mcp.WithNumber("length",
			mcp.Description("Number of consecutive ports to probe (default: configured range length)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleFindFreePort)
}

func (s *Server) registerPortOwner() {
	tool := mcp.NewTool("port_owner",
		mcp.WithDescription("Report which process is listening on a local TCP port, e.g. a gdb server left over from an earlier session"),
		mcp.WithNumber("port",
			mcp.Required(),
			mcp.Description("TCP port"),
		),
	)
	s.mcpServer.AddTool(tool, s.handlePortOwner)
}
