// Package types defines shared data types used across the gdbserver-dap bridge.
//
// This package provides type definitions for:
//   - SessionState: the debug session lifecycle (not started through terminated)
//   - ServerType: the supported gdb-server flavors (OpenOCD, pyOCD)
//   - LaunchArguments: the launch/attach request body understood by the bridge
//   - Progress: flash download progress reported by the gdb server
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

import "fmt"

// SessionState represents the lifecycle state of a debug session
type SessionState int

const (
	StateNotStarted SessionState = iota
	StateLaunching
	StateInitialized
	StateRunning
	StateStopped
	StateDisconnecting
	StateTerminated
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateLaunching:
		return "launching"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDisconnecting:
		return "disconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ServerType identifies a gdb-server flavor
type ServerType string

const (
	ServerOpenOCD ServerType = "openocd"
	ServerPyOCD   ServerType = "pyocd"
)

// LaunchArguments is the body of a DAP launch or attach request
type LaunchArguments struct {
	// Executable is the ELF image flashed to the target and loaded into gdb
	Executable string `json:"executable"`
	Cwd        string `json:"cwd,omitempty"`

	ServerType ServerType `json:"servertype,omitempty"`
	ServerPath string     `json:"serverpath,omitempty"`
	ServerArgs []string   `json:"serverArgs,omitempty"`

	// ConfigFiles are OpenOCD -f arguments (interface/target scripts)
	ConfigFiles []string `json:"configFiles,omitempty"`

	// TargetID is the pyOCD target type (-t)
	TargetID string `json:"targetId,omitempty"`

	GdbPath     string `json:"gdbPath,omitempty"`
	ObjdumpPath string `json:"objdumpPath,omitempty"`

	RunToEntryPoint string `json:"runToEntryPoint,omitempty"`
	// RunToMain is the legacy spelling of RunToEntryPoint=main
	RunToMain bool `json:"runToMain,omitempty"`

	// NoDebug skips breakpoint setup when true
	NoDebug bool `json:"noDebug,omitempty"`

	// WorkspaceFolder anchors ${workspaceFolder} substitution
	WorkspaceFolder string `json:"workspaceFolder,omitempty"`
}

// EntryPoint returns the function to stop at after launch, or "" for none
func (a *LaunchArguments) EntryPoint() string {
	if a.RunToEntryPoint != "" {
		return a.RunToEntryPoint
	}
	if a.RunToMain {
		return "main"
	}
	return ""
}

// Progress is a flash download progress update
type Progress struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// SessionInfo summarizes a debug session for logging and tooling
type SessionInfo struct {
	SessionID  string       `json:"sessionId"`
	State      SessionState `json:"state"`
	Executable string       `json:"executable,omitempty"`
	GdbPort    int          `json:"gdbPort,omitempty"`
}
