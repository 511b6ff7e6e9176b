// Package launchconfig resolves the launch arguments of a debug session.
//
// It substitutes ${...} variables in launch and attach request arguments
// and reads launch configurations from a VS Code style .vscode/launch.json.
package launchconfig

import "github.com/ctagard/gdbserver-dap/pkg/types"

// LaunchJSON is the decoded content of a launch.json file
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
}

// DebugConfiguration is one entry of launch.json. The launch arguments are
// the request body sent to the bridge.
type DebugConfiguration struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Request string `json:"request"`

	types.LaunchArguments
}

// ResolutionContext provides the values ${...} variables resolve to
type ResolutionContext struct {
	WorkspaceFolder string
	// EnvOverrides take precedence over the process environment for ${env:X}
	EnvOverrides map[string]string
}
