// Package version holds the bridge's release version.
package version

import "fmt"

// Version is the current version of gdbserver-dap
const Version = "0.1.1"

// String returns the version line printed by the CLI
func String() string {
	return fmt.Sprintf("gdbserver-dap v%s", Version)
}
