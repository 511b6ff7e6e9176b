// Package gdbserver launches a hardware gdb server (OpenOCD or pyOCD) on a
// free port and reports when it is ready for GDB to connect.
//
// Each Flavor knows how to build its server's command line, which output
// lines mean ready or fatal error, and how to estimate flash progress from
// the server's stdout.
package gdbserver

import (
	"fmt"

	"github.com/ctagard/gdbserver-dap/internal/supervisor"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// LaunchOptions describe one server launch
type LaunchOptions struct {
	// ServerPath is the server executable; empty selects the flavor default
	ServerPath string
	// ServerArgs are passed through before any generated arguments
	ServerArgs []string
	// ConfigFiles are OpenOCD interface/target scripts
	ConfigFiles []string
	// TargetID selects the pyOCD target type
	TargetID string
	Cwd      string
}

// Flavor is a gdb server specialization
type Flavor interface {
	supervisor.Detector

	// Name is the flavor's short name, used in logs
	Name() string

	// DefaultCommand is the executable used when none is configured
	DefaultCommand() string

	// Args builds the server arguments for the chosen ports. telnetPort is 0
	// when no telnet port could be found. Args may create temporary files;
	// Cleanup removes them.
	Args(opts LaunchOptions, gdbPort, telnetPort int) ([]string, error)

	// Cleanup removes anything Args created
	Cleanup() error

	// ProgressMarker is the byte counted in stdout during a download and the
	// number of occurrences that make up a complete download
	ProgressMarker() (marker byte, total int)
}

// NewFlavor returns the flavor for a server type
func NewFlavor(t types.ServerType) (Flavor, error) {
	switch t {
	case types.ServerOpenOCD, "":
		return NewOpenOCD(), nil
	case types.ServerPyOCD:
		return NewPyOCD(), nil
	default:
		return nil, fmt.Errorf("unsupported gdb server type %q (expected %q or %q)", t, types.ServerOpenOCD, types.ServerPyOCD)
	}
}
