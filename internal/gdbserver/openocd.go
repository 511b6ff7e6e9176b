package gdbserver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// OpenOCDReadyMarker is echoed by the generated session config once OpenOCD
// has initialized and opened its GDB port
const OpenOCDReadyMarker = "gdbserver-dap: gdb server ready"

// OpenOCD drives OpenOCD through a generated session config file
type OpenOCD struct {
	// TempDir holds session config files; empty means os.TempDir()
	TempDir string

	mu         sync.Mutex
	configFile string
}

// NewOpenOCD creates the OpenOCD flavor
func NewOpenOCD() *OpenOCD {
	return &OpenOCD{}
}

func (o *OpenOCD) Name() string           { return "openocd" }
func (o *OpenOCD) DefaultCommand() string { return "openocd" }

// IsReady matches the echoed marker line
func (o *OpenOCD) IsReady(line string) bool {
	return strings.Contains(line, OpenOCDReadyMarker)
}

// IsError matches OpenOCD's fatal error lines
func (o *OpenOCD) IsError(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "Error:")
}

// ProgressMarker counts the '#' characters OpenOCD prints while programming
func (o *OpenOCD) ProgressMarker() (byte, int) {
	return '#', 50
}

// Args writes the session config file and returns the server arguments:
// the caller's extra arguments, each config file, then the session file.
func (o *OpenOCD) Args(opts LaunchOptions, gdbPort, telnetPort int) ([]string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "gdb_port %d\n", gdbPort)
	if telnetPort > 0 {
		fmt.Fprintf(&sb, "telnet_port %d\n", telnetPort)
	}
	// init opens the ports before the marker is printed
	sb.WriteString("init\n")
	fmt.Fprintf(&sb, "echo \"%s\"\n", OpenOCDReadyMarker)

	dir := o.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("gdbserver-dap-%s.cfg", uuid.New().String()))
	if err := os.WriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return nil, fmt.Errorf("write openocd session config: %w", err)
	}

	o.mu.Lock()
	o.configFile = path
	o.mu.Unlock()

	args := append([]string{}, opts.ServerArgs...)
	for _, cf := range opts.ConfigFiles {
		args = append(args, "-f", cf)
	}
	args = append(args, "-f", path)
	return args, nil
}

// ConfigFile returns the current session config path, if one was written
func (o *OpenOCD) ConfigFile() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.configFile
}

// Cleanup removes the session config file
func (o *OpenOCD) Cleanup() error {
	o.mu.Lock()
	path := o.configFile
	o.configFile = ""
	o.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
