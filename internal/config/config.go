// Package config provides configuration management for the gdbserver-dap bridge.
//
// Configuration controls:
//   - Tool paths: gdb, objdump and each gdb-server flavor
//   - Timing: gdb server launch timeout and shutdown grace period
//   - Port ranges scanned for the GDB and telnet ports
//   - The DAP listen address and logging
//
// Configuration can be loaded from a JSON or YAML file or use sensible
// defaults. Launch requests may still override tool paths per session.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// Config holds the bridge configuration
type Config struct {
	GdbPath     string `json:"gdbPath" yaml:"gdbPath"`
	ObjdumpPath string `json:"objdumpPath" yaml:"objdumpPath"`

	// DefaultServer is used when a launch request does not name one
	DefaultServer types.ServerType `json:"defaultServer" yaml:"defaultServer"`
	Servers       ServerConfigs    `json:"servers" yaml:"servers"`

	LaunchTimeout Duration `json:"launchTimeout" yaml:"launchTimeout"`
	ShutdownGrace Duration `json:"shutdownGrace" yaml:"shutdownGrace"`

	Ports PortConfig `json:"ports" yaml:"ports"`

	// Listen is a TCP address for DAP clients; empty means stdio
	Listen string `json:"listen" yaml:"listen"`

	Verbosity string `json:"verbosity" yaml:"verbosity"`
	LogFile   string `json:"logFile" yaml:"logFile"`
}

// ServerConfigs holds per-flavor gdb server settings
type ServerConfigs struct {
	OpenOCD ServerConfig `json:"openocd" yaml:"openocd"`
	PyOCD   ServerConfig `json:"pyocd" yaml:"pyocd"`
}

// ServerConfig holds the path and extra arguments of one gdb server flavor
type ServerConfig struct {
	Path string   `json:"path" yaml:"path"`
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// PortConfig holds the port scan ranges
type PortConfig struct {
	GdbStart    int `json:"gdbStart" yaml:"gdbStart"`
	TelnetStart int `json:"telnetStart" yaml:"telnetStart"`
	Length      int `json:"length" yaml:"length"`
	// ProbeCommand selects the lsof/netstat prober instead of bind attempts
	ProbeCommand bool `json:"probeCommand" yaml:"probeCommand"`
}

// Duration is a time.Duration that decodes from strings such as "10s"
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	d.Duration = time.Duration(n)
	return nil
}

// UnmarshalYAML accepts a duration string
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		GdbPath:       "arm-none-eabi-gdb",
		ObjdumpPath:   "arm-none-eabi-objdump",
		DefaultServer: types.ServerOpenOCD,
		Servers: ServerConfigs{
			OpenOCD: ServerConfig{Path: "openocd"},
			PyOCD:   ServerConfig{Path: "pyocd"},
		},
		LaunchTimeout: Duration{10 * time.Second},
		ShutdownGrace: Duration{5 * time.Second},
		Ports: PortConfig{
			GdbStart:    50000,
			TelnetStart: 4444,
			Length:      100,
		},
		Verbosity: "info",
	}
}

// LoadConfig loads configuration from a JSON or YAML file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Server returns the settings of a gdb server flavor
func (c *Config) Server(t types.ServerType) ServerConfig {
	switch t {
	case types.ServerPyOCD:
		return c.Servers.PyOCD
	default:
		return c.Servers.OpenOCD
	}
}
