package gdbserver

import (
	"regexp"
	"strconv"
)

var (
	pyocdReady = regexp.MustCompile(`GDB server started (at|on) port`)
	pyocdError = regexp.MustCompile(`CRITICAL|^\s*Error:`)
)

// PyOCD drives `pyocd gdbserver`
type PyOCD struct{}

// NewPyOCD creates the pyOCD flavor
func NewPyOCD() *PyOCD {
	return &PyOCD{}
}

func (p *PyOCD) Name() string           { return "pyocd" }
func (p *PyOCD) DefaultCommand() string { return "pyocd" }

func (p *PyOCD) IsReady(line string) bool { return pyocdReady.MatchString(line) }
func (p *PyOCD) IsError(line string) bool { return pyocdError.MatchString(line) }

// ProgressMarker counts the '=' characters of pyOCD's flash progress bar
func (p *PyOCD) ProgressMarker() (byte, int) {
	return '=', 50
}

// Args returns the gdbserver subcommand with the chosen ports
func (p *PyOCD) Args(opts LaunchOptions, gdbPort, telnetPort int) ([]string, error) {
	args := []string{"gdbserver", "--port", strconv.Itoa(gdbPort)}
	if telnetPort > 0 {
		args = append(args, "--telnet-port", strconv.Itoa(telnetPort))
	}
	if opts.TargetID != "" {
		args = append(args, "--target", opts.TargetID)
	}
	return append(args, opts.ServerArgs...), nil
}

func (p *PyOCD) Cleanup() error { return nil }
