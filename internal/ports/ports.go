// Package ports finds free local TCP ports for the gdb server.
//
// A port is only known to be free at the moment it was probed; nothing is
// reserved, so another process may still claim it before the gdb server binds.
package ports

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-logr/logr"
)

const (
	// DefaultGdbStart is the first port tried for the GDB remote protocol
	DefaultGdbStart = 50000
	// DefaultTelnetStart is the first port tried for the server's telnet console
	DefaultTelnetStart = 4444
	// DefaultLength is the number of consecutive ports scanned
	DefaultLength = 100
)

// Prober reports whether something is listening on a local TCP port.
// A probe that cannot tell must report the port as free.
type Prober interface {
	InUse(ctx context.Context, port int) bool
}

// Scanner walks a port range with a Prober
type Scanner struct {
	prober Prober
	log    logr.Logger
}

// NewScanner creates a scanner. A nil prober selects BindProber.
func NewScanner(prober Prober, log logr.Logger) *Scanner {
	if prober == nil {
		prober = BindProber{}
	}
	return &Scanner{prober: prober, log: log}
}

// FindFreePort probes start..start+length-1 in order and returns the first
// port nobody owns. ok is false when the whole range is occupied.
func (s *Scanner) FindFreePort(ctx context.Context, start, length int) (port int, ok bool, err error) {
	if start < 1 || start > 65535 {
		return 0, false, fmt.Errorf("invalid start port %d", start)
	}
	if length < 1 {
		return 0, false, fmt.Errorf("invalid port range length %d", length)
	}

	end := start + length
	if end > 65536 {
		end = 65536
	}

	for p := start; p < end; p++ {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		if !s.prober.InUse(ctx, p) {
			s.log.V(1).Info("found free port", "port", p)
			return p, true, nil
		}
		s.log.V(1).Info("port in use", "port", p)
	}

	return 0, false, nil
}

// BindProber treats a port as in use when listening on it fails
type BindProber struct {
	// Host defaults to 127.0.0.1
	Host string
}

// InUse tries to listen on the port and closes the listener immediately
func (b BindProber) InUse(ctx context.Context, port int) bool {
	host := b.Host
	if host == "" {
		host = "127.0.0.1"
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return true
	}
	_ = listener.Close()
	return false
}
