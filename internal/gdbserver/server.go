package gdbserver

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/ports"
	"github.com/ctagard/gdbserver-dap/internal/supervisor"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// Options configure port ranges, timing and output callbacks
type Options struct {
	LaunchTimeout time.Duration

	GdbPortStart    int
	TelnetPortStart int
	PortRange       int

	// OnOutput receives every complete server output line
	OnOutput func(line string)
	// OnProgress receives flash progress estimates
	OnProgress func(types.Progress)
	// OnServerError receives error lines printed after the server was ready
	OnServerError func(err error)
	// OnExit is called when the server process exits
	OnExit func(err error)
}

// Server is one gdb server instance for one debug session
type Server struct {
	flavor  Flavor
	scanner *ports.Scanner
	opts    Options
	log     logr.Logger

	sup        *supervisor.Supervisor
	progress   *progressCounter
	gdbPort    int
	telnetPort int
}

// New creates a server of the given flavor
func New(flavor Flavor, scanner *ports.Scanner, log logr.Logger, opts Options) *Server {
	if opts.GdbPortStart == 0 {
		opts.GdbPortStart = ports.DefaultGdbStart
	}
	if opts.TelnetPortStart == 0 {
		opts.TelnetPortStart = ports.DefaultTelnetStart
	}
	if opts.PortRange == 0 {
		opts.PortRange = ports.DefaultLength
	}

	marker, total := flavor.ProgressMarker()
	return &Server{
		flavor:   flavor,
		scanner:  scanner,
		opts:     opts,
		log:      log.WithValues("server", flavor.Name()),
		progress: newProgressCounter(marker, total, opts.OnProgress),
	}
}

// Launch picks free ports, starts the server and waits for it to become
// ready. It returns the port GDB should connect to.
func (s *Server) Launch(ctx context.Context, lo LaunchOptions) (int, error) {
	gdbPort, ok, err := s.scanner.FindFreePort(ctx, s.opts.GdbPortStart, s.opts.PortRange)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, dbgerrors.NoFreePort(s.opts.GdbPortStart, s.opts.PortRange)
	}

	telnetPort, ok, err := s.scanner.FindFreePort(ctx, s.opts.TelnetPortStart, s.opts.PortRange)
	if err != nil {
		return 0, err
	}
	if !ok {
		s.log.Info("no free telnet port, starting without telnet console", "start", s.opts.TelnetPortStart)
		telnetPort = 0
	}

	args, err := s.flavor.Args(lo, gdbPort, telnetPort)
	if err != nil {
		return 0, err
	}

	command := lo.ServerPath
	if command == "" {
		command = s.flavor.DefaultCommand()
	}

	s.progress.Reset()
	s.sup = supervisor.New(s.flavor, s.log, supervisor.Options{
		LaunchTimeout: s.opts.LaunchTimeout,
		OnLine: func(_ supervisor.Stream, line string) {
			if s.opts.OnOutput != nil {
				s.opts.OnOutput(line)
			}
		},
		OnData: func(stream supervisor.Stream, chunk []byte) {
			if stream == supervisor.Stdout {
				s.progress.Feed(chunk)
			}
		},
		OnServerError: s.opts.OnServerError,
		OnExit: func(err error) {
			if cleanupErr := s.flavor.Cleanup(); cleanupErr != nil {
				s.log.Error(cleanupErr, "failed to remove server session files")
			}
			if s.opts.OnExit != nil {
				s.opts.OnExit(err)
			}
		},
	})

	s.log.Info("launching gdb server", "command", command, "gdbPort", gdbPort, "telnetPort", telnetPort)
	if err := s.sup.Spawn(ctx, command, args, lo.Cwd); err != nil {
		if cleanupErr := s.flavor.Cleanup(); cleanupErr != nil {
			s.log.Error(cleanupErr, "failed to remove server session files")
		}
		return 0, err
	}

	s.gdbPort = gdbPort
	s.telnetPort = telnetPort
	return gdbPort, nil
}

// GdbPort returns the port of the running server, or 0 before Launch succeeded
func (s *Server) GdbPort() int { return s.gdbPort }

// TelnetPort returns the server's telnet console port, or 0 when it has none
func (s *Server) TelnetPort() int { return s.telnetPort }

// ResetProgress restarts the flash progress estimate before a download
func (s *Server) ResetProgress() { s.progress.Reset() }

// Kill interrupts the server; a no-op when nothing runs
func (s *Server) Kill() error {
	if s.sup == nil {
		return nil
	}
	return s.sup.Kill()
}

// Stop interrupts the server, force-killing it after grace
func (s *Server) Stop(grace time.Duration) error {
	if s.sup == nil {
		return s.flavor.Cleanup()
	}
	return s.sup.Stop(grace)
}

// Done is closed when the server process exits
func (s *Server) Done() <-chan struct{} {
	if s.sup == nil {
		return nil
	}
	return s.sup.Done()
}
