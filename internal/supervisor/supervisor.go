// Package supervisor spawns and tears down a single gdb-server child process.
//
// The supervisor buffers the child's stdout and stderr by line, evaluates a
// Detector against every complete line, and reports readiness once a ready
// line is seen. Spawn failures, the launch timeout, error lines and an early
// exit all settle the launch as failed, exactly once; anything seen after the
// launch settled is ignored for readiness purposes.
//
// All state transitions happen on one goroutine that consumes discrete events
// (output chunk, timer fired, process exited).
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
)

// DefaultLaunchTimeout bounds how long Spawn waits for the ready line
const DefaultLaunchTimeout = 10 * time.Second

// Stream identifies one of the child's output streams
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// State is the supervisor lifecycle state
type State int

const (
	StateIdle State = iota
	StateSpawning
	StateReady
	StateFailed
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawning:
		return "spawning"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Detector recognizes a server's ready and error lines. Both are only ever
// called with a single complete line.
type Detector interface {
	IsReady(line string) bool
	IsError(line string) bool
}

// Options configures callbacks and timing. All callbacks run on the
// supervisor's event goroutine and must not block.
type Options struct {
	LaunchTimeout time.Duration

	// OnLine receives every complete output line
	OnLine func(stream Stream, line string)
	// OnData receives raw output chunks as they arrive
	OnData func(stream Stream, chunk []byte)
	// OnServerError receives error lines seen after the server became ready
	OnServerError func(err error)
	// OnExit is called once the process has exited
	OnExit func(err error)
}

type eventKind int

const (
	evData eventKind = iota
	evTimeout
	evExited
)

type event struct {
	kind   eventKind
	stream Stream
	data   []byte
	err    error
}

// Supervisor owns at most one live child process
type Supervisor struct {
	detector Detector
	opts     Options
	log      logr.Logger

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd
	done  chan struct{}
}

// New creates a supervisor using detector to recognize ready and error lines
func New(detector Detector, log logr.Logger, opts Options) *Supervisor {
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = DefaultLaunchTimeout
	}
	return &Supervisor{
		detector: detector,
		opts:     opts,
		log:      log,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when the current process exits. It is nil
// before the first Spawn.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Pid returns the child's process ID, or 0 when none was started
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Spawn starts command and blocks until the detector sees a ready line, or
// the launch fails. Cancelling ctx while waiting kills the child.
func (s *Supervisor) Spawn(ctx context.Context, command string, args []string, dir string) error {
	s.mu.Lock()
	if s.childAliveLocked() {
		pid, state := s.cmd.Process.Pid, s.state
		s.mu.Unlock()
		return fmt.Errorf("supervisor already has a live process (pid %d, %s)", pid, state)
	}

	//nolint:gosec // G204: spawning the configured gdb server is the purpose of this package
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	SetProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.state = StateFailed
		s.mu.Unlock()
		return dbgerrors.SpawnFailed(command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.state = StateFailed
		s.mu.Unlock()
		return dbgerrors.SpawnFailed(command, err)
	}

	if err := cmd.Start(); err != nil {
		s.state = StateFailed
		s.mu.Unlock()
		return dbgerrors.SpawnFailed(command, err)
	}

	done := make(chan struct{})
	s.cmd = cmd
	s.done = done
	s.state = StateSpawning
	s.mu.Unlock()

	s.log.Info("gdb server started", "command", command, "args", strings.Join(args, " "), "pid", cmd.Process.Pid)

	events := make(chan event)
	ready := make(chan error, 1)

	send := func(ev event) {
		select {
		case events <- ev:
		case <-done:
		}
	}

	var g errgroup.Group
	g.Go(func() error { return pump(stdout, Stdout, send) })
	g.Go(func() error { return pump(stderr, Stderr, send) })
	go func() {
		readErr := g.Wait()
		waitErr := cmd.Wait()
		if waitErr == nil && readErr != nil {
			waitErr = readErr
		}
		send(event{kind: evExited, err: waitErr})
	}()

	timer := time.AfterFunc(s.opts.LaunchTimeout, func() {
		send(event{kind: evTimeout})
	})

	go s.loop(events, ready, timer, done)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		s.forceKill()
		return ctx.Err()
	}
}

// childAliveLocked reports whether the last started child has not been
// reaped yet. A failed launch stays alive until its exit is observed.
func (s *Supervisor) childAliveLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func pump(r io.Reader, stream Stream, send func(event)) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			send(event{kind: evData, stream: stream, data: chunk})
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Supervisor) loop(events <-chan event, ready chan<- error, timer *time.Timer, done chan struct{}) {
	var buffers [2]lineBuffer

	for ev := range events {
		switch ev.kind {
		case evData:
			if s.opts.OnData != nil {
				s.opts.OnData(ev.stream, ev.data)
			}
			for _, line := range buffers[ev.stream].Write(ev.data) {
				s.handleLine(ev.stream, line, ready, timer)
			}

		case evTimeout:
			if s.settle(StateFailed, dbgerrors.LaunchTimeout(), ready, timer) {
				s.log.Info("gdb server did not become ready in time", "timeout", s.opts.LaunchTimeout)
				s.forceKill()
			}

		case evExited:
			for stream := range buffers {
				if line, ok := buffers[stream].Flush(); ok {
					s.handleLine(Stream(stream), line, ready, timer)
				}
			}
			s.settle(StateFailed, dbgerrors.ServerExited(ev.err), ready, timer)

			s.mu.Lock()
			s.state = StateExited
			s.mu.Unlock()
			close(done)

			s.log.Info("gdb server exited", "error", ev.err)
			if s.opts.OnExit != nil {
				s.opts.OnExit(ev.err)
			}
			return
		}
	}
}

func (s *Supervisor) handleLine(stream Stream, line string, ready chan<- error, timer *time.Timer) {
	s.log.V(1).Info("gdb server output", "stream", stream.String(), "line", line)
	if s.opts.OnLine != nil {
		s.opts.OnLine(stream, line)
	}

	if s.detector.IsError(line) {
		err := dbgerrors.ServerReported(strings.TrimRight(line, "\r"))
		if s.settle(StateFailed, err, ready, timer) {
			s.forceKill()
			return
		}
		if s.State() == StateReady && s.opts.OnServerError != nil {
			s.opts.OnServerError(err)
		}
		return
	}

	if s.detector.IsReady(line) {
		s.settle(StateReady, nil, ready, timer)
	}
}

// settle resolves the pending launch. It only has an effect while spawning,
// so the first outcome wins and later ones are dropped.
func (s *Supervisor) settle(next State, err error, ready chan<- error, timer *time.Timer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSpawning {
		return false
	}
	timer.Stop()
	s.state = next
	ready <- err
	return true
}

// Kill interrupts the running process group. It is a no-op when no process
// is running.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil || s.state == StateExited || s.state == StateIdle {
		return nil
	}
	return interruptProcessGroup(s.cmd)
}

// Stop interrupts the process, waits up to grace for it to exit, then kills it
func (s *Supervisor) Stop(grace time.Duration) error {
	done := s.Done()
	if done == nil {
		return nil
	}
	if err := s.Kill(); err != nil {
		s.log.Error(err, "failed to interrupt gdb server")
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		s.log.Info("gdb server did not exit after interrupt, killing it", "grace", grace)
		return s.forceKill()
	}
}

func (s *Supervisor) forceKill() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil || s.state == StateExited {
		return nil
	}
	return KillProcessGroup(s.cmd.Process.Pid, s.cmd)
}
