package dap

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/google/uuid"

	"github.com/ctagard/gdbserver-dap/internal/config"
	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/gdbserver"
	"github.com/ctagard/gdbserver-dap/internal/mi"
	"github.com/ctagard/gdbserver-dap/internal/ports"
	"github.com/ctagard/gdbserver-dap/internal/symbols"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// stopTimeout bounds waiting for gdb to acknowledge an interrupt
const stopTimeout = 2 * time.Second

// GdbServer is the gdb server process a session launches
type GdbServer interface {
	Launch(ctx context.Context, lo gdbserver.LaunchOptions) (int, error)
	ResetProgress()
	Stop(grace time.Duration) error
	Done() <-chan struct{}
}

// Backend creates the processes a session drives
type Backend struct {
	NewGdbServer func(t types.ServerType, opts gdbserver.Options) (GdbServer, error)
	StartGdb     func(ctx context.Context, gdbPath string, args []string, dir string) (mi.Conn, error)
	LoadSymbols  func(ctx context.Context, binary, tool string) (*symbols.Table, error)
}

// NewBackend returns the backend that runs real gdb server, gdb and objdump
// processes
func NewBackend(scanner *ports.Scanner, log logr.Logger) Backend {
	return Backend{
		NewGdbServer: func(t types.ServerType, opts gdbserver.Options) (GdbServer, error) {
			flavor, err := gdbserver.NewFlavor(t)
			if err != nil {
				return nil, err
			}
			return gdbserver.New(flavor, scanner, log.WithName("gdbserver"), opts), nil
		},
		StartGdb: func(_ context.Context, gdbPath string, args []string, dir string) (mi.Conn, error) {
			return mi.Start(gdbPath, args, dir, log.WithName("mi"))
		},
		LoadSymbols: symbols.Load,
	}
}

// Session is one DAP client connection driving one target
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg       *config.Config
	backend   Backend
	log       logr.Logger
	transport MessageTransport

	// ctx is cancelled when the client connection ends
	ctx    context.Context
	cancel context.CancelFunc

	// sendQueue serializes everything written to the client. Request
	// goroutines are tracked by sendWg; quit stops the sender.
	sendQueue chan dap.Message
	sendWg    sync.WaitGroup
	quit      chan struct{}
	seq       atomic.Int64

	mu             sync.Mutex
	state          types.SessionState
	args           types.LaunchArguments
	server         GdbServer
	gdbPort        int
	facade         *mi.Facade
	globalFrame    FrameReference
	breakpoints    map[string][]string
	funcBreaks     []string
	stopWaiters    []chan struct{}
	quietStops     int
	terminatedSent bool

	teardownMu sync.Mutex

	symbols    atomic.Pointer[symbols.Table]
	generation atomic.Int64
	handles    *handleTable
	varobjs    *varobjCache
}

// NewSession creates a session for one client connection
func NewSession(ctx context.Context, cfg *config.Config, backend Backend, transport MessageTransport, log logr.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.New().String()
	return &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		cfg:         cfg,
		backend:     backend,
		log:         log.WithValues("session", id),
		transport:   transport,
		ctx:         ctx,
		cancel:      cancel,
		sendQueue:   make(chan dap.Message),
		quit:        make(chan struct{}),
		state:       types.StateNotStarted,
		breakpoints: make(map[string][]string),
		handles:     newHandleTable(),
		varobjs:     newVarobjCache(),
	}
}

// Serve reads requests until the client goes away, then tears the session
// down. Each request is handled in its own goroutine.
func (s *Session) Serve() error {
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		s.sendFromQueue()
	}()

	var serveErr error
	for {
		msg, err := s.transport.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				serveErr = err
			}
			break
		}
		s.log.V(1).Info("received DAP message", "message", describe(msg))

		s.sendWg.Add(1)
		go func() {
			defer s.sendWg.Done()
			s.dispatchRequest(msg)
		}()
	}

	s.cancel()
	s.sendWg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace.Duration+stopTimeout)
	s.teardown(shutdownCtx, false)
	cancel()

	close(s.quit)
	<-senderDone
	_ = s.transport.Close()

	s.log.Info("client disconnected")
	return serveErr
}

// Close ends the client connection, which makes Serve return
func (s *Session) Close() error {
	s.cancel()
	return s.transport.Close()
}

// Info summarizes the session
func (s *Session) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return types.SessionInfo{
		SessionID:  s.ID,
		State:      s.state,
		Executable: s.args.Executable,
		GdbPort:    s.gdbPort,
	}
}

// State returns the session lifecycle state
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state types.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(state)
}

func (s *Session) setStateLocked(state types.SessionState) {
	if s.state != state {
		s.log.V(1).Info("session state changed", "from", s.state.String(), "to", state.String())
		s.state = state
	}
}

// liveFacade returns the MI facade while gdb is connected
func (s *Session) liveFacade(request string) (*mi.Facade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case types.StateInitialized, types.StateRunning, types.StateStopped:
		if s.facade != nil {
			return s.facade, nil
		}
	}
	return nil, dbgerrors.InvalidState(request, s.state.String())
}

// stoppedFacade returns the MI facade while the target is halted
func (s *Session) stoppedFacade(request string) (*mi.Facade, error) {
	f, err := s.liveFacade(request)
	if err != nil {
		return nil, err
	}
	if s.State() != types.StateStopped {
		return nil, dbgerrors.NotStopped(request)
	}
	return f, nil
}

// --- sending ---

// send queues a message for the sender goroutine
func (s *Session) send(msg dap.Message) {
	select {
	case s.sendQueue <- msg:
	case <-s.quit:
	}
}

func (s *Session) sendFromQueue() {
	for {
		select {
		case msg := <-s.sendQueue:
			if err := s.transport.WriteMessage(msg); err != nil {
				s.log.Error(err, "failed to send DAP message")
				continue
			}
			s.log.V(1).Info("sent DAP message", "message", describe(msg))
		case <-s.quit:
			return
		}
	}
}

func (s *Session) nextSeq() int {
	return int(s.seq.Add(1))
}

func (s *Session) newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  s.nextSeq(),
			Type: "event",
		},
		Event: event,
	}
}

func (s *Session) newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  s.nextSeq(),
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

// sendErrorResponse fails a request with the error's message verbatim
func (s *Session) sendErrorResponse(request dap.Request, err error) {
	er := &dap.ErrorResponse{}
	er.Response = *s.newResponse(request.Seq, request.Command)
	er.Success = false
	er.Message = dbgerrors.Message(err)
	s.log.V(1).Info("request failed", "command", request.Command, "error", err.Error())
	s.send(er)
}

func (s *Session) sendOutput(category, output string) {
	s.send(&dap.OutputEvent{
		Event: *s.newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: output},
	})
}

// sendTerminated emits the terminated event once per launch
func (s *Session) sendTerminated() {
	s.mu.Lock()
	if s.terminatedSent {
		s.mu.Unlock()
		return
	}
	s.terminatedSent = true
	s.mu.Unlock()

	s.send(&dap.TerminatedEvent{Event: *s.newEvent("terminated")})
}

func describe(msg dap.Message) string {
	switch m := msg.(type) {
	case dap.RequestMessage:
		return "request " + m.GetRequest().Command
	case dap.ResponseMessage:
		return "response " + m.GetResponse().Command
	case dap.EventMessage:
		return "event " + m.GetEvent().Event
	default:
		return "message"
	}
}

// --- dispatch ---

func (s *Session) dispatchRequest(request dap.Message) {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		s.onInitializeRequest(request)
	case *dap.LaunchRequest:
		s.onLaunchRequest(request)
	case *dap.AttachRequest:
		s.onAttachRequest(request)
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDoneRequest(request)
	case *dap.DisconnectRequest:
		s.onDisconnectRequest(request)
	case *dap.TerminateRequest:
		s.onTerminateRequest(request)
	case *dap.RestartRequest:
		s.onRestartRequest(request)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpointsRequest(request)
	case *dap.SetFunctionBreakpointsRequest:
		s.onSetFunctionBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpointsRequest(request)
	case *dap.ThreadsRequest:
		s.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		s.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		s.onScopesRequest(request)
	case *dap.VariablesRequest:
		s.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		s.onEvaluateRequest(request)
	case *dap.PauseRequest:
		s.onPauseRequest(request)
	case *dap.ContinueRequest:
		s.onContinueRequest(request)
	case *dap.NextRequest:
		s.onNextRequest(request)
	case *dap.StepInRequest:
		s.onStepInRequest(request)
	case *dap.StepOutRequest:
		s.onStepOutRequest(request)
	case dap.RequestMessage:
		req := request.GetRequest()
		s.sendErrorResponse(*req, errors.New(req.Command+" is not supported"))
	default:
		s.log.Info("ignoring unexpected DAP message", "message", describe(request))
	}
}

func (s *Session) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsFunctionBreakpoints = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsRestartRequest = true
	response.Body.SupportsTerminateRequest = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{}
	s.send(response)
}
