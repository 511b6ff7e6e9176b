package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/go-dap"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/gdbserver"
	"github.com/ctagard/gdbserver-dap/internal/launchconfig"
	"github.com/ctagard/gdbserver-dap/internal/mi"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

func (s *Session) onLaunchRequest(request *dap.LaunchRequest) {
	args, err := decodeLaunchArguments(request.Arguments)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}
	if err := s.launch(s.ctx, args, request.Command); err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	s.send(&dap.InitializedEvent{Event: *s.newEvent("initialized")})
	response := &dap.LaunchResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) onAttachRequest(request *dap.AttachRequest) {
	args, err := decodeLaunchArguments(request.Arguments)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}
	if err := s.launch(s.ctx, args, request.Command); err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	s.send(&dap.InitializedEvent{Event: *s.newEvent("initialized")})
	response := &dap.AttachResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func decodeLaunchArguments(raw json.RawMessage) (types.LaunchArguments, error) {
	var args types.LaunchArguments
	if len(raw) == 0 {
		return args, dbgerrors.InvalidParameter("arguments", "", "launch arguments with an executable")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, dbgerrors.InvalidParameter("arguments", string(raw), err.Error())
	}
	if err := launchconfig.ResolveLaunchArguments(&args); err != nil {
		return args, err
	}
	if args.Executable == "" {
		return args, dbgerrors.InvalidParameter("executable", "", "path to the ELF image to debug")
	}
	return args, nil
}

// launch starts the symbol load, the gdb server and gdb, then runs the MI
// handshake. The session is Initialized when it returns nil.
func (s *Session) launch(ctx context.Context, args types.LaunchArguments, request string) error {
	s.mu.Lock()
	if s.state != types.StateNotStarted && s.state != types.StateTerminated {
		state := s.state
		s.mu.Unlock()
		return dbgerrors.InvalidState(request, state.String())
	}
	s.setStateLocked(types.StateLaunching)
	s.args = args
	s.terminatedSent = false
	s.breakpoints = make(map[string][]string)
	s.funcBreaks = nil
	s.mu.Unlock()

	s.handles.reset()
	s.varobjs.clear()

	gen := s.generation.Add(1)
	s.symbols.Store(nil)
	go s.loadSymbols(gen, args)

	if err := s.startBackend(ctx, args); err != nil {
		s.log.Error(err, "launch failed")
		// an error line from the gdb server ends the session, not only the launch
		s.teardown(context.WithoutCancel(ctx), dbgerrors.HasCode(err, dbgerrors.CodeServerError))
		return err
	}

	s.setState(types.StateInitialized)
	return nil
}

// loadSymbols parses the executable's symbol table. A failure only costs
// the global and static scopes.
func (s *Session) loadSymbols(gen int64, args types.LaunchArguments) {
	tool := args.ObjdumpPath
	if tool == "" {
		tool = s.cfg.ObjdumpPath
	}

	table, err := s.backend.LoadSymbols(s.ctx, args.Executable, tool)
	if s.generation.Load() != gen {
		return
	}
	if err != nil {
		s.log.Error(err, "symbol load failed", "executable", args.Executable)
		s.sendOutput("stderr", dbgerrors.Message(err)+"\n")
		return
	}
	s.symbols.Store(table)
	s.log.Info("symbols loaded", "executable", args.Executable, "count", table.Len())
}

func (s *Session) startBackend(ctx context.Context, args types.LaunchArguments) error {
	serverType := args.ServerType
	if serverType == "" {
		serverType = s.cfg.DefaultServer
	}
	serverCfg := s.cfg.Server(serverType)

	srv, err := s.backend.NewGdbServer(serverType, gdbserver.Options{
		LaunchTimeout:   s.cfg.LaunchTimeout.Duration,
		GdbPortStart:    s.cfg.Ports.GdbStart,
		TelnetPortStart: s.cfg.Ports.TelnetStart,
		PortRange:       s.cfg.Ports.Length,
		OnOutput: func(line string) {
			s.log.V(1).Info("gdb server", "line", line)
		},
		OnProgress:    s.sendProgress,
		OnServerError: s.onServerError,
		OnExit:        s.onServerExit,
	})
	if err != nil {
		return dbgerrors.InvalidParameter("servertype", serverType, "openocd or pyocd")
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	serverPath := args.ServerPath
	if serverPath == "" {
		serverPath = serverCfg.Path
	}
	serverArgs := append(append([]string{}, serverCfg.Args...), args.ServerArgs...)

	port, err := srv.Launch(ctx, gdbserver.LaunchOptions{
		ServerPath:  serverPath,
		ServerArgs:  serverArgs,
		ConfigFiles: args.ConfigFiles,
		TargetID:    args.TargetID,
		Cwd:         args.Cwd,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.gdbPort = port
	s.mu.Unlock()
	s.log.Info("gdb server ready", "server", string(serverType), "port", port)

	gdbPath := args.GdbPath
	if gdbPath == "" {
		gdbPath = s.cfg.GdbPath
	}
	conn, err := s.backend.StartGdb(ctx, gdbPath, []string{args.Executable}, args.Cwd)
	if err != nil {
		return dbgerrors.SpawnFailed(gdbPath, err)
	}
	facade := mi.NewFacade(conn, s.log.WithName("mi"))
	s.mu.Lock()
	s.facade = facade
	s.mu.Unlock()
	go s.pumpEvents(facade)

	return s.handshake(ctx, facade, srv, port, args)
}

// handshake connects gdb to the server, flashes the image and leaves the
// target halted at reset
func (s *Session) handshake(ctx context.Context, f *mi.Facade, srv GdbServer, port int, args types.LaunchArguments) error {
	if err := f.TargetAsyncOn(ctx); err != nil {
		return err
	}
	if err := f.TargetSelectRemote(ctx, port); err != nil {
		return err
	}
	if err := f.MonitorResetHalt(ctx); err != nil {
		return err
	}

	srv.ResetProgress()
	if err := f.TargetDownload(ctx); err != nil {
		return err
	}
	if err := f.MonitorResetHalt(ctx); err != nil {
		return err
	}
	if err := f.EnablePrettyPrinting(ctx); err != nil {
		return err
	}

	if entry := args.EntryPoint(); entry != "" && !args.NoDebug {
		if _, err := f.BreakInsert(ctx, entry, "", true); err != nil {
			return err
		}
	}
	return nil
}

// onConfigurationDoneRequest starts the target. Without an entry point the
// target stays halted at reset and the client is told so.
func (s *Session) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	f, err := s.liveFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	s.mu.Lock()
	args := s.args
	s.mu.Unlock()

	resume := args.NoDebug || args.EntryPoint() != ""
	if resume {
		if err := f.ExecContinue(s.ctx, 0); err != nil {
			s.sendErrorResponse(request.Request, err)
			return
		}
	} else {
		s.setState(types.StateStopped)
	}

	response := &dap.ConfigurationDoneResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)

	if !resume {
		s.send(&dap.StoppedEvent{
			Event: *s.newEvent("stopped"),
			Body:  dap.StoppedEventBody{Reason: "entry", ThreadId: 1, AllThreadsStopped: true},
		})
	}
}

// onRestartRequest tears the session down without a terminated event and
// launches again with the previous arguments
func (s *Session) onRestartRequest(request *dap.RestartRequest) {
	s.mu.Lock()
	args := s.args
	s.mu.Unlock()

	if args.Executable == "" {
		s.sendErrorResponse(request.Request, dbgerrors.InvalidState(request.Command, s.State().String()))
		return
	}

	s.teardown(s.ctx, false)
	s.setState(types.StateNotStarted)
	if err := s.launch(s.ctx, args, request.Command); err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.RestartResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
	s.send(&dap.InitializedEvent{Event: *s.newEvent("initialized")})
}

// onServerError handles an error line printed by a running gdb server
func (s *Session) onServerError(err error) {
	s.log.Error(err, "gdb server reported an error")
	go s.fail(err)
}

// onServerExit handles the gdb server going away
func (s *Session) onServerExit(err error) {
	switch s.State() {
	case types.StateInitialized, types.StateRunning, types.StateStopped:
		msg := "gdb server exited"
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		go s.fail(errors.New(msg))
	}
}

// fail reports err to the client and ends the session
func (s *Session) fail(err error) {
	switch s.State() {
	case types.StateNotStarted, types.StateLaunching, types.StateDisconnecting, types.StateTerminated:
		return
	}
	s.sendOutput("stderr", dbgerrors.Message(err)+"\n")
	s.teardown(context.WithoutCancel(s.ctx), true)
}
