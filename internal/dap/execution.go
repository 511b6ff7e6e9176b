package dap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-dap"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/mi"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// whileHalted runs fn with the target stopped. A running target is
// interrupted first and resumed afterwards without the client seeing it stop.
func (s *Session) whileHalted(ctx context.Context, f *mi.Facade, fn func() error) error {
	if s.State() != types.StateRunning {
		return fn()
	}

	waiter := s.expectQuietStop()
	if err := f.ExecInterrupt(ctx, 0); err != nil {
		s.cancelQuietStop()
		return err
	}
	if !s.waitStop(ctx, waiter, stopTimeout) {
		return fmt.Errorf("target did not stop within %s", stopTimeout)
	}

	err := fn()
	if cerr := f.ExecContinue(ctx, 0); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Session) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	f, err := s.liveFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	path := request.Arguments.Source.Path
	if path == "" {
		path = request.Arguments.Source.Name
	}

	results := make([]dap.Breakpoint, 0, len(request.Arguments.Breakpoints))
	err = s.whileHalted(s.ctx, f, func() error {
		s.mu.Lock()
		old := s.breakpoints[path]
		s.mu.Unlock()
		if err := f.BreakDelete(s.ctx, old...); err != nil {
			return err
		}

		var numbers []string
		for _, sbp := range request.Arguments.Breakpoints {
			location := fmt.Sprintf("%s:%d", path, sbp.Line)
			if strings.ContainsAny(path, " \t") {
				location = mi.Quote(location)
			}
			bp, err := f.BreakInsert(s.ctx, location, sbp.Condition, false)
			results = append(results, breakpointResult(bp, sbp.Line, err))
			if err == nil {
				numbers = append(numbers, bp.Number)
			}
		}

		s.mu.Lock()
		s.breakpoints[path] = numbers
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.SetBreakpointsResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = results
	s.send(response)
}

func (s *Session) onSetFunctionBreakpointsRequest(request *dap.SetFunctionBreakpointsRequest) {
	f, err := s.liveFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	results := make([]dap.Breakpoint, 0, len(request.Arguments.Breakpoints))
	err = s.whileHalted(s.ctx, f, func() error {
		s.mu.Lock()
		old := s.funcBreaks
		s.mu.Unlock()
		if err := f.BreakDelete(s.ctx, old...); err != nil {
			return err
		}

		var numbers []string
		for _, fbp := range request.Arguments.Breakpoints {
			bp, err := f.BreakInsert(s.ctx, fbp.Name, fbp.Condition, false)
			results = append(results, breakpointResult(bp, 0, err))
			if err == nil {
				numbers = append(numbers, bp.Number)
			}
		}

		s.mu.Lock()
		s.funcBreaks = numbers
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.SetFunctionBreakpointsResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = results
	s.send(response)
}

func breakpointResult(bp mi.Breakpoint, line int, err error) dap.Breakpoint {
	if err != nil {
		return dap.Breakpoint{Verified: false, Line: line, Message: dbgerrors.Message(err)}
	}
	id, _ := strconv.Atoi(bp.Number)
	if bp.Line > 0 {
		line = bp.Line
	}
	return dap.Breakpoint{Id: id, Verified: !bp.Pending, Line: line}
}

func (s *Session) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	response := &dap.SetExceptionBreakpointsResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) onThreadsRequest(request *dap.ThreadsRequest) {
	f, err := s.liveFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	threads, _, err := f.ThreadInfo(s.ctx)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.ThreadsResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.Threads = make([]dap.Thread, 0, len(threads))
	for _, t := range threads {
		name := t.Name
		if name == "" {
			name = t.TargetID
		}
		response.Body.Threads = append(response.Body.Threads, dap.Thread{Id: t.ID, Name: name})
	}
	if len(response.Body.Threads) == 0 {
		response.Body.Threads = append(response.Body.Threads, dap.Thread{Id: 1, Name: "main"})
	}
	s.send(response)
}

func (s *Session) onPauseRequest(request *dap.PauseRequest) {
	f, err := s.liveFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	if s.State() == types.StateRunning {
		if err := f.ExecInterrupt(s.ctx, request.Arguments.ThreadId); err != nil {
			s.sendErrorResponse(request.Request, err)
			return
		}
	}

	response := &dap.PauseResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) onContinueRequest(request *dap.ContinueRequest) {
	f, err := s.stoppedFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}
	if err := f.ExecContinue(s.ctx, 0); err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.ContinueResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	s.send(response)
}

func (s *Session) onNextRequest(request *dap.NextRequest) {
	f, err := s.stoppedFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}
	if err := f.ExecNext(s.ctx, request.Arguments.ThreadId); err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.NextResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) onStepInRequest(request *dap.StepInRequest) {
	f, err := s.stoppedFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}
	if err := f.ExecStep(s.ctx, request.Arguments.ThreadId); err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.StepInResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) onStepOutRequest(request *dap.StepOutRequest) {
	f, err := s.stoppedFacade(request.Command)
	if err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}
	if err := f.ExecFinish(s.ctx, request.Arguments.ThreadId); err != nil {
		s.sendErrorResponse(request.Request, err)
		return
	}

	response := &dap.StepOutResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}
