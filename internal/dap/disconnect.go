package dap

import (
	"context"
	"time"

	"github.com/google/go-dap"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

func (s *Session) onDisconnectRequest(request *dap.DisconnectRequest) {
	restart := request.Arguments != nil && request.Arguments.Restart
	s.teardown(context.WithoutCancel(s.ctx), !restart)

	response := &dap.DisconnectResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) onTerminateRequest(request *dap.TerminateRequest) {
	s.teardown(context.WithoutCancel(s.ctx), true)

	response := &dap.TerminateResponse{}
	response.Response = *s.newResponse(request.Seq, request.Command)
	s.send(response)
}

// teardown halts a running target, detaches and quits gdb, then stops the
// gdb server once gdb had the grace period to let go of it. Detach and exit
// failures are logged and otherwise ignored. notify sends the terminated
// event.
func (s *Session) teardown(ctx context.Context, notify bool) {
	s.teardownMu.Lock()
	defer s.teardownMu.Unlock()

	s.mu.Lock()
	prev := s.state
	facade := s.facade
	server := s.server
	s.facade = nil
	s.server = nil
	if prev != types.StateNotStarted && prev != types.StateTerminated {
		s.setStateLocked(types.StateDisconnecting)
	}
	s.mu.Unlock()

	if facade != nil {
		if prev == types.StateRunning {
			waiter := s.expectQuietStop()
			if err := facade.ExecInterrupt(ctx, 0); err != nil {
				s.log.V(1).Info("interrupt before disconnect failed", "error", err.Error())
				s.cancelQuietStop()
			} else if !s.waitStop(ctx, waiter, stopTimeout) {
				s.log.Info("target did not stop before disconnect", "timeout", stopTimeout)
			}
		}

		if err := facade.TargetDetach(ctx); err != nil {
			s.log.V(1).Info("ignoring detach failure", "error", dbgerrors.DetachFailed(err).Error())
		}
		if err := facade.GdbExit(ctx); err != nil {
			s.log.V(1).Info("ignoring gdb exit failure", "error", err.Error())
		}
		if err := facade.Close(); err != nil {
			s.log.V(1).Info("closing gdb failed", "error", err.Error())
		}
	}

	if server != nil {
		grace := s.cfg.ShutdownGrace.Duration
		select {
		case <-server.Done():
		case <-time.After(grace):
		case <-ctx.Done():
		}
		if err := server.Stop(time.Second); err != nil {
			s.log.Error(err, "failed to stop gdb server")
		}
	}

	s.handles.reset()
	s.varobjs.clear()

	s.mu.Lock()
	if s.state != types.StateNotStarted {
		s.setStateLocked(types.StateTerminated)
	}
	s.mu.Unlock()

	if notify && prev != types.StateNotStarted {
		s.sendTerminated()
	}
}
