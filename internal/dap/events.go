package dap

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/gdbserver-dap/internal/mi"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// progressOutput is the output text of flash progress events; the
// {percent, message} body travels in the event's data field
const progressOutput = "flashProgress"

func (s *Session) sendProgress(p types.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		s.log.Error(err, "failed to encode flash progress")
		return
	}
	s.send(&dap.OutputEvent{
		Event: *s.newEvent("output"),
		Body:  dap.OutputEventBody{Category: "telemetry", Output: progressOutput, Data: data},
	})
}

// pumpEvents turns gdb's async records into DAP events until gdb goes away
func (s *Session) pumpEvents(f *mi.Facade) {
	for rec := range f.Events() {
		s.handleRecord(rec)
	}

	s.releaseStopWaiters()
	s.mu.Lock()
	current := s.facade == f
	s.mu.Unlock()
	if current {
		s.log.Info("gdb exited unexpectedly")
		go s.fail(mi.ErrClosed)
	}
}

func (s *Session) handleRecord(rec *mi.Record) {
	switch rec.Type {
	case mi.ExecAsync:
		switch rec.Class {
		case "stopped":
			s.onStopped(rec)
		case "running":
			s.onRunning(rec)
		}

	case mi.NotifyAsync:
		switch rec.Class {
		case "thread-created":
			s.sendThreadEvent("started", rec)
		case "thread-exited":
			s.sendThreadEvent("exited", rec)
		default:
			s.log.V(1).Info("gdb notification", "class", rec.Class)
		}

	case mi.ConsoleStream:
		s.sendOutput("console", rec.Text)
	case mi.TargetStream:
		s.sendOutput("stdout", rec.Text)
	case mi.LogStream:
		s.sendOutput("stderr", rec.Text)
	}
}

func (s *Session) sendThreadEvent(reason string, rec *mi.Record) {
	s.send(&dap.ThreadEvent{
		Event: *s.newEvent("thread"),
		Body:  dap.ThreadEventBody{Reason: reason, ThreadId: mi.ParseThreadID(rec.Results.String("id"))},
	})
}

func (s *Session) onRunning(rec *mi.Record) {
	s.mu.Lock()
	switch s.state {
	case types.StateInitialized, types.StateStopped, types.StateRunning:
	default:
		s.mu.Unlock()
		return
	}
	s.setStateLocked(types.StateRunning)
	quiet := s.quietStops > 0
	s.mu.Unlock()

	s.handles.reset()

	if quiet {
		return
	}
	threadID := mi.ParseThreadID(rec.Results.String("thread-id"))
	s.send(&dap.ContinuedEvent{
		Event: *s.newEvent("continued"),
		Body:  dap.ContinuedEventBody{ThreadId: threadIDOrDefault(threadID), AllThreadsContinued: threadID == 0},
	})
}

func (s *Session) onStopped(rec *mi.Record) {
	reason := rec.Results.String("reason")

	s.mu.Lock()
	state := s.state
	forward := state == types.StateRunning || state == types.StateStopped || state == types.StateInitialized
	if s.quietStops > 0 {
		s.quietStops--
		forward = false
	}
	if forward || state == types.StateRunning {
		s.setStateLocked(types.StateStopped)
	}
	waiters := s.stopWaiters
	s.stopWaiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	if !forward {
		return
	}

	if isExitReason(reason) {
		s.sendTerminated()
		return
	}

	threadID := mi.ParseThreadID(rec.Results.String("thread-id"))
	body := dap.StoppedEventBody{
		Reason:            stopReason(rec),
		ThreadId:          threadIDOrDefault(threadID),
		AllThreadsStopped: true,
	}
	if reason == "signal-received" {
		body.Description = rec.Results.String("signal-meaning")
	}
	s.send(&dap.StoppedEvent{Event: *s.newEvent("stopped"), Body: body})
}

func isExitReason(reason string) bool {
	switch reason {
	case "exited", "exited-normally", "exited-signalled":
		return true
	}
	return false
}

// stopReason maps a *stopped record to a DAP stop reason
func stopReason(rec *mi.Record) string {
	switch rec.Results.String("reason") {
	case "breakpoint-hit":
		return "breakpoint"
	case "watchpoint-trigger", "read-watchpoint-trigger", "access-watchpoint-trigger":
		return "data breakpoint"
	case "end-stepping-range", "function-finished", "location-reached":
		return "step"
	case "signal-received":
		switch rec.Results.String("signal-name") {
		case "SIGINT", "SIGTRAP", "0":
			return "pause"
		}
		return "exception"
	default:
		return "pause"
	}
}

func threadIDOrDefault(id int) int {
	if id <= 0 {
		return 1
	}
	return id
}

// --- waiting for stops ---

// expectQuietStop registers interest in the next stop and keeps it from
// reaching the client
func (s *Session) expectQuietStop() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quietStops++
	w := make(chan struct{})
	s.stopWaiters = append(s.stopWaiters, w)
	return w
}

func (s *Session) cancelQuietStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quietStops > 0 {
		s.quietStops--
	}
}

func (s *Session) waitStop(ctx context.Context, waiter chan struct{}, timeout time.Duration) bool {
	select {
	case <-waiter:
		return true
	case <-time.After(timeout):
		s.cancelQuietStop()
		return false
	case <-ctx.Done():
		s.cancelQuietStop()
		return false
	}
}

func (s *Session) releaseStopWaiters() {
	s.mu.Lock()
	waiters := s.stopWaiters
	s.stopWaiters = nil
	s.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}
