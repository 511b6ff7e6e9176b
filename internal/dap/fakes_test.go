package dap

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdbserver-dap/internal/config"
	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/gdbserver"
	"github.com/ctagard/gdbserver-dap/internal/mi"
	"github.com/ctagard/gdbserver-dap/internal/symbols"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

const firmwareSymbols = "\n" +
	"firmware.elf:     file format elf32-littlearm\n" +
	"\n" +
	"SYMBOL TABLE:\n" +
	"00000000 l    df *ABS*\t00000000 main.c\n" +
	"20000000 l     O .bss\t00000040 rx_buf\n" +
	"20000040 g     O .bss\t00000004 counter\n" +
	"20000044 g     O .bss\t00000004 tick_ms\n" +
	"080001a4 g     F .text\t0000002c main\n"

// callLog records backend activity in order, across gdb and the server
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, c := range l.all() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type replyRule struct {
	prefix string
	reply  string
}

// fakeGdb is an mi.Conn answering commands from prefix rules
type fakeGdb struct {
	log *callLog

	mu        sync.Mutex
	rules     []replyRule
	onCommand func(command string)

	events    chan *mi.Record
	closeOnce sync.Once
}

func newFakeGdb(log *callLog) *fakeGdb {
	return &fakeGdb{log: log, events: make(chan *mi.Record, 64)}
}

// on answers commands starting with prefix. Later rules win.
func (g *fakeGdb) on(prefix, reply string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, replyRule{prefix: prefix, reply: reply})
}

func (g *fakeGdb) Send(_ context.Context, command string) (*mi.Record, error) {
	g.log.add(command)

	g.mu.Lock()
	reply := "^done"
	for i := len(g.rules) - 1; i >= 0; i-- {
		if strings.HasPrefix(command, g.rules[i].prefix) {
			reply = g.rules[i].reply
			break
		}
	}
	hook := g.onCommand
	g.mu.Unlock()

	rec, err := mi.ParseRecord(reply)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook(command)
	}
	if rec.Class == "error" {
		return nil, dbgerrors.MICommandFailed(command, rec.ErrorMessage())
	}
	return rec, nil
}

func (g *fakeGdb) emit(t *testing.T, line string) {
	t.Helper()
	rec, err := mi.ParseRecord(line)
	require.NoError(t, err)
	g.events <- rec
}

func (g *fakeGdb) Events() <-chan *mi.Record { return g.events }

func (g *fakeGdb) Close() error {
	g.closeOnce.Do(func() { close(g.events) })
	return nil
}

// fakeServer stands in for a gdb server that becomes ready after a delay
type fakeServer struct {
	log       *callLog
	delay     time.Duration
	port      int
	launchErr error

	mu         sync.Mutex
	opts       gdbserver.Options
	launchOpts gdbserver.LaunchOptions
	done       chan struct{}
	stopOnce   sync.Once
}

func (s *fakeServer) Launch(ctx context.Context, lo gdbserver.LaunchOptions) (int, error) {
	s.log.add("server:launch")
	s.mu.Lock()
	s.launchOpts = lo
	s.mu.Unlock()

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	if s.launchErr != nil {
		return 0, s.launchErr
	}
	return s.port, nil
}

func (s *fakeServer) ResetProgress() { s.log.add("server:reset-progress") }

func (s *fakeServer) Stop(time.Duration) error {
	s.log.add("server:stop")
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

func (s *fakeServer) Done() <-chan struct{} { return s.done }

// fakeTransport connects a session to a test client through channels
type fakeTransport struct {
	in        chan dap.Message
	out       chan dap.Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan dap.Message),
		out:    make(chan dap.Message, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (dap.Message, error) {
	select {
	case msg, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeTransport) WriteMessage(msg dap.Message) error {
	select {
	case f.out <- msg:
		return nil
	case <-f.closed:
		return io.ErrClosedPipe
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// harness runs a Session against fake backends
type harness struct {
	t         *testing.T
	log       *callLog
	gdb       *fakeGdb
	server    *fakeServer
	session   *Session
	transport *fakeTransport

	symbolsRelease chan struct{}
	symbolsLoaded  chan struct{}
	loadedOnce     sync.Once

	seq    int
	events []dap.Message
	served chan struct{}
}

type harnessOptions struct {
	serverDelay   time.Duration
	launchErr     error
	holdSymbols   bool
	symbolLoadErr error
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		t:              t,
		log:            log,
		gdb:            newFakeGdb(log),
		server:         &fakeServer{log: log, delay: opts.serverDelay, port: 50000, launchErr: opts.launchErr, done: make(chan struct{})},
		transport:      newFakeTransport(),
		symbolsRelease: make(chan struct{}),
		symbolsLoaded:  make(chan struct{}),
		served:         make(chan struct{}),
	}
	if !opts.holdSymbols {
		close(h.symbolsRelease)
	}

	backend := Backend{
		NewGdbServer: func(_ types.ServerType, o gdbserver.Options) (GdbServer, error) {
			h.server.mu.Lock()
			h.server.opts = o
			h.server.mu.Unlock()
			return h.server, nil
		},
		StartGdb: func(context.Context, string, []string, string) (mi.Conn, error) {
			return h.gdb, nil
		},
		LoadSymbols: func(ctx context.Context, binary, tool string) (*symbols.Table, error) {
			defer h.loadedOnce.Do(func() { close(h.symbolsLoaded) })
			select {
			case <-h.symbolsRelease:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if opts.symbolLoadErr != nil {
				return nil, opts.symbolLoadErr
			}
			return symbols.Parse(strings.NewReader(firmwareSymbols))
		},
	}

	cfg := config.DefaultConfig()
	cfg.ShutdownGrace = config.Duration{Duration: 10 * time.Millisecond}

	h.session = NewSession(context.Background(), cfg, backend, h.transport, logr.Discard())
	go func() {
		defer close(h.served)
		_ = h.session.Serve()
	}()

	t.Cleanup(func() {
		close(h.transport.in)
		select {
		case <-h.served:
		case <-time.After(5 * time.Second):
			t.Error("session did not shut down")
		}
	})
	return h
}

func (h *harness) newRequest(command string) dap.Request {
	h.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: h.seq, Type: "request"},
		Command:         command,
	}
}

// do sends a request and waits for its response, collecting events seen
// on the way
func (h *harness) do(req dap.RequestMessage) dap.ResponseMessage {
	h.t.Helper()
	seq := req.GetRequest().Seq
	h.transport.in <- req

	for {
		msg := h.next()
		if resp, ok := msg.(dap.ResponseMessage); ok && resp.GetResponse().RequestSeq == seq {
			return resp
		}
		h.events = append(h.events, msg)
	}
}

func (h *harness) next() dap.Message {
	h.t.Helper()
	select {
	case msg := <-h.transport.out:
		return msg
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for a DAP message")
		return nil
	}
}

// waitEvent returns the first event called name, reading more if needed
func (h *harness) waitEvent(name string) dap.EventMessage {
	h.t.Helper()
	for i, msg := range h.events {
		if ev, ok := msg.(dap.EventMessage); ok && ev.GetEvent().Event == name {
			h.events = append(h.events[:i], h.events[i+1:]...)
			return ev
		}
	}
	for {
		msg := h.next()
		if ev, ok := msg.(dap.EventMessage); ok && ev.GetEvent().Event == name {
			return ev
		}
		h.events = append(h.events, msg)
	}
}

func (h *harness) hasEvent(name string) bool {
	for _, msg := range h.events {
		if ev, ok := msg.(dap.EventMessage); ok && ev.GetEvent().Event == name {
			return true
		}
	}
	return false
}

func (h *harness) launch(args types.LaunchArguments) dap.ResponseMessage {
	h.t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(h.t, err)
	return h.do(&dap.LaunchRequest{Request: h.newRequest("launch"), Arguments: raw})
}

// launchStopped launches without an entry point and finishes
// configuration, leaving the target halted at reset
func (h *harness) launchStopped() {
	h.t.Helper()
	resp := h.launch(types.LaunchArguments{Executable: "/fw/firmware.elf"})
	require.True(h.t, resp.GetResponse().Success, resp.GetResponse().Message)
	resp = h.do(&dap.ConfigurationDoneRequest{Request: h.newRequest("configurationDone")})
	require.True(h.t, resp.GetResponse().Success, resp.GetResponse().Message)
	h.waitEvent("stopped")
	require.Equal(h.t, types.StateStopped, h.session.State())
}

func (h *harness) variables(ref int) *dap.VariablesResponse {
	h.t.Helper()
	resp := h.do(&dap.VariablesRequest{
		Request:   h.newRequest("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: ref},
	})
	vr, ok := resp.(*dap.VariablesResponse)
	require.True(h.t, ok, "expected variables response, got %T: %s", resp, resp.GetResponse().Message)
	return vr
}

func variableNames(vars []dap.Variable) []string {
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		names = append(names, v.Name)
	}
	return names
}
