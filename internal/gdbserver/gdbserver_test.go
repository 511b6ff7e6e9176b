package gdbserver

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/ports"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

// TestNewFlavor verifies server types map to flavors.
func TestNewFlavor(t *testing.T) {
	f, err := NewFlavor(types.ServerOpenOCD)
	require.NoError(t, err)
	assert.Equal(t, "openocd", f.Name())

	f, err = NewFlavor("")
	require.NoError(t, err)
	assert.Equal(t, "openocd", f.Name())

	f, err = NewFlavor(types.ServerPyOCD)
	require.NoError(t, err)
	assert.Equal(t, "pyocd", f.Name())

	_, err = NewFlavor("jlink")
	assert.Error(t, err)
}

// TestOpenOCD_SessionConfig verifies the generated config file and argument order.
func TestOpenOCD_SessionConfig(t *testing.T) {
	o := &OpenOCD{TempDir: t.TempDir()}

	args, err := o.Args(LaunchOptions{
		ServerArgs:  []string{"-d2"},
		ConfigFiles: []string{"interface/stlink.cfg", "target/stm32f4x.cfg"},
	}, 50001, 4445)
	require.NoError(t, err)

	path := o.ConfigFile()
	require.NotEmpty(t, path)
	assert.Equal(t, []string{"-d2", "-f", "interface/stlink.cfg", "-f", "target/stm32f4x.cfg", "-f", path}, args)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "gdb_port 50001", lines[0])
	assert.Equal(t, "telnet_port 4445", lines[1])
	assert.Equal(t, `echo "`+OpenOCDReadyMarker+`"`, lines[len(lines)-1])

	require.NoError(t, o.Cleanup())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, o.Cleanup(), "cleanup twice is harmless")
}

// TestOpenOCD_NoTelnetPort verifies the telnet line is omitted without a telnet port.
func TestOpenOCD_NoTelnetPort(t *testing.T) {
	o := &OpenOCD{TempDir: t.TempDir()}
	defer o.Cleanup()

	_, err := o.Args(LaunchOptions{}, 50000, 0)
	require.NoError(t, err)

	data, err := os.ReadFile(o.ConfigFile())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "telnet_port")
}

// TestOpenOCD_Detection verifies the ready marker and error lines.
func TestOpenOCD_Detection(t *testing.T) {
	o := NewOpenOCD()
	assert.True(t, o.IsReady(OpenOCDReadyMarker))
	assert.False(t, o.IsReady("Info : Listening on port 50000 for gdb connections"))
	assert.True(t, o.IsError("Error: unable to find a matching CMSIS-DAP device"))
	assert.False(t, o.IsError("Info : clock speed 2000 kHz"))
}

// TestPyOCD_Args verifies the telnet port and target are passed as flags.
func TestPyOCD_Args(t *testing.T) {
	p := NewPyOCD()

	args, err := p.Args(LaunchOptions{TargetID: "nrf52840", ServerArgs: []string{"--persist"}}, 50000, 4444)
	require.NoError(t, err)
	assert.Equal(t, []string{"gdbserver", "--port", "50000", "--telnet-port", "4444", "--target", "nrf52840", "--persist"}, args)

	args, err = p.Args(LaunchOptions{}, 50002, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"gdbserver", "--port", "50002"}, args)
}

// TestPyOCD_Detection verifies pyOCD ready and error lines.
func TestPyOCD_Detection(t *testing.T) {
	p := NewPyOCD()
	assert.True(t, p.IsReady("0001234:INFO:gdbserver:GDB server started on port 50000"))
	assert.True(t, p.IsReady("INFO:gdbserver:GDB server started at port 3333"))
	assert.True(t, p.IsError("0000423:CRITICAL:__main__:No connected debug probes"))
	assert.False(t, p.IsError("0000423:INFO:board:Target type is nrf52840"))
}

// TestProgressCounter verifies the estimate counts markers and is capped at 100.
func TestProgressCounter(t *testing.T) {
	var got []types.Progress
	p := newProgressCounter('=', 10, func(pr types.Progress) { got = append(got, pr) })

	p.Feed([]byte("[==="))
	p.Feed([]byte("no markers"))
	p.Feed([]byte("==]"))
	assert.Equal(t, 50.0, p.Percent())

	p.Feed([]byte("=========="))
	assert.Equal(t, 100.0, p.Percent())

	p.Feed([]byte("="))
	require.Len(t, got, 3, "no event when the capped percentage does not change")
	assert.Equal(t, types.Progress{Percent: 30, Message: "Flashing"}, got[0])
	assert.Equal(t, 100.0, got[2].Percent)

	p.Reset()
	assert.Zero(t, p.Percent())
}

type scriptFlavor struct {
	script  string
	cleaned atomic.Bool
}

func (f *scriptFlavor) Name() string                { return "script" }
func (f *scriptFlavor) DefaultCommand() string      { return "sh" }
func (f *scriptFlavor) IsReady(line string) bool    { return line == "ready" }
func (f *scriptFlavor) IsError(line string) bool    { return strings.HasPrefix(line, "Error:") }
func (f *scriptFlavor) ProgressMarker() (byte, int) { return '=', 10 }

func (f *scriptFlavor) Cleanup() error {
	f.cleaned.Store(true)
	return nil
}

func (f *scriptFlavor) Args(LaunchOptions, int, int) ([]string, error) {
	return []string{"-c", f.script}, nil
}

type busyProber map[int]bool

func (b busyProber) InUse(_ context.Context, port int) bool { return b[port] }

// TestServer_Launch verifies ports are chosen, the server becomes ready and progress is reported.
func TestServer_Launch(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	var mu sync.Mutex
	var lines []string
	flavor := &scriptFlavor{script: "echo booting; echo ready; printf '====='; sleep 10"}
	scanner := ports.NewScanner(busyProber{50000: true}, logr.Discard())
	s := New(flavor, scanner, logr.Discard(), Options{
		LaunchTimeout: 5 * time.Second,
		OnOutput: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
		},
	})

	port, err := s.Launch(context.Background(), LaunchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 50001, port)
	assert.Equal(t, 50001, s.GdbPort())
	assert.Equal(t, 4444, s.TelnetPort())

	assert.Eventually(t, func() bool { return s.progress.Percent() == 50 }, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"booting", "ready"}, lines)
	mu.Unlock()

	require.NoError(t, s.Stop(2*time.Second))
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}
	assert.Eventually(t, func() bool { return flavor.cleaned.Load() }, time.Second, 10*time.Millisecond)
}

// TestServer_NoFreePort verifies launch fails when the GDB range is occupied.
func TestServer_NoFreePort(t *testing.T) {
	busy := busyProber{}
	for p := 50000; p < 50003; p++ {
		busy[p] = true
	}
	s := New(&scriptFlavor{}, ports.NewScanner(busy, logr.Discard()), logr.Discard(), Options{PortRange: 3})

	_, err := s.Launch(context.Background(), LaunchOptions{})
	require.Error(t, err)
	assert.True(t, dbgerrors.HasCode(err, dbgerrors.CodeNoFreePort))
	assert.NoError(t, s.Kill())
}

// TestServer_LaunchError verifies a fatal server line fails launch with that line and cleans up.
func TestServer_LaunchError(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	flavor := &scriptFlavor{script: "echo 'Error: open failed'; sleep 10"}
	s := New(flavor, ports.NewScanner(busyProber{}, logr.Discard()), logr.Discard(), Options{LaunchTimeout: 5 * time.Second})

	_, err := s.Launch(context.Background(), LaunchOptions{})
	require.Error(t, err)
	assert.Equal(t, "Error: open failed", err.Error())
	assert.True(t, flavor.cleaned.Load())
}
