package ports

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	busy   map[int]bool
	probed []int
}

func (f *fakeProber) InUse(_ context.Context, port int) bool {
	f.probed = append(f.probed, port)
	return f.busy[port]
}

// TestFindFreePort_SkipsOwnedPorts verifies the first unowned port in the range is returned.
func TestFindFreePort_SkipsOwnedPorts(t *testing.T) {
	prober := &fakeProber{busy: map[int]bool{50000: true, 50001: true}}
	s := NewScanner(prober, logr.Discard())

	port, ok, err := s.FindFreePort(context.Background(), DefaultGdbStart, DefaultLength)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50002, port)
	assert.Equal(t, []int{50000, 50001, 50002}, prober.probed)
}

// TestFindFreePort_RangeExhausted verifies none is reported when every port is owned,
// and that no port outside the range is probed.
func TestFindFreePort_RangeExhausted(t *testing.T) {
	busy := map[int]bool{}
	for p := 4444; p < 4444+200; p++ {
		busy[p] = true
	}
	prober := &fakeProber{busy: busy}
	s := NewScanner(prober, logr.Discard())

	port, ok, err := s.FindFreePort(context.Background(), DefaultTelnetStart, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, port)
	require.Len(t, prober.probed, 10)
	for _, p := range prober.probed {
		assert.GreaterOrEqual(t, p, 4444)
		assert.Less(t, p, 4454)
	}
}

// TestFindFreePort_NeverReturnsOwnedPort verifies the result is always inside the range and unowned.
func TestFindFreePort_NeverReturnsOwnedPort(t *testing.T) {
	for skip := 0; skip <= 5; skip++ {
		busy := map[int]bool{}
		for i := 0; i < skip; i++ {
			busy[6000+i] = true
		}
		s := NewScanner(&fakeProber{busy: busy}, logr.Discard())

		port, ok, err := s.FindFreePort(context.Background(), 6000, 5)
		require.NoError(t, err)
		if skip == 5 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		assert.False(t, busy[port])
		assert.GreaterOrEqual(t, port, 6000)
		assert.Less(t, port, 6005)
	}
}

// TestFindFreePort_InvalidArguments verifies bad ranges are rejected.
func TestFindFreePort_InvalidArguments(t *testing.T) {
	s := NewScanner(&fakeProber{}, logr.Discard())

	_, _, err := s.FindFreePort(context.Background(), 0, 10)
	assert.Error(t, err)

	_, _, err = s.FindFreePort(context.Background(), 5000, 0)
	assert.Error(t, err)
}

// TestFindFreePort_Cancelled verifies a cancelled context stops the scan.
func TestFindFreePort_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner(&fakeProber{}, logr.Discard())
	_, ok, err := s.FindFreePort(ctx, 5000, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

// TestBindProber verifies a port with a live listener is reported in use.
func TestBindProber(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port
	assert.True(t, BindProber{}.InUse(context.Background(), port))

	s := NewScanner(nil, logr.Discard())
	free, ok, err := s.FindFreePort(context.Background(), port, 20)
	require.NoError(t, err)
	require.True(t, ok, "expected a free port after "+strconv.Itoa(port))
	assert.NotEqual(t, port, free)
}

// TestParsePIDList verifies lsof -t output parsing.
func TestParsePIDList(t *testing.T) {
	assert.Equal(t, []int{1234, 5678}, parsePIDList("1234\n5678\n"))
	assert.Empty(t, parsePIDList(""))
	assert.Empty(t, parsePIDList("lsof: WARNING\n"))
}

// TestParseNetstat verifies only LISTENING sockets on the exact port are matched.
func TestParseNetstat(t *testing.T) {
	out := `
Active Connections

  Proto  Local Address          Foreign Address        State           PID
  TCP    0.0.0.0:135            0.0.0.0:0              LISTENING       1044
  TCP    127.0.0.1:50000        0.0.0.0:0              LISTENING       7312
  TCP    127.0.0.1:50000        127.0.0.1:61234        ESTABLISHED     7312
  TCP    127.0.0.1:150000       0.0.0.0:0              LISTENING       99
  TCP    [::]:50000             [::]:0                 LISTENING       7312
`
	assert.Equal(t, []int{7312, 7312}, parseNetstat(out, 50000))
	assert.Empty(t, parseNetstat(out, 4444))
}
