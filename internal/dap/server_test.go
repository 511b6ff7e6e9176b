package dap

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdbserver-dap/internal/config"
	"github.com/ctagard/gdbserver-dap/pkg/types"
)

func TestServer_Serve(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(config.DefaultConfig(), Backend{}, logr.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, listener) }()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, dap.WriteProtocolMessage(conn, &dap.InitializeRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"}, Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{AdapterID: "gdbserver"},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	msg, err := dap.ReadProtocolMessage(bufio.NewReader(conn))
	require.NoError(t, err)
	resp, ok := msg.(*dap.InitializeResponse)
	require.True(t, ok, "got %T", msg)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.RequestSeq)

	sessions := srv.Sessions().ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, types.StateNotStarted, sessions[0].State)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Empty(t, srv.Sessions().ListSessions())
}

func TestSessionManager_GetSession(t *testing.T) {
	sm := NewSessionManager()
	_, err := sm.GetSession("missing")
	assert.Error(t, err)
}
