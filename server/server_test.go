package server

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/tcpcore/acceptor"
	"github.com/cyberinferno/tcpcore/config"
	"github.com/cyberinferno/tcpcore/logger"
)

// dialLoopback connects to the server's bound port over loopback; the
// server itself binds all interfaces.
func dialLoopback(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	port := srv.Addr().(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func testConfig(maxOps uint64) *config.Config {
	return &config.Config{
		Mode:    config.ModeServer,
		Address: "127.0.0.1",
		Port:    0, // ephemeral
		MaxOps:  maxOps,
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := New(testConfig(0), logger.Nop())
	require.NoError(t, srv.Start())
	require.NotNil(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err, "cancellation is a clean shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestServer_BindFailureIsFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	cfg := &config.Config{Mode: config.ModeServer, Address: "127.0.0.1", Port: uint16(port)}

	srv := New(cfg, logger.Nop())
	assert.ErrorIs(t, srv.Start(), acceptor.ErrBind)
}

func TestServer_acceptsAndReads(t *testing.T) {
	srv := New(testConfig(0), logger.Nop())
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	conn := dialLoopback(t, srv)

	_, err := conn.Write([]byte("payload"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, ok := srv.Driver().Session(1)
		return ok && s.HasMessages()
	}, 2*time.Second, 5*time.Millisecond)

	s, _ := srv.Driver().Session(1)
	msg, ok := s.NextMessage()
	require.True(t, ok)
	assert.Equal(t, "payload", string(msg))

	cancel()
	require.NoError(t, <-runDone)
}

func TestServer_maxOpsBudget(t *testing.T) {
	srv := New(testConfig(1), logger.Nop())
	require.NoError(t, srv.Start())

	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(context.Background()) }()

	dialLoopback(t, srv)

	select {
	case err := <-runDone:
		assert.NoError(t, err, "operation budget exhaustion is a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop at the operation budget")
	}
	assert.Equal(t, uint64(1), srv.Driver().Ops())
}
