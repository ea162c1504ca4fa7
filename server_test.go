//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package netlib

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a loopback server until the test ends. Accepted ids arrive on the
// returned channel.
func startServer(t *testing.T, opt ...Option) (*Server, <-chan ConnID) {
	t.Helper()

	accepted := make(chan ConnID, 16)
	opt = append([]Option{
		PollTimeoutOption(50 * time.Millisecond),
		OnConnectOption(func(id ConnID, _ net.Addr) { accepted <- id }),
	}, opt...)

	s, err := Listen("127.0.0.1:0", opt...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return")
		}
	})
	return s, accepted
}

func dialServer(t *testing.T, s *Server, accepted <-chan ConnID) (net.Conn, ConnID) {
	t.Helper()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case id := <-accepted:
		return conn, id
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for accept")
		return nil, 0
	}
}

func TestListen(t *testing.T) {
	s, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer s.Close()

	addr, ok := s.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.NotZero(t, addr.Port)
	assert.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))
}

func TestListen_InvalidAddr(t *testing.T) {
	_, err := Listen("127.0.0.1:notaport")

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "resolve", setupErr.Op)
	assert.Contains(t, setupErr.Error(), "127.0.0.1:notaport")
}

func TestListen_AddrInUse(t *testing.T) {
	first, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer first.Close()

	_, err = Listen(first.Addr().String())

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "listen", setupErr.Op)
}

func TestListen_InvalidOptions(t *testing.T) {
	_, err := Listen("127.0.0.1:0", FramingOption(LengthPrefixed(3)))
	assert.True(t, errors.Is(err, ErrInvalidFraming))
}

func TestServer_ReceiveDataEnsured(t *testing.T) {
	s, accepted := startServer(t)
	conn, id := dialServer(t, s, accepted)

	go func() {
		conn.Write([]byte("hello "))
		time.Sleep(30 * time.Millisecond)
		conn.Write([]byte("world"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := s.ReceiveDataEnsured(ctx, id, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), p)
}

func TestServer_EchoLines(t *testing.T) {
	s, accepted := startServer(t)
	conn, id := dialServer(t, s, accepted)

	_, err := conn.Write([]byte("ping\r\npong\r\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lines []string
	for len(lines) < 2 {
		require.NoError(t, s.WaitReadableConn(ctx, id))
		for {
			line, ok := s.GetLine(id)
			if !ok {
				break
			}
			lines = append(lines, string(line))
			require.NoError(t, s.Send(id, line))
		}
	}
	assert.Equal(t, []string{"ping\r\n", "pong\r\n"}, lines)

	echo := make([]byte, 12)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, echo)
	require.NoError(t, err)
	assert.Equal(t, "ping\r\npong\r\n", string(echo))
}

func TestServer_MultipleConnections(t *testing.T) {
	s, accepted := startServer(t)

	const numConns = 5
	conns := make([]net.Conn, numConns)
	ids := make([]ConnID, numConns)
	for i := range conns {
		conns[i], ids[i] = dialServer(t, s, accepted)
	}
	assert.Len(t, s.Conns(), numConns)

	for i, conn := range conns {
		_, err := conn.Write([]byte{byte(i)})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i, id := range ids {
		p, err := s.ReceiveDataEnsured(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, p)
	}
}

func TestServer_PeerDisconnect(t *testing.T) {
	var (
		mu    sync.Mutex
		cause error
	)
	gone := make(chan ConnID, 1)
	s, accepted := startServer(t, OnDisconnectOption(func(id ConnID, err error) {
		mu.Lock()
		cause = err
		mu.Unlock()
		gone <- id
	}))
	conn, id := dialServer(t, s, accepted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	waitErr := make(chan error, 1)
	go func() {
		_, err := s.ReceiveDataEnsured(ctx, id, 100)
		waitErr <- err
	}()

	require.NoError(t, conn.Close())

	select {
	case got := <-gone:
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for disconnect")
	}
	assert.True(t, errors.Is(<-waitErr, ErrConnectionClosed))
	assert.Equal(t, StateDisconnected, s.State(id))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, errors.Is(cause, io.EOF))
}

func TestServer_Disconnect(t *testing.T) {
	s, accepted := startServer(t)
	conn, id := dialServer(t, s, accepted)

	require.NoError(t, s.Disconnect(id))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := conn.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
}

func TestServer_LengthPrefixedSplit(t *testing.T) {
	s, accepted := startServer(t, FramingOption(LengthPrefixed(2)))
	conn, id := dialServer(t, s, accepted)

	_, err := conn.Write([]byte{0, 5, 'h'})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.CheckPackets())

	_, err = conn.Write([]byte{'e', 'l', 'l', 'o'})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids, err := s.WaitReadable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ConnID{id}, ids)

	packets := s.CheckPackets()
	require.Len(t, packets[id], 1)
	assert.Equal(t, []byte{0, 5, 'h', 'e', 'l', 'l', 'o'}, packets[id][0].Bytes())

	require.NoError(t, s.SendFrame(id, Payload("ok")))
	reply := make([]byte, 4)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 2, 'o', 'k'}, reply)
}

func TestServer_LargeWriteSplitAcrossReads(t *testing.T) {
	s, accepted := startServer(t, MessageMaxSize(4), ReadBufferSizeOption(64))
	conn, id := dialServer(t, s, accepted)

	_, err := conn.Write([]byte("far too long"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := s.ReceiveDataEnsured(ctx, id, 12)
	require.NoError(t, err)
	assert.Equal(t, []byte("far too long"), p)
	assert.Equal(t, StateOpen, s.State(id))
}

func TestServer_ServeContextCanceled(t *testing.T) {
	s, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestServer_Close(t *testing.T) {
	s, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after Close")
	}

	// The accepted connection was closed with the reactor.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
}
