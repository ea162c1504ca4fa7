//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package netpoll

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackPair(t *testing.T) (listener, server, client int) {
	t.Helper()

	listener, err := Listen(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}, 10)
	require.NoError(t, err)
	t.Cleanup(func() { Close(listener) })

	addr, err := LocalAddr(listener)
	require.NoError(t, err)
	require.NotZero(t, addr.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err = Connect(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { Close(client) })

	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Register(listener))

	fds, err := p.Poll(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, []int{listener}, fds)

	server, remote, err := Accept(listener)
	require.NoError(t, err)
	t.Cleanup(func() { Close(server) })

	local, err := LocalAddr(client)
	require.NoError(t, err)
	assert.Equal(t, local.Port, remote.Port)
	return listener, server, client
}

func TestReadWrite(t *testing.T) {
	_, server, client := loopbackPair(t)

	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Register(server))

	n, err := Write(client, []byte("hello"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	fds, err := p.Poll(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, []int{server}, fds)
	assert.Equal(t, 5, Available(server))

	buf := make([]byte, 3)
	n, err = Read(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "hel", string(buf[:n]))
	assert.Equal(t, 2, Available(server))

	n, err = Read(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(buf[:n]))

	_, err = Read(server, buf)
	assert.True(t, Temporary(err))
}

func TestPeerCloseReadsZero(t *testing.T) {
	_, server, client := loopbackPair(t)

	require.NoError(t, Close(client))

	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Register(server))

	fds, err := p.Poll(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, []int{server}, fds)

	n, err := Read(server, make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPollerWakeup(t *testing.T) {
	p, err := OpenPoller()
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Wakeup()
	}()

	start := time.Now()
	fds, err := p.Poll(5 * time.Second)
	require.NoError(t, err)
	assert.Empty(t, fds)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Wakeup(), ErrClosed)
	assert.NoError(t, p.Close())
}

func TestPollerDeregister(t *testing.T) {
	_, server, client := loopbackPair(t)

	p, err := OpenPoller()
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Register(server))
	require.NoError(t, p.Deregister(server))

	_, err = Write(client, []byte("x"), time.Second)
	require.NoError(t, err)

	fds, err := p.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, fds)
}

func TestNotIPv4(t *testing.T) {
	_, err := Listen(&net.TCPAddr{IP: net.ParseIP("::1")}, 10)
	assert.ErrorIs(t, err, ErrNotIPv4)
}

func TestAvailable(t *testing.T) {
	_, server, client := loopbackPair(t)
	assert.Zero(t, Available(server))

	_, err := Write(client, []byte("0123456789"), time.Second)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for Available(server) < 10 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 10, Available(server))

	_, err = Read(server, make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 6, Available(server))

	assert.Zero(t, Available(-1))
}
