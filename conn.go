// Package netlib multiplexes many TCP connections on one readiness facility and hands
// the received bytes to consumer goroutines through watermark-gated reads, length
// prefixed frames, or fixed-shape wire records.
package netlib

import (
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/pkg/errors"

	"github.com/Zereker/netlib/internal/netpoll"
)

// ConnID identifies a connection within its reactor. It is the connection's
// descriptor, so an id may be reused after the connection is gone.
type ConnID int

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	// StateConnecting is a connection whose handshake has not completed.
	StateConnecting ConnState = iota
	// StateOpen is a connection the reactor is reading from.
	StateOpen
	// StateDraining is a connection paused by backpressure until consumers drain it.
	StateDraining
	// StateDisconnected is a connection that has left the table.
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Target is a read watermark. A connection with a target is readable only once it
// holds at least Size bytes. A target that is not Permanent is cleared the first time
// it is satisfied.
type Target struct {
	Size      int
	Permanent bool
}

// conn is one table entry. The buffer carries its own lock.
type conn struct {
	id     ConnID
	fd     int
	remote net.Addr
	buf    *Buffer

	// guarded by table.mu
	state  ConnState
	target Target
	paused bool
	frames *queue.Queue // nil on stream reactors
	queued int          // bytes held in frames

	// wmu serializes writers and the final close, so a write never reaches a
	// descriptor number that has been reused.
	wmu    sync.Mutex
	closed bool

	// reactor goroutine only
	cause        error
	deregistered bool
}

func newConn(fd int, remote net.Addr, opts *options) *conn {
	c := &conn{
		id:     ConnID(fd),
		fd:     fd,
		remote: remote,
		buf:    NewBuffer(opts.maxMessageSize, opts.allocCeiling),
		state:  StateConnecting,
		target: opts.defaultTarget,
	}
	if opts.framing.Framed() {
		c.frames = queue.New()
	}
	return c
}

// unread is the number of received bytes no consumer has taken yet.
func (c *conn) unread() int {
	return c.buf.Len() + c.queued
}

// backlog is what counts toward the buffer limit. A framed connection counts only its
// assembled frames: a partial frame cannot shrink until the rest of it is read.
func (c *conn) backlog() int {
	if c.frames != nil {
		return c.queued
	}
	return c.buf.Len()
}

// push queues frames for CheckPackets.
func (c *conn) push(frames []Frame) {
	for _, f := range frames {
		c.frames.Add(f)
		c.queued += len(f.data)
	}
}

// drain empties the frame queue.
func (c *conn) drain() []Frame {
	if c.frames == nil || c.frames.Length() == 0 {
		return nil
	}
	out := make([]Frame, 0, c.frames.Length())
	for c.frames.Length() > 0 {
		out = append(out, c.frames.Remove().(Frame))
	}
	c.queued = 0
	return out
}

// write sends all of p or fails.
func (c *conn) write(p []byte, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if _, err := netpoll.Write(c.fd, p, timeout); err != nil {
		return errors.Wrapf(err, "write conn %d", c.id)
	}
	return nil
}

// tryClose closes the descriptor unless a writer is in flight.
func (c *conn) tryClose() bool {
	if !c.wmu.TryLock() {
		return false
	}
	defer c.wmu.Unlock()

	c.close()
	return true
}

// forceClose waits for any writer to finish, then closes the descriptor.
func (c *conn) forceClose() {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.close()
}

func (c *conn) close() {
	if c.closed {
		return
	}
	c.closed = true
	_ = netpoll.Close(c.fd)
}
