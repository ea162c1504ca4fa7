package netlib

import (
	"context"
	"io"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/netlib/internal/netpoll"
)

// Poller is the readiness facility a reactor multiplexes its descriptors on.
type Poller interface {
	// Register starts watching fd for readability.
	Register(fd int) error
	// Deregister stops watching fd.
	Deregister(fd int) error
	// Poll waits up to timeout and returns the ready descriptors. The slice is only
	// valid until the next call.
	Poll(timeout time.Duration) ([]int, error)
	// Wakeup interrupts a pending Poll.
	Wakeup() error
	// Close releases the facility.
	Close() error
}

// Reactor drives the connections of a Server or a Client from a single goroutine and
// serves the read API to any number of consumer goroutines.
type Reactor struct {
	opts   options
	logger Logger
	poller Poller
	table  *table

	listener int // -1 when there is none
	scratch  []byte

	mu      sync.Mutex
	running bool
	closing bool
	pending []*conn // disconnected, descriptor not yet closed

	shutdownOnce sync.Once
}

func newReactor(opts options, poller Poller, listener int) *Reactor {
	return &Reactor{
		opts:     opts,
		logger:   opts.logger,
		poller:   poller,
		table:    newTable(netpoll.Available),
		listener: listener,
		scratch:  make([]byte, opts.readBufferSize),
	}
}

// Serve runs the reactor loop until ctx is canceled, Close is called, or the
// readiness facility fails (ErrPollFailed). Every connection is closed when it returns.
func (r *Reactor) Serve(ctx context.Context) error {
	r.mu.Lock()
	if r.closing || r.running {
		r.mu.Unlock()
		return ErrReactorClosed
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info("reactor started",
		"framing", r.opts.framing.HeaderWidth(),
		"read_buffer_size", r.opts.readBufferSize,
		"max_message_size", r.opts.maxMessageSize,
		"poll_timeout", r.opts.pollTimeout)

	group, child := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	group.Go(func() error {
		defer close(stop)
		return r.loop(child)
	})

	group.Go(func() error {
		select {
		case <-child.Done():
			_ = r.poller.Wakeup()
		case <-stop:
		}
		return nil
	})

	err := group.Wait()
	r.shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("reactor stopped with error", "error", err.Error())
	} else {
		r.logger.Info("reactor stopped")
	}

	return err
}

// Close stops the reactor. When Serve is running it returns as soon as the loop has
// been told to stop; otherwise it releases everything immediately. Safe to call
// multiple times.
func (r *Reactor) Close() error {
	r.mu.Lock()
	r.closing = true
	running := r.running
	r.mu.Unlock()

	if running {
		return r.poller.Wakeup()
	}
	r.shutdown()
	return nil
}

func (r *Reactor) stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closing
}

func (r *Reactor) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.stopping() {
			return nil
		}

		fds, err := r.poller.Poll(r.opts.pollTimeout)
		if err != nil {
			r.logger.Error("poll error", "error", err.Error())
			return errors.Wrapf(ErrPollFailed, "%v", err)
		}

		for _, fd := range fds {
			if fd == r.listener {
				r.accept()
				continue
			}
			r.readConn(ConnID(fd))
		}

		r.reap()
	}
}

func (r *Reactor) accept() {
	fd, remote, err := netpoll.Accept(r.listener)
	if err != nil {
		if !netpoll.Temporary(err) {
			r.logger.Warn("accept error", "error", err.Error())
		}
		return
	}

	var addr net.Addr
	if remote != nil {
		addr = remote
	}
	if err = r.attach(fd, addr); err != nil {
		r.logger.Warn("register error", "remote_addr", addr, "error", err.Error())
		_ = netpoll.Close(fd)
		return
	}

	r.logger.Debug("accepted connection", "conn", fd, "remote_addr", addr)
	if r.opts.onConnect != nil {
		r.opts.onConnect(ConnID(fd), addr)
	}
}

// attach registers fd and inserts a fresh connection for it.
func (r *Reactor) attach(fd int, remote net.Addr) error {
	if err := r.poller.Register(fd); err != nil {
		return err
	}
	r.table.insert(newConn(fd, remote, &r.opts))
	return nil
}

// readConn performs one read for a ready connection.
func (r *Reactor) readConn(id ConnID) {
	c, ok := r.table.lookup(id)
	if !ok {
		return
	}

	n, err := netpoll.Read(c.fd, r.scratch)
	switch {
	case err != nil && netpoll.Temporary(err):
		return
	case err != nil:
		r.disconnect(c, errors.Wrap(err, "read"))
		return
	case n == 0:
		r.disconnect(c, io.EOF)
		return
	}

	r.receive(c, r.scratch[:n])
}

// receive hands a chunk read from c to ingest. A refused chunk disconnects c alone.
func (r *Reactor) receive(c *conn, p []byte) {
	if err := r.ingest(c, p); err != nil {
		r.logger.Warn("receive error", "conn", c.id, "size", len(p), "error", err.Error())
		r.disconnect(c, err)
	}
}

// ingest appends received bytes to c, then updates its frames and readability. Frames
// completed before an assembly error are still queued.
func (r *Reactor) ingest(c *conn, p []byte) error {
	if err := c.buf.Append(p); err != nil {
		return err
	}

	var (
		frames []Frame
		err    error
	)
	if r.opts.framing.Framed() {
		frames, err = r.opts.framing.assemble(c.buf, r.opts.maxMessageSize)
	}

	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	if r.table.conns[c.id] != c {
		return err
	}
	if len(frames) > 0 {
		c.push(frames)
	}
	if r.opts.bufferLimit > 0 && !c.paused && c.backlog() >= r.opts.bufferLimit {
		r.pauseLocked(c)
	}
	r.table.reevaluateLocked(c)
	return err
}

// pauseLocked stops reading c until consumers bring it below the buffer limit.
func (r *Reactor) pauseLocked(c *conn) {
	if err := r.poller.Deregister(c.fd); err != nil {
		r.logger.Warn("pause error", "conn", c.id, "error", err.Error())
		return
	}
	c.paused = true
	c.state = StateDraining
	r.logger.Debug("connection paused", "conn", c.id, "unread", c.unread())
}

func (r *Reactor) resumeLocked(c *conn) {
	if err := r.poller.Register(c.fd); err != nil {
		r.logger.Warn("resume error", "conn", c.id, "error", err.Error())
		return
	}
	c.paused = false
	c.state = StateOpen
	r.logger.Debug("connection resumed", "conn", c.id, "unread", c.unread())
}

// consumedLocked runs after a consumer took bytes or frames from c.
func (r *Reactor) consumedLocked(c *conn) {
	if c.paused && c.backlog() < r.opts.bufferLimit {
		r.resumeLocked(c)
	}
	r.table.reevaluateLocked(c)
}

// disconnect removes c on the reactor goroutine. Lock order is r.mu, then the table.
func (r *Reactor) disconnect(c *conn, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.table.remove(c.id) != c {
		return
	}
	c.cause = cause
	r.pending = append(r.pending, c)
}

// reap deregisters and closes disconnected connections. A descriptor with a writer in
// flight is retried on the next iteration.
func (r *Reactor) reap() {
	r.mu.Lock()
	list := r.pending
	r.pending = nil
	r.mu.Unlock()

	var keep []*conn
	for _, c := range list {
		if !c.deregistered {
			_ = r.poller.Deregister(c.fd)
			c.deregistered = true
			r.notifyDisconnect(c)
		}
		if !c.tryClose() {
			keep = append(keep, c)
		}
	}

	if len(keep) > 0 {
		r.mu.Lock()
		r.pending = append(r.pending, keep...)
		r.mu.Unlock()
	}
}

func (r *Reactor) notifyDisconnect(c *conn) {
	if c.cause != nil && !errors.Is(c.cause, io.EOF) {
		r.logger.Info("connection closed with error", "conn", c.id, "remote_addr", c.remote, "error", c.cause.Error())
	} else {
		r.logger.Info("connection closed", "conn", c.id, "remote_addr", c.remote)
	}
	if r.opts.onDisconnect != nil {
		r.opts.onDisconnect(c.id, c.cause)
	}
}

// shutdown closes every connection, the listener and the readiness facility.
func (r *Reactor) shutdown() {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.closing = true
		list := r.pending
		r.pending = nil
		for _, c := range r.table.close() {
			c.cause = ErrReactorClosed
			list = append(list, c)
		}
		r.mu.Unlock()

		for _, c := range list {
			if !c.deregistered {
				_ = r.poller.Deregister(c.fd)
				c.deregistered = true
				r.notifyDisconnect(c)
			}
			c.forceClose()
		}

		if r.listener >= 0 {
			_ = netpoll.Close(r.listener)
		}
		if err := r.poller.Close(); err != nil {
			r.logger.Debug("poller close error", "error", err.Error())
		}
	})
}

// Disconnect closes the connection id. Waiters on it are released with
// ErrConnectionClosed; the descriptor itself is closed by the reactor goroutine.
func (r *Reactor) Disconnect(id ConnID) error {
	r.mu.Lock()
	c := r.table.remove(id)
	if c == nil {
		r.mu.Unlock()
		return ErrConnectionClosed
	}
	r.pending = append(r.pending, c)
	running := r.running
	r.mu.Unlock()

	if running {
		_ = r.poller.Wakeup()
		return nil
	}
	r.reap()
	return nil
}

// State returns the lifecycle state of id; unknown ids are StateDisconnected.
func (r *Reactor) State(id ConnID) ConnState {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, ok := r.table.conns[id]
	if !ok {
		return StateDisconnected
	}
	return c.state
}

// Conns returns the ids of every connection in the table, sorted.
func (r *Reactor) Conns() []ConnID {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	ids := make([]ConnID, 0, len(r.table.conns))
	for id := range r.table.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RemoteAddr returns the peer address of id, or nil.
func (r *Reactor) RemoteAddr(id ConnID) net.Addr {
	c, ok := r.table.lookup(id)
	if !ok {
		return nil
	}
	return c.remote
}
