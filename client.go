package netlib

import (
	"context"
	"net"

	"github.com/Zereker/netlib/internal/netpoll"
)

// Client is one outgoing TCP connection driven by its own Reactor. The read API is
// promoted from the embedded Reactor and takes the id returned by ID.
type Client struct {
	*Reactor
	id ConnID
}

// Dial connects to addr ("host:port"). ctx bounds the handshake. Setup failures are
// reported as *SetupError.
func Dial(ctx context.Context, addr string, opt ...Option) (*Client, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, &SetupError{Op: "resolve", Addr: addr, Err: err}
	}

	fd, err := netpoll.Connect(ctx, tcpAddr)
	if err != nil {
		return nil, &SetupError{Op: "connect", Addr: addr, Err: err}
	}

	poller, err := netpoll.OpenPoller()
	if err != nil {
		_ = netpoll.Close(fd)
		return nil, &SetupError{Op: "poller", Addr: addr, Err: err}
	}

	r := newReactor(opts, poller, -1)
	if err = r.attach(fd, tcpAddr); err != nil {
		_ = poller.Close()
		_ = netpoll.Close(fd)
		return nil, &SetupError{Op: "register", Addr: addr, Err: err}
	}

	opts.logger.Info("client connected", "conn", fd, "addr", tcpAddr)

	return &Client{Reactor: r, id: ConnID(fd)}, nil
}

// ID returns the id of the client's connection.
func (c *Client) ID() ConnID {
	return c.id
}

// Write sends p to the peer. It implements io.Writer.
func (c *Client) Write(p []byte) (int, error) {
	if err := c.Send(c.id, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteRecord encodes v in wire format and sends it to the peer.
func (c *Client) WriteRecord(v any) error {
	return c.SendRecord(c.id, v)
}

// WriteFrame sends m behind a length header. The client must be framed.
func (c *Client) WriteFrame(m Message) error {
	return c.SendFrame(c.id, m)
}

// Disconnect closes the client's connection; the reactor keeps running until Close.
func (c *Client) Disconnect() error {
	return c.Reactor.Disconnect(c.id)
}
