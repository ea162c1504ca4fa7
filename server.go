package netlib

import (
	"net"

	"github.com/Zereker/netlib/internal/netpoll"
)

// Server accepts TCP connections on one address and multiplexes them on a Reactor.
// The read API is promoted from the embedded Reactor.
type Server struct {
	*Reactor
	addr *net.TCPAddr
}

// Listen binds addr ("host:port") and returns a Server ready to Serve. Setup failures
// are reported as *SetupError.
func Listen(addr string, opt ...Option) (*Server, error) {
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

	fd, err := netpoll.Listen(tcpAddr, opts.backlog)
	if err != nil {
		return nil, &SetupError{Op: "listen", Addr: addr, Err: err}
	}

	bound, err := netpoll.LocalAddr(fd)
	if err != nil {
		_ = netpoll.Close(fd)
		return nil, &SetupError{Op: "getsockname", Addr: addr, Err: err}
	}

	poller, err := netpoll.OpenPoller()
	if err != nil {
		_ = netpoll.Close(fd)
		return nil, &SetupError{Op: "poller", Addr: addr, Err: err}
	}

	if err = poller.Register(fd); err != nil {
		_ = poller.Close()
		_ = netpoll.Close(fd)
		return nil, &SetupError{Op: "register", Addr: addr, Err: err}
	}

	opts.logger.Info("server listening", "addr", bound)

	return &Server{
		Reactor: newReactor(opts, poller, fd),
		addr:    bound,
	}, nil
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.addr
}
