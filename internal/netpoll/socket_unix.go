//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package netpoll

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// connectPollInterval bounds each wait inside Connect so ctx cancellation is noticed.
const connectPollInterval = 100 * time.Millisecond

func socket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return fd, nil
}

func sockaddr(addr *net.TCPAddr) (*unix.SockaddrInet4, error) {
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if addr.IP == nil || addr.IP.IsUnspecified() {
		return sa, nil
	}
	ip := addr.IP.To4()
	if ip == nil {
		return nil, ErrNotIPv4
	}
	copy(sa.Addr[:], ip)
	return sa, nil
}

func tcpAddr(sa unix.Sockaddr) *net.TCPAddr {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return &net.TCPAddr{IP: net.IPv4(in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3]), Port: in4.Port}
	}
	return nil
}

// Listen binds a non-blocking listening socket to addr.
func Listen(addr *net.TCPAddr, backlog int) (int, error) {
	sa, err := sockaddr(addr)
	if err != nil {
		return -1, err
	}
	fd, err := socket()
	if err != nil {
		return -1, err
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setsockopt", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("bind", err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("listen", err)
	}
	return fd, nil
}

// Accept takes one pending connection off the listening socket. It returns
// unix.EAGAIN when nothing is pending.
func Accept(fd int) (int, *net.TCPAddr, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		if Temporary(err) {
			return -1, nil, err
		}
		return -1, nil, os.NewSyscallError("accept", err)
	}
	unix.CloseOnExec(nfd)
	if err = unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, nil, os.NewSyscallError("setnonblock", err)
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nfd, tcpAddr(sa), nil
}

// Connect opens a connection to addr. The handshake runs non-blocking and is bounded by
// ctx.
func Connect(ctx context.Context, addr *net.TCPAddr) (int, error) {
	sa, err := sockaddr(addr)
	if err != nil {
		return -1, err
	}
	fd, err := socket()
	if err != nil {
		return -1, err
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS && err != unix.EINTR {
		unix.Close(fd)
		return -1, os.NewSyscallError("connect", err)
	}
	if err != nil {
		if err = waitWritable(ctx, fd); err != nil {
			unix.Close(fd)
			return -1, err
		}
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err == nil && soErr != 0 {
			err = unix.Errno(soErr)
		}
		if err != nil {
			unix.Close(fd)
			return -1, os.NewSyscallError("connect", err)
		}
	}

	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, nil
}

func waitWritable(ctx context.Context, fd int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := connectPollInterval
		if deadline, ok := ctx.Deadline(); ok {
			if rem := time.Until(deadline); rem < wait {
				wait = rem
			}
		}
		if wait <= 0 {
			return context.DeadlineExceeded
		}

		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(pfd, int(wait/time.Millisecond)+1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return os.NewSyscallError("poll", err)
		}
		if n > 0 {
			return nil
		}
	}
}

// LocalAddr returns the address fd is bound to.
func LocalAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return tcpAddr(sa), nil
}

// RemoteAddr returns the peer address of fd.
func RemoteAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil, os.NewSyscallError("getpeername", err)
	}
	return tcpAddr(sa), nil
}

// Read performs one read. Errors are returned as raw errno values so callers can test
// them with Temporary.
func Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Write writes all of p, waiting for the socket to drain when it is full. It gives up
// with os.ErrDeadlineExceeded once timeout passes without progress being possible.
func Write(fd int, p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil || err == unix.EINTR:
		case err == unix.EAGAIN:
			rem := time.Until(deadline)
			if rem <= 0 {
				return written, os.ErrDeadlineExceeded
			}
			pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
			if _, err = unix.Poll(pfd, int(rem/time.Millisecond)+1); err != nil && err != unix.EINTR {
				return written, os.NewSyscallError("poll", err)
			}
		default:
			return written, os.NewSyscallError("write", err)
		}
	}
	return written, nil
}

// Available reports how many received bytes are waiting in the kernel for fd.
func Available(fd int) int {
	n, err := unix.IoctlGetInt(fd, ioctlInq)
	if err != nil {
		return 0
	}
	return n
}

// Close closes fd.
func Close(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}

// Temporary reports whether err only means "try again later".
func Temporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EINTR
}

// waker is the self-pipe a Poller watches so Wakeup can interrupt a wait. Its write end
// is never touched after close, so a reused descriptor number is never written to.
type waker struct {
	mu     sync.Mutex
	r, w   int
	closed bool
}

func newWaker() (*waker, error) {
	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, end := range pipe {
		unix.CloseOnExec(end)
		if err := unix.SetNonblock(end, true); err != nil {
			unix.Close(pipe[0])
			unix.Close(pipe[1])
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}
	return &waker{r: pipe[0], w: pipe[1]}, nil
}

func (w *waker) wake() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	_, err := unix.Write(w.w, []byte{1})
	if err != nil && err != unix.EAGAIN {
		return os.NewSyscallError("write", err)
	}
	return nil
}

func (w *waker) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// close reports whether this call closed the pipe.
func (w *waker) close() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	w.closed = true
	unix.Close(w.r)
	unix.Close(w.w)
	return true
}
