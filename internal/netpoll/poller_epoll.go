//go:build linux

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Poller is an epoll instance plus a wakeup pipe.
type Poller struct {
	fd     int
	wake   *waker
	events []unix.EpollEvent
	ready  []int
}

// OpenPoller creates the epoll instance and registers the wakeup pipe in it.
func OpenPoller() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	wake, err := newWaker()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	p := &Poller{
		fd:     fd,
		wake:   wake,
		events: make([]unix.EpollEvent, maxEvents),
		ready:  make([]int, 0, maxEvents),
	}
	if err = p.Register(wake.r); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Register adds fd to the interest list for read readiness, level-triggered.
func (p *Poller) Register(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev))
}

// Deregister removes fd from the interest list.
func (p *Poller) Deregister(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// Poll waits up to timeout for readiness and returns the ready descriptors. A negative
// timeout blocks until an event or a Wakeup. The returned slice is reused by the next
// call.
func (p *Poller) Poll(timeout time.Duration) ([]int, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.fd, p.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		if fd == p.wake.r {
			p.wake.drain()
			continue
		}
		p.ready = append(p.ready, fd)
	}
	return p.ready, nil
}

// Wakeup interrupts a Poll in progress.
func (p *Poller) Wakeup() error {
	return p.wake.wake()
}

// Close releases the epoll instance and the wakeup pipe.
func (p *Poller) Close() error {
	if !p.wake.close() {
		return nil
	}
	return os.NewSyscallError("close", unix.Close(p.fd))
}
