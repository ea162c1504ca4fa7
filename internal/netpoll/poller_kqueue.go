//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Poller is a kqueue instance plus a wakeup pipe.
type Poller struct {
	fd     int
	wake   *waker
	events []unix.Kevent_t
	ready  []int
}

// OpenPoller creates the kqueue and registers the wakeup pipe in it.
func OpenPoller() (*Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(fd)

	wake, err := newWaker()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	p := &Poller{
		fd:     fd,
		wake:   wake,
		events: make([]unix.Kevent_t, maxEvents),
		ready:  make([]int, 0, maxEvents),
	}
	if err = p.Register(wake.r); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Poller) change(fd, flags int) error {
	changes := make([]unix.Kevent_t, 1)
	unix.SetKevent(&changes[0], fd, unix.EVFILT_READ, flags)
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

// Register adds a read filter for fd.
func (p *Poller) Register(fd int) error {
	return os.NewSyscallError("kevent add", p.change(fd, unix.EV_ADD|unix.EV_ENABLE))
}

// Deregister deletes the read filter for fd.
func (p *Poller) Deregister(fd int) error {
	return os.NewSyscallError("kevent delete", p.change(fd, unix.EV_DELETE))
}

// Poll waits up to timeout for readiness and returns the ready descriptors. A negative
// timeout blocks until an event or a Wakeup. The returned slice is reused by the next
// call.
func (p *Poller) Poll(timeout time.Duration) ([]int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}

	n, err := unix.Kevent(p.fd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("kevent wait", err)
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Ident)
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

// Close releases the kqueue and the wakeup pipe.
func (p *Poller) Close() error {
	if !p.wake.close() {
		return nil
	}
	return os.NewSyscallError("close", unix.Close(p.fd))
}
