// Package netpoll wraps the OS readiness facility (epoll on Linux, kqueue on the BSDs
// and Darwin) and the handful of raw socket calls the reactor needs: listen, accept,
// connect, read, write and the FIONREAD probe.
//
// Descriptors handed out by this package are non-blocking and close-on-exec. Sockets are
// TCP over IPv4 only.
package netpoll

import "errors"

// ErrUnsupported is returned on platforms without epoll or kqueue.
var ErrUnsupported = errors.New("netpoll: platform not supported")

// ErrClosed is returned by Wakeup once the Poller is closed.
var ErrClosed = errors.New("netpoll: poller closed")

// ErrNotIPv4 is returned for addresses that have no IPv4 form.
var ErrNotIPv4 = errors.New("netpoll: address is not IPv4")

// maxEvents bounds how many ready descriptors one Poll call reports.
const maxEvents = 1024
