//go:build linux

package netpoll

import "golang.org/x/sys/unix"

// ioctlInq asks for the number of unread bytes in a socket's receive queue.
const ioctlInq = unix.SIOCINQ
