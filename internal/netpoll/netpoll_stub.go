//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package netpoll

import (
	"context"
	"net"
	"time"
)

// Poller is unavailable on this platform.
type Poller struct{}

func OpenPoller() (*Poller, error)                          { return nil, ErrUnsupported }
func (p *Poller) Register(int) error                        { return ErrUnsupported }
func (p *Poller) Deregister(int) error                      { return ErrUnsupported }
func (p *Poller) Poll(time.Duration) ([]int, error)         { return nil, ErrUnsupported }
func (p *Poller) Wakeup() error                             { return ErrUnsupported }
func (p *Poller) Close() error                              { return ErrUnsupported }
func Listen(*net.TCPAddr, int) (int, error)                 { return -1, ErrUnsupported }
func Accept(int) (int, *net.TCPAddr, error)                 { return -1, nil, ErrUnsupported }
func Connect(context.Context, *net.TCPAddr) (int, error)    { return -1, ErrUnsupported }
func LocalAddr(int) (*net.TCPAddr, error)                   { return nil, ErrUnsupported }
func RemoteAddr(int) (*net.TCPAddr, error)                  { return nil, ErrUnsupported }
func Read(int, []byte) (int, error)                         { return 0, ErrUnsupported }
func Write(int, []byte, time.Duration) (int, error)         { return 0, ErrUnsupported }
func Available(int) int                                     { return 0 }
func Close(int) error                                       { return ErrUnsupported }
func Temporary(error) bool                                  { return false }
