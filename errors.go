package netlib

import (
	"errors"
	"fmt"
)

// Errors returned by the read and write surface.
var (
	// ErrConnectionClosed is returned for an id that is not (or no longer) in the table.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNotReadable is returned by non-blocking reads when the connection has nothing
	// to hand out yet.
	ErrNotReadable = errors.New("connection not readable")
	// ErrInvalidTarget is returned for a watermark that can never be satisfied.
	ErrInvalidTarget = errors.New("invalid read target")
	// ErrFramingMismatch is returned when a byte-stream call is made on a framed
	// reactor, or a frame call on a stream reactor.
	ErrFramingMismatch = errors.New("operation does not match framing mode")
	// ErrFrameTooLarge is returned when a frame payload does not fit the header width
	// or the message cap.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrReactorClosed releases waiters once the reactor has shut down.
	ErrReactorClosed = errors.New("reactor closed")
	// ErrPollFailed wraps a failure of the readiness facility; it ends Serve.
	ErrPollFailed = errors.New("poll failed")
	// ErrInvalidFraming is returned for a length-prefixed framing with an unsupported
	// header width.
	ErrInvalidFraming = errors.New("invalid framing header width")
)

// Errors raised at the buffer boundary.
var (
	// ErrOversizeMessage is returned when a single append exceeds the message cap.
	ErrOversizeMessage = errors.New("message exceeds size cap")
	// ErrBufferGrowthFailed is returned when a buffer would have to grow past its
	// allocation ceiling.
	ErrBufferGrowthFailed = errors.New("buffer growth failed")
)

// SetupError reports a failure while opening a server or client.
type SetupError struct {
	Op   string
	Addr string
	Err  error
}

func (e *SetupError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("netlib: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("netlib: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
