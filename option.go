package netlib

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and keeps the connection.
	Continue
)

// Default configuration values.
const (
	// defaultReadBufferSize is the size of the reactor's scratch read buffer.
	defaultReadBufferSize = 1024
	// defaultMaxMessageSize caps a single append into a connection buffer.
	defaultMaxMessageSize = 8192
	// defaultPollTimeout bounds one wait on the readiness facility.
	defaultPollTimeout = 500 * time.Millisecond
	// defaultBacklog is the listen backlog.
	defaultBacklog = 10
	// defaultWriteTimeout bounds a write on a full socket.
	defaultWriteTimeout = 5 * time.Second
)

// options holds the configuration for a reactor.
type options struct {
	logger Logger

	// onError decides what happens to a connection whose write failed.
	onError      func(error) ErrorAction
	onConnect    func(ConnID, net.Addr)
	onDisconnect func(ConnID, error)

	readBufferSize int           // bytes read per readiness event
	maxMessageSize int           // largest single append
	allocCeiling   int           // largest buffer allocation
	bufferLimit    int           // backpressure threshold, 0 disables
	defaultTarget  Target        // watermark installed on every new connection
	framing        Framing       // stream or length-prefixed
	pollTimeout    time.Duration // longest single poll
	backlog        int           // listen backlog
	writeTimeout   time.Duration // longest wait on a full socket
}

// Option is a function that configures reactor options.
type Option func(*options)

// checkOptions validates and sets default values for reactor options.
func checkOptions(opts *options) error {
	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}

	if opts.readBufferSize > opts.maxMessageSize {
		opts.readBufferSize = opts.maxMessageSize
	}

	if opts.allocCeiling <= 0 {
		opts.allocCeiling = defaultAllocCeiling
	}

	if opts.bufferLimit < 0 {
		opts.bufferLimit = 0
	}

	if opts.pollTimeout <= 0 {
		opts.pollTimeout = defaultPollTimeout
	}

	if opts.backlog <= 0 {
		opts.backlog = defaultBacklog
	}

	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}

	if err := opts.framing.validate(); err != nil {
		return err
	}

	if opts.defaultTarget.Size < 0 {
		return errors.Wrapf(ErrInvalidTarget, "default target %d", opts.defaultTarget.Size)
	}

	if opts.defaultTarget.Size > 0 && opts.framing.Framed() {
		return errors.Wrap(ErrFramingMismatch, "default target on a framed reactor")
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// targetLimit is the largest watermark that can ever be satisfied.
func (o *options) targetLimit() int {
	if o.bufferLimit > 0 {
		return o.bufferLimit
	}
	return o.allocCeiling - 1
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a write fails. Return Disconnect to close the
// connection, or Continue to keep it.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnConnectOption returns an Option that sets the callback fired on the reactor
// goroutine for every accepted connection.
func OnConnectOption(cb func(id ConnID, remote net.Addr)) Option {
	return func(o *options) {
		o.onConnect = cb
	}
}

// OnDisconnectOption returns an Option that sets the callback fired on the reactor
// goroutine once a connection has left the table. cause is nil for a disconnect
// requested through Disconnect.
func OnDisconnectOption(cb func(id ConnID, cause error)) Option {
	return func(o *options) {
		o.onDisconnect = cb
	}
}

// ReadBufferSizeOption returns an Option that sets how many bytes the reactor reads
// per readiness event.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MessageMaxSize returns an Option that sets the largest chunk a connection buffer
// accepts in one append.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// BufferCeilingOption returns an Option that bounds a single connection buffer
// allocation. Growing past it disconnects the connection with ErrBufferGrowthFailed.
func BufferCeilingOption(size int) Option {
	return func(o *options) {
		o.allocCeiling = size
	}
}

// BufferLimitOption returns an Option that enables backpressure: a connection holding
// size or more unread bytes stops being read until a consumer drains it.
func BufferLimitOption(size int) Option {
	return func(o *options) {
		o.bufferLimit = size
	}
}

// DefaultTargetOption returns an Option that installs a watermark on every new
// connection.
func DefaultTargetOption(size int, permanent bool) Option {
	return func(o *options) {
		o.defaultTarget = Target{Size: size, Permanent: permanent}
	}
}

// FramingOption returns an Option that selects how received bytes are handed out.
func FramingOption(f Framing) Option {
	return func(o *options) {
		o.framing = f
	}
}

// PollTimeoutOption returns an Option that bounds a single wait on the readiness
// facility.
func PollTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.pollTimeout = d
	}
}

// BacklogOption returns an Option that sets the listen backlog.
func BacklogOption(n int) Option {
	return func(o *options) {
		o.backlog = n
	}
}

// WriteTimeoutOption returns an Option that bounds how long a send waits for a full
// socket to drain.
func WriteTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}
