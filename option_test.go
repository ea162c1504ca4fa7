package netlib

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestReadBufferSizeOption(t *testing.T) {
	opt := ReadBufferSizeOption(100)

	var opts options
	opt(&opts)

	if opts.readBufferSize != 100 {
		t.Errorf("readBufferSize = %d, want 100", opts.readBufferSize)
	}
}

func TestPollTimeoutOption(t *testing.T) {
	timeout := time.Millisecond * 50
	opt := PollTimeoutOption(timeout)

	var opts options
	opt(&opts)

	if opts.pollTimeout != timeout {
		t.Errorf("pollTimeout = %v, want %v", opts.pollTimeout, timeout)
	}
}

func TestMessageMaxSize(t *testing.T) {
	opt := MessageMaxSize(4096)

	var opts options
	opt(&opts)

	if opts.maxMessageSize != 4096 {
		t.Errorf("maxMessageSize = %d, want 4096", opts.maxMessageSize)
	}
}

func TestOnErrorOption(t *testing.T) {
	called := false
	onError := func(err error) ErrorAction {
		called = true
		return Disconnect
	}
	opt := OnErrorOption(onError)

	var opts options
	opt(&opts)

	if opts.onError == nil {
		t.Fatal("onError is nil")
	}

	// Call to verify it's the right function
	opts.onError(nil)
	if !called {
		t.Error("onError callback not called")
	}
}

func TestOnConnectOption(t *testing.T) {
	var got ConnID
	opt := OnConnectOption(func(id ConnID, remote net.Addr) {
		got = id
	})

	var opts options
	opt(&opts)

	if opts.onConnect == nil {
		t.Fatal("onConnect is nil")
	}

	opts.onConnect(7, nil)
	if got != 7 {
		t.Errorf("onConnect got id %d, want 7", got)
	}
}

func TestOnDisconnectOption(t *testing.T) {
	var cause error
	opt := OnDisconnectOption(func(id ConnID, err error) {
		cause = err
	})

	var opts options
	opt(&opts)

	opts.onDisconnect(3, ErrConnectionClosed)
	if cause != ErrConnectionClosed {
		t.Errorf("onDisconnect got %v, want ErrConnectionClosed", cause)
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestCheckOptions_DefaultValues(t *testing.T) {
	var opts options

	err := checkOptions(&opts)
	if err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.readBufferSize != defaultReadBufferSize {
		t.Errorf("readBufferSize = %d, want %d", opts.readBufferSize, defaultReadBufferSize)
	}

	if opts.maxMessageSize != defaultMaxMessageSize {
		t.Errorf("maxMessageSize = %d, want %d", opts.maxMessageSize, defaultMaxMessageSize)
	}

	if opts.pollTimeout != 500*time.Millisecond {
		t.Errorf("pollTimeout = %v, want %v", opts.pollTimeout, 500*time.Millisecond)
	}

	if opts.backlog != 10 {
		t.Errorf("backlog = %d, want 10", opts.backlog)
	}

	if opts.framing.Framed() {
		t.Error("default framing should be a byte stream")
	}

	if opts.onError == nil {
		t.Error("onError should have default value")
	}

	if opts.logger == nil {
		t.Error("logger should have default value")
	}
}

func TestCheckOptions_ReadBufferClampedToMessageCap(t *testing.T) {
	opts := options{readBufferSize: 16384}

	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}
	if opts.readBufferSize != defaultMaxMessageSize {
		t.Errorf("readBufferSize = %d, want %d", opts.readBufferSize, defaultMaxMessageSize)
	}

	opts = options{readBufferSize: 64, maxMessageSize: 4}
	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}
	if opts.readBufferSize != 4 {
		t.Errorf("readBufferSize = %d, want 4", opts.readBufferSize)
	}
}

func TestCheckOptions_DefaultOnError(t *testing.T) {
	var opts options

	err := checkOptions(&opts)
	if err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	// Default onError should return Disconnect
	if opts.onError(errors.New("test")) != Disconnect {
		t.Error("default onError should return Disconnect")
	}
}

func TestCheckOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want error
	}{
		{"header width 3", FramingOption(LengthPrefixed(3)), ErrInvalidFraming},
		{"negative target", DefaultTargetOption(-1, false), ErrInvalidTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts options
			tt.opt(&opts)

			err := checkOptions(&opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("checkOptions = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckOptions_TargetOnFramed(t *testing.T) {
	var opts options
	FramingOption(LengthPrefixed(2))(&opts)
	DefaultTargetOption(4, true)(&opts)

	if err := checkOptions(&opts); !errors.Is(err, ErrFramingMismatch) {
		t.Errorf("checkOptions = %v, want ErrFramingMismatch", err)
	}
}

func TestOptions_MultipleOptions(t *testing.T) {
	logger := &mockLogger{}

	opts := []Option{
		LoggerOption(logger),
		BufferLimitOption(4096),
		BacklogOption(64),
		WriteTimeoutOption(time.Second),
		DefaultTargetOption(4, true),
		OnErrorOption(func(err error) ErrorAction { return Continue }),
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger != logger {
		t.Error("logger not set")
	}
	if o.bufferLimit != 4096 {
		t.Errorf("bufferLimit = %d, want 4096", o.bufferLimit)
	}
	if o.backlog != 64 {
		t.Errorf("backlog = %d, want 64", o.backlog)
	}
	if o.writeTimeout != time.Second {
		t.Errorf("writeTimeout = %v, want 1s", o.writeTimeout)
	}
	if o.defaultTarget != (Target{Size: 4, Permanent: true}) {
		t.Errorf("defaultTarget = %+v", o.defaultTarget)
	}
	if o.onError(nil) != Continue {
		t.Error("onError should return Continue")
	}
	if o.targetLimit() != 4096 {
		t.Errorf("targetLimit = %d, want 4096", o.targetLimit())
	}
}

func TestErrorAction(t *testing.T) {
	if Disconnect != 0 {
		t.Errorf("Disconnect = %d, want 0", Disconnect)
	}
	if Continue != 1 {
		t.Errorf("Continue = %d, want 1", Continue)
	}
}
