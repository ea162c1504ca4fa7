package netlib

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
)

const (
	// bufferStep is the granularity buffer allocations are rounded up to.
	bufferStep = 1024
	// defaultAllocCeiling bounds a single buffer allocation.
	defaultAllocCeiling = 64 << 20
)

var crlf = []byte("\r\n")

// Buffer is a growable receive buffer. Bytes are appended at the tail and consumed
// from the head; consumption shifts the remainder down and never shrinks the
// allocation. All methods are safe for concurrent use.
type Buffer struct {
	mu   sync.Mutex
	data []byte

	maxMessage int
	ceiling    int
}

// NewBuffer returns an empty Buffer that rejects single appends larger than maxMessage
// and never allocates more than ceiling bytes. Non-positive values select the defaults.
func NewBuffer(maxMessage, ceiling int) *Buffer {
	if maxMessage <= 0 {
		maxMessage = defaultMaxMessageSize
	}
	if ceiling <= 0 {
		ceiling = defaultAllocCeiling
	}
	return &Buffer{maxMessage: maxMessage, ceiling: ceiling}
}

// Append copies p to the tail. An empty p is a no-op. A p larger than the message cap
// is rejected with ErrOversizeMessage and nothing is stored.
func (b *Buffer) Append(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if len(p) > b.maxMessage {
		return errors.Wrapf(ErrOversizeMessage, "%d bytes, cap %d", len(p), b.maxMessage)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	l := len(b.data)
	if l+len(p) > cap(b.data) {
		size := (l + len(p) + 1 + bufferStep - 1) / bufferStep * bufferStep
		if size > b.ceiling {
			return errors.Wrapf(ErrBufferGrowthFailed, "need %d bytes, ceiling %d", size, b.ceiling)
		}
		nb := make([]byte, l, size)
		copy(nb, b.data)
		b.data = nb
	}
	b.data = append(b.data, p...)
	return nil
}

// Consume drops the first n bytes. It reports false and leaves the buffer untouched
// when n exceeds Len.
func (b *Buffer) Consume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 || n > len(b.data) {
		return false
	}
	b.consume(n)
	return true
}

func (b *Buffer) consume(n int) {
	if n == 0 {
		return
	}
	rest := copy(b.data, b.data[n:])
	b.data = b.data[:rest]
}

// Peek returns a copy of the first min(n, Len) bytes.
func (b *Buffer) Peek(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.copyHead(n)
}

func (b *Buffer) copyHead(n int) []byte {
	if n > len(b.data) {
		n = len(b.data)
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b.data)
	return out
}

// Take copies and consumes the first min(n, Len) bytes in one step. drained reports
// whether the buffer is empty afterwards.
func (b *Buffer) Take(n int) (p []byte, drained bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p = b.copyHead(n)
	b.consume(len(p))
	return p, len(b.data) == 0
}

// TakeLine takes everything up to and including the first "\r\n". The scan never
// leaves the buffered bytes; ok is false when no terminator has arrived yet.
func (b *Buffer) TakeLine() (line []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := bytes.Index(b.data, crlf)
	if i < 0 {
		return nil, false
	}
	line = b.copyHead(i + len(crlf))
	b.consume(len(line))
	return line, true
}

// IndexCRLF returns the offset of the first "\r\n", or -1.
func (b *Buffer) IndexCRLF() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return bytes.Index(b.data, crlf)
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.data)
}

// Cap returns the size of the current allocation.
func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return cap(b.data)
}

// Reset discards the buffered bytes and keeps the allocation.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = b.data[:0]
}
