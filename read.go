package netlib

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Zereker/netlib/wire"
)

// streamLocked looks id up for a byte-stream call.
func (r *Reactor) streamLocked(id ConnID) (*conn, error) {
	if r.opts.framing.Framed() {
		return nil, ErrFramingMismatch
	}
	c, ok := r.table.conns[id]
	if !ok {
		return nil, ErrConnectionClosed
	}
	return c, nil
}

// ReceiveData takes up to n bytes from id. ok is false when the connection is not
// readable, unknown, or the reactor is framed.
func (r *Reactor) ReceiveData(id ConnID, n int) (p []byte, ok bool) {
	if n <= 0 {
		return nil, false
	}

	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, err := r.streamLocked(id)
	if err != nil || !r.table.isReadyLocked(id) {
		return nil, false
	}
	p, _ = c.buf.Take(n)
	r.consumedLocked(c)
	return p, true
}

// ReceiveDataEnsured waits until id holds at least n bytes and takes exactly n. While
// it waits a one-shot watermark of n is installed; the previous watermark is restored
// before it returns. On timeout or cancellation nothing is consumed and the ctx error
// is returned.
func (r *Reactor) ReceiveDataEnsured(ctx context.Context, id ConnID, n int) ([]byte, error) {
	var p []byte
	err := r.ensure(ctx, id, n, func(c *conn) error {
		p, _ = c.buf.Take(n)
		return nil
	})
	return p, err
}

// ensure waits for n bytes on id and runs take under the table lock once they are
// there.
func (r *Reactor) ensure(ctx context.Context, id ConnID, n int, take func(c *conn) error) error {
	if n <= 0 || n > r.opts.targetLimit() {
		return errors.Wrapf(ErrInvalidTarget, "size %d", n)
	}

	r.table.mu.Lock()
	c, err := r.streamLocked(id)
	if err != nil {
		r.table.mu.Unlock()
		return err
	}
	prior := c.target
	r.table.setTargetLocked(c, Target{Size: n})
	r.table.mu.Unlock()

	defer func() {
		r.table.mu.Lock()
		defer r.table.mu.Unlock()

		if r.table.conns[id] == c {
			r.table.setTargetLocked(c, prior)
		}
	}()

	return r.table.wait(ctx, func() (bool, error) {
		if r.table.conns[id] != c {
			return true, ErrConnectionClosed
		}
		if c.buf.Len() < n {
			return false, nil
		}
		if err := take(c); err != nil {
			return true, err
		}
		r.consumedLocked(c)
		return true, nil
	})
}

// GetLine takes everything up to and including the first "\r\n" from id. ok is false
// when no complete line has arrived. Readability does not gate it.
func (r *Reactor) GetLine(id ConnID) (line []byte, ok bool) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, err := r.streamLocked(id)
	if err != nil {
		return nil, false
	}
	line, ok = c.buf.TakeLine()
	if ok {
		r.consumedLocked(c)
	}
	return line, ok
}

// ReceiveEverything takes the entire buffer of id regardless of any watermark. ok is
// false when the buffer is empty.
func (r *Reactor) ReceiveEverything(id ConnID) (p []byte, ok bool) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, err := r.streamLocked(id)
	if err != nil {
		return nil, false
	}
	p, _ = c.buf.Take(c.buf.Len())
	if len(p) == 0 {
		return nil, false
	}
	r.consumedLocked(c)
	return p, true
}

// ReadPacket decodes one fixed-shape record from id into v without blocking. It
// returns ErrNotReadable when id is not readable and wire.ErrTruncated when fewer
// bytes than the record needs are buffered; in both cases nothing is consumed.
func (r *Reactor) ReadPacket(id ConnID, v any) error {
	size, err := wire.Size(v)
	if err != nil {
		return err
	}

	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, err := r.streamLocked(id)
	if err != nil {
		return err
	}
	if !r.table.isReadyLocked(id) {
		return ErrNotReadable
	}
	if err = decodeHead(c, size, v); err != nil {
		return err
	}
	r.consumedLocked(c)
	return nil
}

// ReadPacketWait waits until a whole record is buffered on id, then decodes it into v.
// On timeout v is left untouched and the ctx error is returned.
func (r *Reactor) ReadPacketWait(ctx context.Context, id ConnID, v any) error {
	size, err := wire.Size(v)
	if err != nil {
		return err
	}
	return r.ensure(ctx, id, size, func(c *conn) error {
		return decodeHead(c, size, v)
	})
}

// decodeHead decodes the first size bytes of c into v and consumes them only when the
// decode succeeded.
func decodeHead(c *conn, size int, v any) error {
	head := c.buf.Peek(size)
	if len(head) < size {
		return errors.Wrapf(wire.ErrTruncated, "record needs %d bytes, have %d", size, len(head))
	}
	if err := wire.Unmarshal(head, v); err != nil {
		return err
	}
	c.buf.Consume(size)
	return nil
}

// Buffered returns how many received bytes id holds that no consumer has taken.
func (r *Reactor) Buffered(id ConnID) int {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, ok := r.table.conns[id]
	if !ok {
		return 0
	}
	return c.unread()
}

// Readable returns the ids currently readable, sorted.
func (r *Reactor) Readable() []ConnID {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	return r.table.readyIDsLocked()
}

// WaitReadable blocks until at least one connection is readable and returns the
// readable ids.
func (r *Reactor) WaitReadable(ctx context.Context) ([]ConnID, error) {
	var ids []ConnID
	err := r.table.wait(ctx, func() (bool, error) {
		if len(r.table.ready) == 0 {
			return false, nil
		}
		ids = r.table.readyIDsLocked()
		return true, nil
	})
	return ids, err
}

// WaitReadableConn blocks until id is readable. It returns ErrConnectionClosed if id
// leaves the table first.
func (r *Reactor) WaitReadableConn(ctx context.Context, id ConnID) error {
	return r.table.wait(ctx, func() (bool, error) {
		if _, ok := r.table.conns[id]; !ok {
			return true, ErrConnectionClosed
		}
		return r.table.isReadyLocked(id), nil
	})
}

// SetTarget installs a watermark on id. The connection leaves the readable set and is
// re-evaluated against the bytes it already holds, so a watermark that is already met
// makes it readable again at once.
func (r *Reactor) SetTarget(id ConnID, size int, permanent bool) error {
	if size <= 0 || size > r.opts.targetLimit() {
		return errors.Wrapf(ErrInvalidTarget, "size %d", size)
	}

	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, err := r.streamLocked(id)
	if err != nil {
		return err
	}
	r.table.setTargetLocked(c, Target{Size: size, Permanent: permanent})
	return nil
}

// ClearTarget removes the watermark of id, restoring the default readability rule.
func (r *Reactor) ClearTarget(id ConnID) error {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, err := r.streamLocked(id)
	if err != nil {
		return err
	}
	r.table.setTargetLocked(c, Target{})
	return nil
}

// Target returns the watermark of id. ok is false when none is set.
func (r *Reactor) Target(id ConnID) (t Target, ok bool) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	c, found := r.table.conns[id]
	if !found || c.target.Size == 0 {
		return Target{}, false
	}
	return c.target, true
}

// CheckPackets drains the frame queue of every readable connection. It returns nil on a
// stream reactor.
func (r *Reactor) CheckPackets() map[ConnID][]Frame {
	if !r.opts.framing.Framed() {
		return nil
	}

	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	out := make(map[ConnID][]Frame, len(r.table.ready))
	for _, id := range r.table.readyIDsLocked() {
		c := r.table.conns[id]
		if frames := c.drain(); len(frames) > 0 {
			out[id] = frames
		}
		r.consumedLocked(c)
	}
	return out
}
