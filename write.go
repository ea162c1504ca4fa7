package netlib

import (
	"github.com/pkg/errors"

	"github.com/Zereker/netlib/wire"
)

// Send writes p to id, waiting for a full socket to drain up to the write timeout.
// A failed write is passed to the OnErrorOption callback; Disconnect closes the
// connection.
func (r *Reactor) Send(id ConnID, p []byte) error {
	c, ok := r.table.lookup(id)
	if !ok {
		return ErrConnectionClosed
	}
	if len(p) == 0 {
		return nil
	}

	err := c.write(p, r.opts.writeTimeout)
	if err != nil && !errors.Is(err, ErrConnectionClosed) {
		r.logger.Debug("write error", "conn", id, "error", err.Error())
		if r.opts.onError(err) == Disconnect {
			_ = r.Disconnect(id)
		}
	}
	return err
}

// SendRecord encodes v in wire format and sends it to id.
func (r *Reactor) SendRecord(id ConnID, v any) error {
	e := wire.AcquireEncoder()
	defer wire.ReleaseEncoder(e)

	if err := e.Encode(v); err != nil {
		return err
	}
	return r.Send(id, e.Bytes())
}

// SendFrame sends m to id behind a length header. It is only valid on a framed
// reactor.
func (r *Reactor) SendFrame(id ConnID, m Message) error {
	if !r.opts.framing.Framed() {
		return ErrFramingMismatch
	}
	p, err := r.opts.framing.encode(m, r.opts.maxMessageSize)
	if err != nil {
		return err
	}
	return r.Send(id, p)
}
