package netlib

import (
	"context"
	"slices"
	"sync"
)

// table owns the connections of one reactor and the set of those currently readable.
// Lock order is table, then buffer.
type table struct {
	mu    sync.Mutex
	conns map[ConnID]*conn
	ready map[ConnID]struct{}

	// changed is closed and replaced whenever the ready set changes membership.
	changed chan struct{}
	closed  bool

	// probe reports how many bytes the kernel still holds for a descriptor.
	probe func(fd int) int
}

func newTable(probe func(fd int) int) *table {
	return &table{
		conns:   make(map[ConnID]*conn),
		ready:   make(map[ConnID]struct{}),
		changed: make(chan struct{}),
		probe:   probe,
	}
}

func (t *table) insert(c *conn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c.state == StateConnecting {
		c.state = StateOpen
	}
	t.conns[c.id] = c
	t.reevaluateLocked(c)
}

func (t *table) lookup(id ConnID) (*conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[id]
	return c, ok
}

// remove takes id out of the table and the ready set. It returns nil when id is not
// present.
func (t *table) remove(id ConnID) *conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[id]
	if !ok {
		return nil
	}
	delete(t.conns, id)
	delete(t.ready, id)
	c.state = StateDisconnected
	t.broadcastLocked()
	return c
}

// close empties the table, releases every waiter and returns the connections that
// were still present.
func (t *table) close() []*conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	out := make([]*conn, 0, len(t.conns))
	for id, c := range t.conns {
		c.state = StateDisconnected
		out = append(out, c)
		delete(t.conns, id)
	}
	clear(t.ready)
	t.broadcastLocked()
	return out
}

func (t *table) broadcastLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// readableLocked applies the readability rule to c. Satisfying a one-shot target
// clears it.
func (t *table) readableLocked(c *conn) bool {
	if c.paused {
		return true
	}
	if c.frames != nil {
		return c.frames.Length() > 0
	}
	n := c.buf.Len()
	if c.target.Size > 0 {
		if n < c.target.Size {
			return false
		}
		if !c.target.Permanent {
			c.target = Target{}
		}
		return true
	}
	return n > 0 && t.probe(c.fd) == 0
}

// reevaluateLocked updates c's membership in the ready set and wakes waiters when it
// changed.
func (t *table) reevaluateLocked(c *conn) {
	ok := t.readableLocked(c)
	_, in := t.ready[c.id]
	switch {
	case ok && !in:
		t.ready[c.id] = struct{}{}
		t.broadcastLocked()
	case !ok && in:
		delete(t.ready, c.id)
		t.broadcastLocked()
	}
}

// setTargetLocked installs target and re-applies the rule to the bytes already held.
func (t *table) setTargetLocked(c *conn, target Target) {
	c.target = target
	delete(t.ready, c.id)
	t.reevaluateLocked(c)
}

func (t *table) isReadyLocked(id ConnID) bool {
	_, ok := t.ready[id]
	return ok
}

func (t *table) readyIDsLocked() []ConnID {
	ids := make([]ConnID, 0, len(t.ready))
	for id := range t.ready {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// wait runs cond under the table lock until it reports done, then returns its error.
// cond is re-checked after every broadcast, since a wakeup may concern another
// connection.
func (t *table) wait(ctx context.Context, cond func() (bool, error)) error {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return ErrReactorClosed
		}
		done, err := cond()
		changed := t.changed
		t.mu.Unlock()

		if done {
			return err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
