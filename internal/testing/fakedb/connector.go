package fakedb

import (
	"context"
	"sync"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Connector hands out Conns sharing one Script.
type Connector struct {
	Script *Script

	mu       sync.Mutex
	failNext []error
	conns    []*Conn
}

// NewConnector creates a Connector. A nil script gets an empty one.
func NewConnector(script *Script) *Connector {
	if script == nil {
		script = NewScript()
	}
	return &Connector{Script: script}
}

// FailNext makes the next len(errs) Connect calls return errs in order.
func (c *Connector) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = append(c.failNext, errs...)
}

// Connect returns a new Conn or the next queued failure.
func (c *Connector) Connect(ctx context.Context) (dbapi.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.failNext) > 0 {
		err := c.failNext[0]
		c.failNext = c.failNext[1:]
		return nil, err
	}
	conn := NewConn(len(c.conns)+1, c.Script)
	c.conns = append(c.conns, conn)
	return conn, nil
}

// Conns returns every Conn created so far.
func (c *Connector) Conns() []*Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Conn, len(c.conns))
	copy(out, c.conns)
	return out
}

var _ dbapi.Connector = (*Connector)(nil)
