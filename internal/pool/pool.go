// Package pool hands out database connections as scoped leases.
//
// The pool holds at most MaxSize live connections. Connections are created
// lazily through a dbapi.Connector and reused after release. Acquire blocks
// while the pool is saturated, up to the configured acquire timeout.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/metrics"
	"github.com/vvka-141/pgdbapi/internal/retry"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// closeTimeout bounds how long a destroyed connection may take to close.
const closeTimeout = 5 * time.Second

// Config sizes the pool. Zero values select the package defaults.
type Config struct {
	MaxSize        int32
	AcquireTimeout time.Duration
}

// Option configures optional collaborators of a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l dbapi.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics records acquire waits and exhaustion.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// Pool is a bounded set of reusable connections. Safe for concurrent use.
type Pool struct {
	res            *puddle.Pool[dbapi.Conn]
	connector      dbapi.Connector
	acquireTimeout time.Duration
	logger         dbapi.Logger
	metrics        *metrics.Metrics
	classifier     *retry.PostgreSQLErrorClassifier
}

// New creates a pool over connector. No connection is opened until the first Acquire.
func New(connector dbapi.Connector, cfg Config, opts ...Option) (*Pool, error) {
	if connector == nil {
		return nil, fmt.Errorf("%w: connector is required", dbapi.ErrInvalidConfig)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = dbapi.DefaultPoolSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = dbapi.DefaultAcquireTimeout
	}

	p := &Pool{
		connector:      connector,
		acquireTimeout: cfg.AcquireTimeout,
		logger:         logging.NewNullLogger(),
		classifier:     retry.NewPostgreSQLErrorClassifier(),
	}
	for _, opt := range opts {
		opt(p)
	}

	res, err := puddle.NewPool(&puddle.Config[dbapi.Conn]{
		Constructor: p.construct,
		Destructor:  p.destruct,
		MaxSize:     cfg.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dbapi.ErrInvalidConfig, err)
	}
	p.res = res
	return p, nil
}

func (p *Pool) construct(ctx context.Context) (dbapi.Conn, error) {
	conn, err := p.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Verbose("Opened pooled connection")
	return conn, nil
}

func (p *Pool) destruct(conn dbapi.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		p.logger.Verbose("Closing pooled connection failed", "error", err)
	}
}

// Acquire waits for a free connection and leases it to the caller.
//
// It fails with an error wrapping dbapi.ErrPoolExhausted when no connection
// becomes free within the acquire timeout, and with dbapi.ErrPoolClosed after
// Close. A cancelled ctx returns ctx.Err(). Connector errors are returned as is.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	res, err := p.res.Acquire(actx)
	wait := time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, dbapi.ErrPoolClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded) && actx.Err() != nil:
			p.metrics.ObserveAcquire(wait, true)
			p.logger.Warn("Connection pool exhausted", "waited", wait, "max_size", p.res.Stat().MaxResources())
			return nil, fmt.Errorf("%w: no connection released within %s", dbapi.ErrPoolExhausted, p.acquireTimeout)
		}
		return nil, err
	}

	p.metrics.ObserveAcquire(wait, false)
	p.metrics.SetAcquired(p.res.Stat().AcquiredResources())
	return &Lease{res: res, pool: p}, nil
}

// Stats describes the pool at one instant.
type Stats struct {
	MaxSize              int32
	Acquired             int32
	Idle                 int32
	Total                int32
	Available            int32
	AcquireCount         int64
	CanceledAcquireCount int64
	EmptyAcquireCount    int64
}

// Stats returns a consistent snapshot of pool counters.
func (p *Pool) Stats() Stats {
	s := p.res.Stat()
	return Stats{
		MaxSize:              s.MaxResources(),
		Acquired:             s.AcquiredResources(),
		Idle:                 s.IdleResources(),
		Total:                s.TotalResources(),
		Available:            s.MaxResources() - s.AcquiredResources(),
		AcquireCount:         s.AcquireCount(),
		CanceledAcquireCount: s.CanceledAcquireCount(),
		EmptyAcquireCount:    s.EmptyAcquireCount(),
	}
}

// Close closes idle connections and rejects further acquisitions.
// It blocks until every outstanding lease has been released.
func (p *Pool) Close() {
	p.res.Close()
}

// Lease is exclusive use of one pooled connection.
// Release must be called exactly once on every path; extra calls are no-ops.
type Lease struct {
	res    *puddle.Resource[dbapi.Conn]
	pool   *Pool
	once   sync.Once
	broken atomic.Bool
}

// Conn returns the leased connection. It must not be used after Release.
func (l *Lease) Conn() dbapi.Conn {
	return l.res.Value()
}

// MarkBroken makes Release destroy the connection instead of reusing it.
func (l *Lease) MarkBroken() {
	l.broken.Store(true)
}

// Release returns the connection to the pool, or destroys it when it is
// closed or marked broken so that a fresh one is created on demand.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.broken.Load() || l.res.Value().IsClosed() {
			l.pool.logger.Verbose("Discarding broken pooled connection")
			l.res.Destroy()
		} else {
			l.res.Release()
		}
		l.pool.metrics.SetAcquired(l.pool.res.Stat().AcquiredResources())
	})
}

// With runs fn on a leased connection and releases it on every exit path,
// including panics. A connection-lost error from fn marks the lease broken.
func With[T any](ctx context.Context, p *Pool, fn func(conn dbapi.Conn) (T, error)) (result T, err error) {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return result, err
	}
	defer lease.Release()
	defer func() {
		if r := recover(); r != nil {
			lease.MarkBroken()
			panic(r)
		}
	}()

	result, err = fn(lease.Conn())
	if err != nil && p.classifier.Classify(err) == retry.KindConnectionLost {
		lease.MarkBroken()
	}
	return result, err
}
