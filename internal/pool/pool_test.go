package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/pgdbapi/internal/metrics"
	"github.com/vvka-141/pgdbapi/internal/testing/fakedb"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func newTestPool(t *testing.T, size int32, timeout time.Duration) (*Pool, *fakedb.Connector) {
	t.Helper()
	connector := fakedb.NewConnector(nil)
	p, err := New(connector, Config{MaxSize: size, AcquireTimeout: timeout})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, connector
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(fakedb.NewConnector(nil), Config{})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, int32(dbapi.DefaultPoolSize), p.Stats().MaxSize)
	assert.Equal(t, dbapi.DefaultAcquireTimeout, p.acquireTimeout)
	assert.Equal(t, int32(dbapi.DefaultPoolSize), p.Stats().Available)
}

func TestNew_RequiresConnector(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, dbapi.ErrInvalidConfig)
}

func TestPool_ConcurrentAcquireNeverExceedsMaxSize(t *testing.T) {
	const size = 5
	p, connector := newTestPool(t, size, 10*time.Second)

	var inFlight, peak atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 1000; i++ {
		g.Go(func() error {
			_, err := With(ctx, p, func(conn dbapi.Conn) (struct{}, error) {
				n := inFlight.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(50 * time.Microsecond)
				inFlight.Add(-1)
				return struct{}{}, nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, peak.Load(), int32(size))
	assert.LessOrEqual(t, len(connector.Conns()), size)

	stats := p.Stats()
	assert.Equal(t, int32(0), stats.Acquired)
	assert.Equal(t, int32(size), stats.Available)
	assert.Equal(t, int64(1000), stats.AcquireCount)
}

func TestPool_WaiterReceivesReleasedConnection(t *testing.T) {
	p, _ := newTestPool(t, 1, 5*time.Second)
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	require.NoError(t, err)
	held := first.Conn()

	got := make(chan *Lease, 1)
	go func() {
		lease, err := p.Acquire(ctx)
		if err != nil {
			close(got)
			return
		}
		got <- lease
	}()

	select {
	case <-got:
		t.Fatal("second acquire must block while the only connection is leased")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case second, ok := <-got:
		require.True(t, ok, "second acquire failed")
		assert.Same(t, held, second.Conn())
		second.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestPool_AcquireTimesOutWithPoolExhausted(t *testing.T) {
	m := metrics.New(nil)
	connector := fakedb.NewConnector(nil)
	p, err := New(connector, Config{MaxSize: 1, AcquireTimeout: 50 * time.Millisecond}, WithMetrics(m))
	require.NoError(t, err)
	defer p.Close()

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	start := time.Now()
	_, err = p.Acquire(context.Background())

	require.ErrorIs(t, err, dbapi.ErrPoolExhausted)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPool_AcquireCallerCancellation(t *testing.T) {
	p, _ := newTestPool(t, 1, time.Minute)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, dbapi.ErrPoolExhausted)
}

func TestPool_ConnectorErrorPropagatesUnchanged(t *testing.T) {
	p, connector := newTestPool(t, 1, time.Second)
	connErr := &pgconn.PgError{Code: "57P03", Message: "the database system is starting up"}
	connector.FailNext(connErr)

	_, err := p.Acquire(context.Background())
	assert.Same(t, connErr, err)

	// The failed construction must not consume the only slot.
	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
}

func TestLease_ReleaseIsIdempotent(t *testing.T) {
	p, _ := newTestPool(t, 2, time.Second)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)

	lease.Release()
	assert.NotPanics(t, lease.Release)
	assert.Equal(t, int32(0), p.Stats().Acquired)
	assert.Equal(t, int32(1), p.Stats().Idle)
}

func TestLease_ClosedConnectionIsDestroyed(t *testing.T) {
	p, _ := newTestPool(t, 1, time.Second)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	dead := lease.Conn().(*fakedb.Conn)
	dead.Kill()
	lease.Release()

	require.Eventually(t, func() bool { return p.Stats().Total == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, dead.Closes())

	next, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer next.Release()
	assert.NotSame(t, dead, next.Conn())
}

func TestWith_ConnectionLostMarksLeaseBroken(t *testing.T) {
	p, connector := newTestPool(t, 1, time.Second)
	lost := &pgconn.PgError{Code: "08006", Message: "connection failure"}

	_, err := With(context.Background(), p, func(dbapi.Conn) (int, error) {
		return 0, lost
	})
	assert.Same(t, lost, err)

	require.Eventually(t, func() bool { return connector.Conns()[0].Closes() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWith_FatalErrorKeepsConnection(t *testing.T) {
	p, connector := newTestPool(t, 1, time.Second)

	_, err := With(context.Background(), p, func(dbapi.Conn) (int, error) {
		return 0, &pgconn.PgError{Code: "23505"}
	})
	require.Error(t, err)

	_, err = With(context.Background(), p, func(dbapi.Conn) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Len(t, connector.Conns(), 1)
	assert.Equal(t, 0, connector.Conns()[0].Closes())
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	p, _ := newTestPool(t, 1, time.Second)

	assert.Panics(t, func() {
		_, _ = With(context.Background(), p, func(dbapi.Conn) (int, error) {
			panic("boom")
		})
	})

	require.Eventually(t, func() bool { return p.Stats().Acquired == 0 }, time.Second, 5*time.Millisecond)
	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
}

func TestPool_AcquireAfterClose(t *testing.T) {
	p, err := New(fakedb.NewConnector(nil), Config{MaxSize: 1})
	require.NoError(t, err)
	p.Close()

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, dbapi.ErrPoolClosed)
}
