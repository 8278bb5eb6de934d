package schema

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/metrics"
)

// countingRefresh returns a snapshot on every call and fails while fail is set.
type countingRefresh struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (r *countingRefresh) refresh(context.Context) (*Snapshot, error) {
	r.calls.Add(1)
	if r.fail.Load() {
		return nil, errors.New("database unavailable")
	}
	return NewSnapshot([]Table{instancesTable("public")}), nil
}

type refreshResult struct {
	snap *Snapshot
	err  error
}

// steppedRefresh serves the first snapshot immediately and every later cycle
// from results, so a test decides what each tick observes.
type steppedRefresh struct {
	first   *Snapshot
	calls   atomic.Int32
	results chan refreshResult
}

func (r *steppedRefresh) refresh(ctx context.Context) (*Snapshot, error) {
	if r.calls.Add(1) == 1 {
		return r.first, nil
	}
	select {
	case res := <-r.results:
		return res.snap, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// instancesWith returns the instances table extended by extra columns.
func instancesWith(extra ...string) *Snapshot {
	table := instancesTable("public")
	for i, name := range extra {
		table.Columns = append(table.Columns, Column{Name: name, DataType: "text", Nullable: true, Ordinal: 10 + i})
	}
	return NewSnapshot([]Table{table})
}

func TestMonitor_StartInstallsSnapshotBeforeReturning(t *testing.T) {
	cache := NewCache()
	r := &countingRefresh{}
	m := NewMonitor(cache, r.refresh, WithInterval(time.Hour))

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.NotNil(t, cache.Current())
	assert.Equal(t, uint64(1), cache.Current().Version())
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestMonitor_StartFailsWhenFirstLoadFails(t *testing.T) {
	cache := NewCache()
	r := &countingRefresh{}
	r.fail.Store(true)
	m := NewMonitor(cache, r.refresh, WithInterval(10*time.Millisecond))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Nil(t, cache.Current())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), r.calls.Load(), "no background loop after a failed start")
	m.Stop()
}

func TestMonitor_RefreshesPeriodically(t *testing.T) {
	cache := NewCache()
	r := &countingRefresh{}
	m := NewMonitor(cache, r.refresh, WithInterval(10*time.Millisecond))

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool {
		return cache.Current().Version() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMonitor_FailedCycleKeepsStaleSnapshot(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mt := metrics.New(nil)
	cache := NewCache()
	r := &countingRefresh{}
	m := NewMonitor(cache, r.refresh,
		WithInterval(10*time.Millisecond),
		WithLogger(logging.NewFromZap(zap.New(core))),
		WithMetrics(mt),
	)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	installed := cache.Current()

	r.fail.Store(true)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Schema refresh failed, keeping previous snapshot").Len() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Same(t, installed, cache.Current())
	assert.GreaterOrEqual(t, testutil.ToFloat64(mt.SchemaRefreshes.WithLabelValues(metrics.ResultFailure)), 2.0)

	r.fail.Store(false)
	require.Eventually(t, func() bool {
		return cache.Current().Version() > installed.Version()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMonitor_StopEndsLoop(t *testing.T) {
	r := &countingRefresh{}
	m := NewMonitor(NewCache(), r.refresh, WithInterval(5*time.Millisecond))

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, time.Millisecond)

	m.Stop()
	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load())

	assert.NotPanics(t, m.Stop)
}

func TestMonitor_StartTwice(t *testing.T) {
	r := &countingRefresh{}
	m := NewMonitor(NewCache(), r.refresh, WithInterval(time.Hour))

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.Error(t, m.Start(context.Background()))
}

func TestMonitor_LoopSurvivesStartContextCancellation(t *testing.T) {
	cache := NewCache()
	r := &countingRefresh{}
	m := NewMonitor(cache, r.refresh, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	defer m.Stop()
	cancel()

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestMonitor_TracksChangingSchemaAndKeepsLastGoodOnFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cache := NewCache()
	r := &steppedRefresh{first: instancesWith(), results: make(chan refreshResult)}
	m := NewMonitor(cache, r.refresh,
		WithInterval(5*time.Millisecond),
		WithLogger(logging.NewFromZap(zap.New(core))),
	)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	require.False(t, cache.Current().HasColumn("instances", "host"))

	r.results <- refreshResult{snap: instancesWith("host")}
	require.Eventually(t, func() bool {
		return cache.Current().HasColumn("instances", "host")
	}, 2*time.Second, time.Millisecond)
	assert.False(t, cache.Current().HasColumn("instances", "vm_state"))

	r.results <- refreshResult{snap: instancesWith("host", "vm_state")}
	require.Eventually(t, func() bool {
		return cache.Current().HasColumn("instances", "vm_state")
	}, 2*time.Second, time.Millisecond)
	second := cache.Current()

	r.results <- refreshResult{err: errors.New("database unavailable")}
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Schema refresh failed, keeping previous snapshot").Len() == 1
	}, 2*time.Second, time.Millisecond)

	current := cache.Current()
	require.NotNil(t, current)
	assert.Same(t, second, current)
	assert.True(t, current.HasColumn("instances", "host"))
	assert.True(t, current.HasColumn("instances", "vm_state"))
	assert.Equal(t, 2, logs.FilterMessage("Schema changed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Schema loaded").Len())
}

func TestMonitor_StopCancelsBlockedFirstLoad(t *testing.T) {
	entered := make(chan struct{})
	refresh := func(ctx context.Context) (*Snapshot, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cache := NewCache()
	m := NewMonitor(cache, refresh, WithInterval(time.Hour))

	startErr := make(chan error, 1)
	go func() { startErr <- m.Start(context.Background()) }()
	<-entered

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind the first load")
	}
	select {
	case err := <-startErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Nil(t, cache.Current())
	assert.NotPanics(t, m.Stop)
}
