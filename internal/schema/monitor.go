package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/metrics"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// RefreshFunc produces a fresh snapshot. The data API supplies its wrapped
// check_schema operation, so transient failures are retried inside it.
type RefreshFunc func(ctx context.Context) (*Snapshot, error)

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the period between background refreshes.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger for refresh outcomes.
func WithLogger(l dbapi.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics records refresh results and the published version.
func WithMetrics(mt *metrics.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = mt }
}

// Monitor keeps a Cache current by refreshing it on a fixed interval.
type Monitor struct {
	cache    *Cache
	refresh  RefreshFunc
	interval time.Duration
	logger   dbapi.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a stopped monitor.
func NewMonitor(cache *Cache, refresh RefreshFunc, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		cache:    cache,
		refresh:  refresh,
		interval: dbapi.DefaultSchemaRefreshInterval,
		logger:   logging.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the refresh period.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start installs the first snapshot synchronously and then refreshes in the
// background until Stop. If the first load fails, nothing is started and the
// error is returned. A Stop issued during the first load cancels it. The
// background loop outlives ctx's deadline but not Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return errors.New("schema monitor already started")
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.mu.Unlock()

	firstCtx, stopFirst := context.WithCancel(ctx)
	defer stopFirst()
	unlink := context.AfterFunc(loopCtx, stopFirst)
	defer unlink()

	if _, err := m.Refresh(firstCtx); err != nil {
		m.mu.Lock()
		if m.done == done {
			m.cancel, m.done = nil, nil
		}
		m.mu.Unlock()
		cancel()
		close(done)
		return fmt.Errorf("initial schema load: %w", err)
	}

	go m.run(loopCtx, done)
	return nil
}

// Stop ends the background loop and waits for it to exit. Safe to call more
// than once, on a monitor that never started, or while Start is loading.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh runs one refresh cycle and installs the result.
// On failure the previously installed snapshot stays current.
func (m *Monitor) Refresh(ctx context.Context) (*Snapshot, error) {
	previous := m.cache.Current()

	fresh, err := m.refresh(ctx)
	if err == nil && fresh == nil {
		err = dbapi.ErrSchemaUnavailable
	}
	if err != nil {
		m.metrics.ObserveSchemaRefresh(0, err)
		return nil, err
	}

	published := m.cache.Store(fresh)
	m.metrics.ObserveSchemaRefresh(published.Version(), nil)

	switch {
	case previous == nil:
		m.logger.Info("Schema loaded", "tables", len(published.TableNames()), "version", published.Version())
	case !previous.Equal(published):
		m.logger.Info("Schema changed", "tables", len(published.TableNames()), "version", published.Version())
	default:
		m.logger.Verbose("Schema unchanged", "version", published.Version())
	}
	return published, nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				var version uint64
				if cur := m.cache.Current(); cur != nil {
					version = cur.Version()
				}
				m.logger.Warn("Schema refresh failed, keeping previous snapshot",
					"error", err, "version", version)
			}
		}
	}
}
