// Package services composes the pool, schema monitor, operation wrapper and
// fallback router into the data API that callers use.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vvka-141/pgdbapi/internal/auth"
	"github.com/vvka-141/pgdbapi/internal/fallback"
	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/metrics"
	"github.com/vvka-141/pgdbapi/internal/models"
	"github.com/vvka-141/pgdbapi/internal/operation"
	"github.com/vvka-141/pgdbapi/internal/pool"
	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// Deps are the collaborators of a DataAPI. Pool and Wrapper are required;
// the rest default to inert implementations.
type Deps struct {
	Pool    *pool.Pool
	Wrapper *operation.Wrapper
	// Router receives names the data API does not implement.
	Router *fallback.Router
	Cache  *schema.Cache
	// Authorizer decides the row scope of a caller. Defaults to auth.NewPolicy().
	Authorizer dbapi.Authorizer
	Logger     dbapi.Logger
	Metrics    *metrics.Metrics

	// Schemas are introspected in lookup order.
	Schemas         []string
	RefreshInterval time.Duration
}

// DataAPI is the public entry point of the data-access layer.
//
// Implemented operations are reached by method or by name through Call.
// Names without an implementation resolve through the fallback router.
// Safe for concurrent use.
type DataAPI struct {
	pool       *pool.Pool
	wrapper    *operation.Wrapper
	router     *fallback.Router
	cache      *schema.Cache
	monitor    *schema.Monitor
	authorizer dbapi.Authorizer
	logger     dbapi.Logger
	schemas    []string

	direct    *fallback.Table
	closeOnce sync.Once
}

// NewDataAPI registers every implemented operation, installs the first schema
// snapshot and starts the schema monitor.
//
// Panics if Pool or Wrapper is nil. Returns an error if the first schema load
// fails; ctx bounds that load, including its retries.
func NewDataAPI(ctx context.Context, deps Deps) (*DataAPI, error) {
	if deps.Pool == nil {
		panic("pool cannot be nil")
	}
	if deps.Wrapper == nil {
		panic("wrapper cannot be nil")
	}

	d := &DataAPI{
		pool:       deps.Pool,
		wrapper:    deps.Wrapper,
		router:     deps.Router,
		cache:      deps.Cache,
		authorizer: deps.Authorizer,
		logger:     deps.Logger,
		schemas:    deps.Schemas,
		direct:     fallback.NewTable(),
	}
	if d.logger == nil {
		d.logger = logging.NewNullLogger()
	}
	if d.cache == nil {
		d.cache = schema.NewCache()
	}
	if d.authorizer == nil {
		d.authorizer = auth.NewPolicy()
	}
	if d.router == nil {
		d.router = fallback.NewRouter(nil, fallback.WithLogger(d.logger), fallback.WithMetrics(deps.Metrics))
	}

	d.register()

	d.monitor = schema.NewMonitor(d.cache, d.checkSchema,
		schema.WithInterval(deps.RefreshInterval),
		schema.WithLogger(d.logger),
		schema.WithMetrics(deps.Metrics),
	)
	if err := d.monitor.Start(ctx); err != nil {
		return nil, err
	}

	d.logger.Verbose("Data API instantiated", "operations", len(d.direct.Names()), "refresh_interval", d.monitor.Interval())
	return d, nil
}

// Resolve returns the operation registered under name. Names this data API
// implements are never forwarded; any other name goes to the fallback router.
func (d *DataAPI) Resolve(name string) (dbapi.Operation, error) {
	op, err := d.direct.Resolve(name)
	if err == nil {
		return op, nil
	}
	if !errors.Is(err, dbapi.ErrNotImplemented) {
		return nil, err
	}
	return d.router.Resolve(name)
}

// Call resolves name and invokes it with args.
func (d *DataAPI) Call(ctx context.Context, name string, cc *dbapi.CallerContext, args ...any) (any, error) {
	op, err := d.Resolve(name)
	if err != nil {
		return nil, err
	}
	return op(ctx, cc, args...)
}

// Implemented lists the operation names served directly, sorted.
func (d *DataAPI) Implemented() []string {
	return d.direct.Names()
}

// Schema returns the current schema snapshot.
func (d *DataAPI) Schema() *schema.Snapshot {
	return d.cache.Current()
}

// RefreshSchema runs one schema refresh outside the monitor's schedule.
func (d *DataAPI) RefreshSchema(ctx context.Context) (*schema.Snapshot, error) {
	return d.monitor.Refresh(ctx)
}

// Close stops the schema monitor and closes the pool. Idempotent.
func (d *DataAPI) Close() {
	d.closeOnce.Do(func() {
		d.monitor.Stop()
		d.pool.Close()
		d.logger.Verbose("Data API closed")
	})
}

// Constraint builds a destroy constraint from per-column conditions.
func Constraint(conditions map[string]models.Condition) *models.Constraint {
	return models.NewConstraint(conditions)
}

// EqualAny is a condition matching any of values.
func EqualAny(values ...any) models.Condition {
	return models.EqualAny(values...)
}

// NotEqual is a condition matching none of values.
func NotEqual(values ...any) models.Condition {
	return models.NotEqual(values...)
}

// checkSchema introspects the database on a pooled connection. It runs under
// the wrapper without a caller context and is the monitor's refresh function.
func (d *DataAPI) checkSchema(ctx context.Context) (*schema.Snapshot, error) {
	return operation.Call(ctx, d.wrapper, policies[OpCheckSchema], nil, func(ctx context.Context) (*schema.Snapshot, error) {
		return pool.With(ctx, d.pool, func(conn dbapi.Conn) (*schema.Snapshot, error) {
			return schema.Introspect(ctx, conn, d.schemas)
		})
	})
}

// withConn reads the current snapshot once and runs body on a leased
// connection with the caller's row scope.
func withConn[T any](ctx context.Context, d *DataAPI, cc *dbapi.CallerContext, body func(conn dbapi.Conn, snap *schema.Snapshot, scope models.Scope) (T, error)) (T, error) {
	snap, err := d.cache.Require()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read schema: %w", err)
	}
	scope := models.ScopeFor(cc, d.authorizer.IsAdmin(cc))
	return pool.With(ctx, d.pool, func(conn dbapi.Conn) (T, error) {
		return body(conn, snap, scope)
	})
}
