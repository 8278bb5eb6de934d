// Package app assembles the data API as an fx application.
//
// Constructors only build objects. The first schema load, the schema monitor
// and the metrics listener are tied to the fx lifecycle, and shutdown runs in
// reverse: metrics server, data API (monitor, then pool), then connector.
package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/vvka-141/pgdbapi/internal/auth"
	"github.com/vvka-141/pgdbapi/internal/config"
	"github.com/vvka-141/pgdbapi/internal/db"
	"github.com/vvka-141/pgdbapi/internal/fallback"
	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/metrics"
	"github.com/vvka-141/pgdbapi/internal/operation"
	"github.com/vvka-141/pgdbapi/internal/pool"
	"github.com/vvka-141/pgdbapi/internal/services"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// metricsShutdownTimeout bounds graceful shutdown of the metrics listener
// when the stop context carries no deadline.
const metricsShutdownTimeout = 5 * time.Second

// Module provides the data API and everything it depends on. It expects
// *config.Config, dbapi.Connector and *logging.ZapLogger in the container;
// a dbapi.Backend is optional.
var Module = fx.Module("pgdbapi",
	fx.Provide(
		NewRegistry,
		NewMetrics,
		newLogger,
		newAuthorizer,
		NewPool,
		NewWrapper,
		NewRouter,
		NewService,
	),
	fx.Invoke(RegisterMetricsServer),
)

// Params are the inputs resolved outside the container, typically by the CLI.
type Params struct {
	Config     *config.Config
	Connection *dbapi.ConnectionConfig
	Logger     *logging.ZapLogger
	// Backend serves operations the data API does not implement. Optional.
	Backend dbapi.Backend
	// Connector replaces the one built from Connection. Optional.
	Connector dbapi.Connector
}

// Options returns the complete option set for fx.New, including the
// connector built from p.Connection unless p.Connector is set.
func Options(p Params) fx.Option {
	connector := fx.Provide(NewConnector)
	if p.Connector != nil {
		connector = fx.Provide(func() dbapi.Connector { return p.Connector })
	}
	opts := []fx.Option{
		fx.Supply(p.Config, p.Connection, p.Logger),
		connector,
		fx.WithLogger(func(l *logging.ZapLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Zap()}
		}),
		Module,
	}
	if p.Backend != nil {
		opts = append(opts, fx.Provide(func() dbapi.Backend { return p.Backend }))
	}
	return fx.Options(opts...)
}

func newLogger(l *logging.ZapLogger) dbapi.Logger {
	return l
}

func newAuthorizer() dbapi.Authorizer {
	return auth.NewPolicy()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics registers the data API collectors with reg.
func NewMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// NewConnector builds the connector for the configured auth method and
// closes it on stop when it holds resources.
func NewConnector(lc fx.Lifecycle, cfg *dbapi.ConnectionConfig, logger *logging.ZapLogger) (dbapi.Connector, error) {
	connector, err := db.NewConnector(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := connector.(io.Closer); ok {
		lc.Append(fx.StopHook(closer.Close))
	}
	return connector, nil
}

// NewPool sizes the pool from configuration. The data API closes it.
func NewPool(connector dbapi.Connector, cfg *config.Config, logger dbapi.Logger, m *metrics.Metrics) (*pool.Pool, error) {
	return pool.New(connector, pool.Config{
		MaxSize:        int32(cfg.Pool.Size),
		AcquireTimeout: cfg.Pool.AcquireTimeoutDuration(),
	}, pool.WithLogger(logger), pool.WithMetrics(m))
}

// NewWrapper retries transient errors at the configured fixed delay.
func NewWrapper(authorizer dbapi.Authorizer, cfg *config.Config, logger dbapi.Logger, m *metrics.Metrics) *operation.Wrapper {
	return operation.NewWrapper(authorizer,
		operation.WithLogger(logger),
		operation.WithRetryDelay(cfg.Retry.DelayDuration()),
		operation.WithMetrics(m),
	)
}

// RouterParams allow the fallback backend to be absent.
type RouterParams struct {
	fx.In

	Backend dbapi.Backend `optional:"true"`
	Logger  dbapi.Logger
	Metrics *metrics.Metrics
}

// NewRouter forwards unimplemented names to the optional backend.
func NewRouter(p RouterParams) *fallback.Router {
	return fallback.NewRouter(p.Backend, fallback.WithLogger(p.Logger), fallback.WithMetrics(p.Metrics))
}

// DataAPIParams are the collaborators of the data API.
type DataAPIParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     *config.Config
	Pool       *pool.Pool
	Wrapper    *operation.Wrapper
	Router     *fallback.Router
	Authorizer dbapi.Authorizer
	Logger     dbapi.Logger
	Metrics    *metrics.Metrics
}

// Service holds the data API once the application has started.
type Service struct {
	api *services.DataAPI
}

// DataAPI returns the running data API, or nil before start.
func (s *Service) DataAPI() *services.DataAPI {
	return s.api
}

// NewService defers the first schema load to OnStart so that it is bounded
// by fx's start timeout and a failure aborts startup.
func NewService(p DataAPIParams) *Service {
	svc := &Service{}
	deps := services.Deps{
		Pool:            p.Pool,
		Wrapper:         p.Wrapper,
		Router:          p.Router,
		Authorizer:      p.Authorizer,
		Logger:          p.Logger,
		Metrics:         p.Metrics,
		Schemas:         p.Config.Schema.Schemas,
		RefreshInterval: p.Config.Schema.RefreshIntervalDuration(),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			api, err := services.NewDataAPI(ctx, deps)
			if err != nil {
				p.Pool.Close()
				return err
			}
			svc.api = api
			return nil
		},
		OnStop: func(context.Context) error {
			if svc.api != nil {
				svc.api.Close()
			}
			return nil
		},
	})
	return svc
}

// RegisterMetricsServer serves /metrics on cfg.Metrics.Addr. An empty
// address disables the listener.
func RegisterMetricsServer(lc fx.Lifecycle, cfg *config.Config, reg *prometheus.Registry, logger dbapi.Logger) {
	if cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// Listen synchronously so a bad address fails startup.
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			logger.Info("Serving metrics", "address", ln.Addr().String())
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, metricsShutdownTimeout)
				defer cancel()
			}
			return server.Shutdown(ctx)
		},
	})
}
